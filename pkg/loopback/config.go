package loopback

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPlayDuration  = 10 * time.Second
	DefaultReadyTimeout  = 60 * time.Second
	DefaultMinAudioScore = 1.5
)

// ScenarioConfig configures one loopback scenario.
type ScenarioConfig struct {
	Browser BrowserKind `yaml:"browser" json:"browser"`

	// Video and Audio are input references: a local path or an http(s) URL.
	Video string `yaml:"video,omitempty" json:"video,omitempty"`
	Audio string `yaml:"audio,omitempty" json:"audio,omitempty"`

	// ExpectedColor enables the color criterion.
	ExpectedColor *Color `yaml:"expectedColor,omitempty" json:"expectedColor,omitempty"`

	PlayDuration time.Duration `yaml:"playDuration" json:"playDuration"`
	ReadyTimeout time.Duration `yaml:"readyTimeout" json:"readyTimeout"`

	// TimingTolerance of zero disables the timing criterion.
	TimingTolerance time.Duration `yaml:"timingTolerance" json:"timingTolerance"`
	ColorTolerance  float64       `yaml:"colorTolerance" json:"colorTolerance"`
	MinAudioScore   float64       `yaml:"minAudioScore" json:"minAudioScore"`

	// WorkDir holds downloaded references and recordings. A temporary
	// directory is used, and removed afterwards, when empty.
	WorkDir string `yaml:"workDir,omitempty" json:"workDir,omitempty"`
}

// DefaultScenarioConfig returns the configuration of the reference scenario:
// Chrome, 10s of play, 60s readiness timeout, MOS >= 1.5.
func DefaultScenarioConfig() ScenarioConfig {
	return ScenarioConfig{
		Browser:         BrowserChrome,
		PlayDuration:    DefaultPlayDuration,
		ReadyTimeout:    DefaultReadyTimeout,
		TimingTolerance: DefaultTimingTolerance,
		ColorTolerance:  DefaultColorTolerance,
		MinAudioScore:   DefaultMinAudioScore,
	}
}

// LoadScenarioConfig reads a YAML scenario file on top of the defaults.
func LoadScenarioConfig(path string) (ScenarioConfig, error) {
	cfg := DefaultScenarioConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading scenario file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing scenario file: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for values no run could honor.
func (c ScenarioConfig) Validate() error {
	switch {
	case !c.Browser.Valid():
		return fmt.Errorf("%w: unsupported browser %q", ErrInvalidConfig, c.Browser)
	case c.PlayDuration <= 0:
		return fmt.Errorf("%w: play duration must be positive", ErrInvalidConfig)
	case c.ReadyTimeout <= 0:
		return fmt.Errorf("%w: ready timeout must be positive", ErrInvalidConfig)
	case c.TimingTolerance < 0:
		return fmt.Errorf("%w: timing tolerance must not be negative", ErrInvalidConfig)
	case c.ColorTolerance < 0:
		return fmt.Errorf("%w: color tolerance must not be negative", ErrInvalidConfig)
	case c.ExpectedColor != nil && !c.Channel().HasVideo():
		return fmt.Errorf("%w: expected color requires a video channel", ErrInvalidConfig)
	}
	return nil
}

// Channel infers the media channels from the configured references.
// With no reference at all the client's synthetic devices send both.
func (c ScenarioConfig) Channel() Channel {
	switch {
	case c.Video != "" && c.Audio == "":
		return ChannelVideo
	case c.Video == "" && c.Audio != "":
		return ChannelAudio
	default:
		return ChannelAudioAndVideo
	}
}

func (c ScenarioConfig) hasInput() bool {
	return c.Video != "" || c.Audio != ""
}

// Descriptor builds the session descriptor for resolved local media paths.
func (c ScenarioConfig) Descriptor(videoPath, audioPath string) SessionDescriptor {
	desc := SessionDescriptor{
		Browser: c.Browser,
		Client:  ClientWebRTC,
		Video:   videoPath,
		Audio:   audioPath,
		Channel: c.Channel(),
	}
	if audioPath != "" {
		desc.RecordAudio = c.PlayDuration
	}
	return desc
}
