package loopback

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultScenarioConfig(t *testing.T) {
	cfg := DefaultScenarioConfig()

	assert.Equal(t, BrowserChrome, cfg.Browser)
	assert.Equal(t, 10*time.Second, cfg.PlayDuration)
	assert.Equal(t, 60*time.Second, cfg.ReadyTimeout)
	assert.Equal(t, time.Second, cfg.TimingTolerance)
	assert.Equal(t, 1.5, cfg.MinAudioScore)
	assert.Nil(t, cfg.ExpectedColor)
	assert.NoError(t, cfg.Validate())
}

func TestScenarioConfig_Validate(t *testing.T) {
	green := ColorGreen

	tests := []struct {
		name   string
		mutate func(*ScenarioConfig)
	}{
		{"unknown browser", func(c *ScenarioConfig) { c.Browser = "firefox" }},
		{"zero play duration", func(c *ScenarioConfig) { c.PlayDuration = 0 }},
		{"zero ready timeout", func(c *ScenarioConfig) { c.ReadyTimeout = 0 }},
		{"negative timing tolerance", func(c *ScenarioConfig) { c.TimingTolerance = -time.Second }},
		{"negative color tolerance", func(c *ScenarioConfig) { c.ColorTolerance = -1 }},
		{"color without video", func(c *ScenarioConfig) {
			c.Audio = "fiware.wav"
			c.ExpectedColor = &green
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultScenarioConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestScenarioConfig_Channel(t *testing.T) {
	cfg := DefaultScenarioConfig()
	assert.Equal(t, ChannelAudioAndVideo, cfg.Channel(), "synthetic devices send both")

	cfg.Video = "red.y4m"
	assert.Equal(t, ChannelVideo, cfg.Channel())

	cfg.Audio = "fiware.wav"
	assert.Equal(t, ChannelAudioAndVideo, cfg.Channel())

	cfg.Video = ""
	assert.Equal(t, ChannelAudio, cfg.Channel())
}

func TestScenarioConfig_Descriptor(t *testing.T) {
	cfg := DefaultScenarioConfig()
	cfg.Video = "http://example.com/red.y4m"
	cfg.Audio = "http://example.com/fiware.wav"

	desc := cfg.Descriptor("/tmp/red.y4m", "/tmp/fiware.wav")
	assert.Equal(t, BrowserChrome, desc.Browser)
	assert.Equal(t, ClientWebRTC, desc.Client)
	assert.Equal(t, "/tmp/red.y4m", desc.Video)
	assert.Equal(t, "/tmp/fiware.wav", desc.Audio)
	assert.Equal(t, cfg.PlayDuration, desc.RecordAudio)
	assert.Equal(t, ChannelAudioAndVideo, desc.Channel)

	videoOnly := DefaultScenarioConfig()
	videoOnly.Video = "red.y4m"
	desc = videoOnly.Descriptor("red.y4m", "")
	assert.Zero(t, desc.RecordAudio, "no recording without an audio reference")
	assert.Equal(t, ChannelVideo, desc.Channel)
}

func TestLoadScenarioConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	data := `
browser: chromium
video: testdata/red.y4m
expectedColor: "#ff0000"
playDuration: 5s
colorTolerance: 12.5
timingTolerance: 0s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadScenarioConfig(path)
	require.NoError(t, err)

	assert.Equal(t, BrowserChromium, cfg.Browser)
	assert.Equal(t, "testdata/red.y4m", cfg.Video)
	require.NotNil(t, cfg.ExpectedColor)
	assert.Equal(t, ColorRed, *cfg.ExpectedColor)
	assert.Equal(t, 5*time.Second, cfg.PlayDuration)
	assert.Equal(t, 12.5, cfg.ColorTolerance)
	assert.Zero(t, cfg.TimingTolerance, "explicit zero disables timing")

	// Unset fields keep their defaults.
	assert.Equal(t, DefaultReadyTimeout, cfg.ReadyTimeout)
	assert.Equal(t, DefaultMinAudioScore, cfg.MinAudioScore)
}

func TestLoadScenarioConfig_Errors(t *testing.T) {
	_, err := LoadScenarioConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("expectedColor: \"#zz\"\n"), 0o644))
	_, err = LoadScenarioConfig(bad)
	assert.Error(t, err)

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("browser: firefox\n"), 0o644))
	_, err = LoadScenarioConfig(invalid)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#008700")
	require.NoError(t, err)
	assert.Equal(t, ColorGreen, c)

	c, err = ParseColor("FF0000")
	require.NoError(t, err)
	assert.Equal(t, ColorRed, c)
	assert.Equal(t, "#ff0000", c.String())

	for _, bad := range []string{"", "#fff", "#gg0000", "#0087000"} {
		_, err := ParseColor(bad)
		assert.Error(t, err, "input %q", bad)
	}
}
