package browser

import (
	"errors"
	"time"

	"github.com/pion/logging"
)

// Point is a position relative to the rendered video, each axis in [0, 1].
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Config configures Chrome launch and the harness page.
type Config struct {
	// PageURL is the harness page. It must be a secure context
	// (https or localhost) for getUserMedia.
	PageURL string

	Headless bool          // Run in headless mode (default: true)
	Timeout  time.Duration // Default operation timeout (default: 30s)

	// Bin overrides the browser executable.
	Bin string

	// SampleRate of recorded audio. Must match the PESQ scorer.
	SampleRate int

	// SamplePoint is where the rendered color is read.
	SamplePoint Point

	// WorkDir holds recordings. Empty means a temporary directory
	// removed on Release.
	WorkDir string

	LoggerFactory logging.LoggerFactory
}

// DefaultConfig returns defaults for headless runs against pageURL.
func DefaultConfig(pageURL string) Config {
	return Config{
		PageURL:     pageURL,
		Headless:    true,
		Timeout:     30 * time.Second,
		SampleRate:  16000,
		SamplePoint: Point{X: 0.1, Y: 0.1},
	}
}

func (c Config) validate() error {
	if c.PageURL == "" {
		return errors.New("page URL is required")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.SampleRate <= 0 {
		return errors.New("sample rate must be positive")
	}
	if c.SamplePoint.X < 0 || c.SamplePoint.X > 1 || c.SamplePoint.Y < 0 || c.SamplePoint.Y > 1 {
		return errors.New("sample point must be within [0, 1]")
	}
	return nil
}
