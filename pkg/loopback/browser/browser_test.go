package browser

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"

	"github.com/thesyncim/loopback/pkg/loopback"
)

func quietLogger() logging.LoggerFactory {
	lf := logging.NewDefaultLoggerFactory()
	lf.DefaultLogLevel = logging.LogLevelDisabled
	return lf
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("http://127.0.0.1:8080/")

	assert.Equal(t, "http://127.0.0.1:8080/", cfg.PageURL)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 16000, cfg.SampleRate)
	assert.Equal(t, Point{X: 0.1, Y: 0.1}, cfg.SamplePoint)
	assert.NoError(t, cfg.validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no page", func(c *Config) { c.PageURL = "" }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"point outside", func(c *Config) { c.SamplePoint = Point{X: 1.5, Y: 0.5} }},
		{"negative point", func(c *Config) { c.SamplePoint = Point{X: 0.5, Y: -0.1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("http://localhost/")
			tt.modify(&cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestChromeFlags(t *testing.T) {
	names := func(fs []chromeFlag) map[string][]string {
		m := make(map[string][]string, len(fs))
		for _, f := range fs {
			m[f.name] = f.values
		}
		return m
	}

	t.Run("synthetic sources", func(t *testing.T) {
		got := names(chromeFlags(loopback.SessionDescriptor{Browser: "chrome"}))
		assert.Contains(t, got, "use-fake-device-for-media-stream")
		assert.Contains(t, got, "use-fake-ui-for-media-stream")
		assert.Contains(t, got, "no-sandbox")
		assert.Equal(t, []string{"no-user-gesture-required"}, got["autoplay-policy"])
		assert.NotContains(t, got, "use-file-for-fake-video-capture")
		assert.NotContains(t, got, "use-file-for-fake-audio-capture")
	})

	t.Run("file sources", func(t *testing.T) {
		got := names(chromeFlags(loopback.SessionDescriptor{
			Browser: "chrome",
			Video:   "/media/green.y4m",
			Audio:   "/media/speech.wav",
		}))
		assert.Equal(t, []string{"/media/green.y4m"}, got["use-file-for-fake-video-capture"])
		assert.Equal(t, []string{"/media/speech.wav"}, got["use-file-for-fake-audio-capture"])
	})
}

func TestDecodePCM(t *testing.T) {
	raw := []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80}
	got, err := decodePCM(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, []int16{1, -1, -32768}, got)

	_, err = decodePCM("!!!")
	assert.Error(t, err)

	_, err = decodePCM(base64.StdEncoding.EncodeToString([]byte{1, 2, 3}))
	assert.Error(t, err)

	_, err = decodePCM("")
	assert.ErrorIs(t, err, loopback.ErrNoRecording)
}

func TestParseRGB(t *testing.T) {
	c, err := parseRGB(gson.NewFrom("[0,135,0]"))
	require.NoError(t, err)
	assert.Equal(t, loopback.ColorGreen, c)

	_, err = parseRGB(gson.NewFrom("[1,2]"))
	assert.Error(t, err)

	_, err = parseRGB(gson.NewFrom("[0,300,0]"))
	assert.Error(t, err)
}

func TestNewSession_RejectsUnsupported(t *testing.T) {
	cfg := DefaultConfig("http://localhost/")
	cfg.LoggerFactory = quietLogger()
	l, err := NewLauncher(cfg)
	require.NoError(t, err)

	_, err = l.NewSession(context.Background(), loopback.SessionDescriptor{Browser: "firefox"})
	assert.ErrorIs(t, err, loopback.ErrUnsupported)

	_, err = l.NewSession(context.Background(), loopback.SessionDescriptor{Browser: "chrome", Client: "rtsp"})
	assert.ErrorIs(t, err, loopback.ErrUnsupported)
}

func TestNewLauncher_InvalidConfig(t *testing.T) {
	_, err := NewLauncher(Config{})
	assert.Error(t, err)
}

func TestSession_ReleaseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := &Session{
		cfg:    DefaultConfig("http://localhost/"),
		log:    quietLogger().NewLogger("browser"),
		waiter: loopback.NewEventWaiter(),
	}
	s.workDir = dir

	require.NoError(t, s.Release())
	require.NoError(t, s.Release())

	_, err := s.CurrentTime(context.Background())
	assert.ErrorIs(t, err, loopback.ErrReleased)
}

func TestSession_RecordedAudioWithoutRecording(t *testing.T) {
	s := &Session{
		cfg:    DefaultConfig("http://localhost/"),
		log:    quietLogger().NewLogger("browser"),
		waiter: loopback.NewEventWaiter(),
	}
	_, err := s.RecordedAudio(context.Background())
	assert.ErrorIs(t, err, loopback.ErrNoRecording)
}
