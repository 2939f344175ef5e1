package media

import (
	"errors"
	"time"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

// Config holds media backend configuration.
type Config struct {
	VideoCodec webrtc.RTPCodecCapability
	AudioCodec webrtc.RTPCodecCapability

	// PLIInterval is how often video sources are asked for a key frame.
	PLIInterval time.Duration

	// ICEServers is empty for local testing.
	ICEServers []webrtc.ICEServer

	// LoggerFactory is shared with Pion. Default: pion's default factory.
	LoggerFactory logging.LoggerFactory
}

// DefaultConfig returns VP8 video, Opus audio and a 3 second PLI interval.
func DefaultConfig() Config {
	return Config{
		VideoCodec: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		},
		AudioCodec: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PLIInterval: 3 * time.Second,
	}
}

func (c Config) validate() error {
	if c.VideoCodec.MimeType == "" || c.AudioCodec.MimeType == "" {
		return errors.New("video and audio codecs are required")
	}
	if c.PLIInterval <= 0 {
		return errors.New("PLI interval must be positive")
	}
	return nil
}
