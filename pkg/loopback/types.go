// Package loopback validates that a media server loops a WebRTC stream back
// to the same client and that the rendered result is perceptually correct.
package loopback

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventPlaying is fired by a session once the looped-back remote stream
// starts rendering.
const EventPlaying = "playing"

// Color is an RGB triple as rendered by a session.
type Color struct {
	R, G, B uint8
}

// ColorGreen is the background of Chrome's synthetic camera (#008700).
var ColorGreen = Color{R: 0x00, G: 0x87, B: 0x00}

// ColorRed is pure red, the color of the red.y4m reference clip.
var ColorRed = Color{R: 0xff, G: 0x00, B: 0x00}

// String returns the color as #rrggbb.
func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseColor parses "#rrggbb" or "rrggbb".
func ParseColor(s string) (Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return Color{}, fmt.Errorf("invalid color %q: want #rrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// MarshalText implements encoding.TextMarshaler.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Channel selects which media a session sends to its endpoint.
type Channel int

const (
	// ChannelAudioAndVideo sends both audio and video.
	ChannelAudioAndVideo Channel = iota
	// ChannelAudio sends audio only.
	ChannelAudio
	// ChannelVideo sends video only.
	ChannelVideo
)

// HasAudio reports whether the channel carries audio.
func (c Channel) HasAudio() bool {
	return c == ChannelAudioAndVideo || c == ChannelAudio
}

// HasVideo reports whether the channel carries video.
func (c Channel) HasVideo() bool {
	return c == ChannelAudioAndVideo || c == ChannelVideo
}

// String returns a string representation of the Channel.
func (c Channel) String() string {
	switch c {
	case ChannelAudioAndVideo:
		return "audio+video"
	case ChannelAudio:
		return "audio"
	case ChannelVideo:
		return "video"
	default:
		return "unknown"
	}
}

// BrowserKind identifies the browser driven by a session.
type BrowserKind string

const (
	// BrowserChrome prefers a system Chrome installation.
	BrowserChrome BrowserKind = "chrome"
	// BrowserChromium uses the Chromium build managed by the driver.
	BrowserChromium BrowserKind = "chromium"
)

// Valid reports whether b is a supported browser.
func (b BrowserKind) Valid() bool {
	return b == BrowserChrome || b == BrowserChromium
}

// ClientMode identifies how the session talks to its endpoint.
type ClientMode string

// ClientWebRTC is a real-time communication client.
const ClientWebRTC ClientMode = "webrtc"

// EndpointKind identifies the kind of media node created inside a pipeline.
type EndpointKind string

// EndpointWebRTC is a WebRTC endpoint.
const EndpointWebRTC EndpointKind = "webrtc"

// SessionDescriptor holds everything needed to start a session.
type SessionDescriptor struct {
	Browser BrowserKind
	Client  ClientMode

	// Video and Audio are local files fed to the client instead of
	// capture devices. Empty means the client's synthetic device.
	Video string
	Audio string

	// RecordAudio, when positive, records the looped-back audio for
	// this long once playback starts.
	RecordAudio time.Duration

	Channel Channel
}

// Evidence is what a session reported after the play window.
type Evidence struct {
	PlayTime  float64 `json:"playTime,omitempty"` // seconds
	Color     *Color  `json:"color,omitempty"`
	AudioPath string  `json:"audioPath,omitempty"`
	// AudioScore is the quality score of AudioPath.
	AudioScore float64 `json:"audioScore,omitempty"`
}
