package browser

import (
	"github.com/thesyncim/loopback/pkg/loopback"
)

// chromeFlag is a command line switch with optional values.
type chromeFlag struct {
	name   string
	values []string
}

// chromeFlags returns the WebRTC-ready switches for a session. Fake
// capture devices replay the descriptor's media files when given and fall
// back to Chrome's synthetic sources otherwise.
func chromeFlags(desc loopback.SessionDescriptor) []chromeFlag {
	flags := []chromeFlag{
		{name: "no-sandbox"},
		{name: "disable-gpu"},
		{name: "use-fake-device-for-media-stream"},
		{name: "use-fake-ui-for-media-stream"},
		{name: "autoplay-policy", values: []string{"no-user-gesture-required"}},
	}
	if desc.Video != "" {
		flags = append(flags, chromeFlag{name: "use-file-for-fake-video-capture", values: []string{desc.Video}})
	}
	if desc.Audio != "" {
		flags = append(flags, chromeFlag{name: "use-file-for-fake-audio-capture", values: []string{desc.Audio}})
	}
	return flags
}
