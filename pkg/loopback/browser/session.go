// Package browser drives a real Chrome through go-rod as a loopback
// session client.
//
// Each session launches its own browser with fake capture devices, opens
// the harness page, and exchanges SDP with a media endpoint. Media events
// on the remote video element are reported back through a page binding.
package browser

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pion/logging"
	"github.com/ysmood/gson"

	"github.com/thesyncim/loopback/pkg/loopback"
	"github.com/thesyncim/loopback/pkg/loopback/quality"
)

// Launcher starts one Chrome per session. It implements
// loopback.SessionFactory.
type Launcher struct {
	cfg Config
	log logging.LeveledLogger
}

// NewLauncher creates a Launcher.
func NewLauncher(cfg Config) (*Launcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	lf := cfg.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	return &Launcher{cfg: cfg, log: lf.NewLogger("browser")}, nil
}

// Session is a browser taking part in a loopback scenario.
type Session struct {
	cfg  Config
	desc loopback.SessionDescriptor
	log  logging.LeveledLogger

	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	waiter   *loopback.EventWaiter

	stopBinding func() error

	workDir     string
	ownsWorkDir bool

	releaseOnce sync.Once
	releaseErr  error
}

// NewSession launches a browser for desc and loads the harness page.
// Whatever was acquired before a failure is released.
func (l *Launcher) NewSession(ctx context.Context, desc loopback.SessionDescriptor) (loopback.SessionClient, error) {
	kind := desc.Browser
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: browser %q", loopback.ErrUnsupported, desc.Browser)
	}
	if desc.Client != "" && desc.Client != loopback.ClientWebRTC {
		return nil, fmt.Errorf("%w: client %q", loopback.ErrUnsupported, desc.Client)
	}

	s := &Session{
		cfg:    l.cfg,
		desc:   desc,
		log:    l.log,
		waiter: loopback.NewEventWaiter(),
	}
	if err := s.start(ctx, kind); err != nil {
		if rerr := s.Release(); rerr != nil {
			l.log.Warnf("cleanup after failed launch: %v", rerr)
		}
		return nil, err
	}
	return s, nil
}

func (s *Session) start(ctx context.Context, kind loopback.BrowserKind) error {
	if s.cfg.WorkDir != "" {
		s.workDir = s.cfg.WorkDir
	} else {
		dir, err := os.MkdirTemp("", "loopback-browser-*")
		if err != nil {
			return fmt.Errorf("failed to create work dir: %w", err)
		}
		s.workDir = dir
		s.ownsWorkDir = true
	}

	l := launcher.New().Context(ctx).Headless(s.cfg.Headless)
	if bin, ok := s.browserBin(kind); ok {
		l = l.Bin(bin)
	}
	for _, f := range chromeFlags(s.desc) {
		l = l.Set(flags.Flag(f.name), f.values...)
	}
	s.launcher = l

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch %s: %w", kind, err)
	}

	s.browser = rod.New().ControlURL(controlURL)
	if err := s.browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", kind, err)
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	s.page = page

	s.stopBinding, err = page.Expose(bindingName, func(j gson.JSON) (interface{}, error) {
		name := j.Str()
		if !s.waiter.Notify(name) {
			s.log.Debugf("dropped unsubscribed event %q", name)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to expose event binding: %w", err)
	}

	if err := page.Timeout(s.cfg.Timeout).Navigate(s.cfg.PageURL); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", s.cfg.PageURL, err)
	}
	if err := page.WaitStable(s.cfg.Timeout); err != nil {
		return fmt.Errorf("page not stable: %w", err)
	}

	recordSeconds := 0.0
	if s.desc.RecordAudio > 0 {
		recordSeconds = s.desc.RecordAudio.Seconds()
	}
	if _, err := page.Eval(harnessJS, s.cfg.SampleRate, recordSeconds); err != nil {
		return fmt.Errorf("failed to install harness: %w", err)
	}

	s.log.Infof("%s session ready on %s", kind, s.cfg.PageURL)
	return nil
}

// browserBin picks the executable: Config.Bin, then an installed Chrome
// for BrowserChrome. Chromium falls back to rod's managed download.
func (s *Session) browserBin(kind loopback.BrowserKind) (string, bool) {
	if s.cfg.Bin != "" {
		return s.cfg.Bin, true
	}
	if kind == loopback.BrowserChrome {
		return launcher.LookPath()
	}
	return "", false
}

// eval runs js bounded by ctx and the configured timeout.
func (s *Session) eval(ctx context.Context, js string, args ...interface{}) (gson.JSON, error) {
	if s.page == nil {
		return gson.JSON{}, loopback.ErrReleased
	}
	res, err := s.page.Context(ctx).Timeout(s.cfg.Timeout).Eval(js, args...)
	if err != nil {
		return gson.JSON{}, err
	}
	return res.Value, nil
}

// Subscribe listens for the media event on the remote video element.
func (s *Session) Subscribe(event string) error {
	s.waiter.Subscribe(event)
	if _, err := s.eval(context.Background(), `name => window.loopback.subscribe(name)`, event); err != nil {
		return fmt.Errorf("failed to subscribe to %q: %w", event, err)
	}
	return nil
}

// Connect negotiates the page's peer connection with ep.
func (s *Session) Connect(ctx context.Context, ep loopback.Endpoint, ch loopback.Channel) error {
	offer, err := s.eval(ctx, `(audio, video) => window.loopback.offer(audio, video)`, ch.HasAudio(), ch.HasVideo())
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}

	answer, err := ep.ProcessOffer(ctx, offer.Str())
	if err != nil {
		return fmt.Errorf("endpoint %s rejected offer: %w", ep.ID(), err)
	}

	if _, err := s.eval(ctx, `sdp => window.loopback.answer(sdp)`, answer); err != nil {
		return fmt.Errorf("failed to apply answer: %w", err)
	}
	s.log.Debugf("connected to endpoint %s (%s)", ep.ID(), ch)
	return nil
}

// WaitFor blocks until event fires or timeout elapses.
func (s *Session) WaitFor(event string, timeout time.Duration) bool {
	return s.waiter.Wait(event, timeout)
}

// CurrentTime returns the remote video's playback position in seconds.
func (s *Session) CurrentTime(ctx context.Context) (float64, error) {
	v, err := s.eval(ctx, `() => window.loopback.currentTime()`)
	if err != nil {
		return 0, fmt.Errorf("failed to read current time: %w", err)
	}
	return v.Num(), nil
}

// SampledColor returns the rendered pixel at Config.SamplePoint.
func (s *Session) SampledColor(ctx context.Context) (loopback.Color, error) {
	v, err := s.eval(ctx, `(x, y) => window.loopback.color(x, y)`, s.cfg.SamplePoint.X, s.cfg.SamplePoint.Y)
	if err != nil {
		return loopback.Color{}, fmt.Errorf("failed to sample color: %w", err)
	}
	return parseRGB(v)
}

// RecordedAudio waits for the recording to finish and writes it to a WAV
// file in the work dir.
func (s *Session) RecordedAudio(ctx context.Context) (string, error) {
	if s.desc.RecordAudio <= 0 {
		return "", loopback.ErrNoRecording
	}
	v, err := s.eval(ctx, `() => window.loopback.recorded()`)
	if err != nil {
		return "", fmt.Errorf("%w: %v", loopback.ErrNoRecording, err)
	}
	samples, err := decodePCM(v.Str())
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.workDir, "recorded.wav")
	if err := quality.WriteWAV(path, s.cfg.SampleRate, samples); err != nil {
		return "", err
	}
	return path, nil
}

// Release closes the browser and removes the session's temporary files.
// Only the first call does any work.
func (s *Session) Release() error {
	s.releaseOnce.Do(func() {
		var errs []error
		if s.stopBinding != nil {
			if err := s.stopBinding(); err != nil {
				s.log.Debugf("stop binding: %v", err)
			}
		}
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close browser: %w", err))
			}
		}
		if s.launcher != nil {
			s.launcher.Kill()
			s.launcher.Cleanup()
		}
		if s.ownsWorkDir {
			if err := os.RemoveAll(s.workDir); err != nil {
				errs = append(errs, fmt.Errorf("remove work dir: %w", err))
			}
		}
		s.page = nil
		s.releaseErr = errors.Join(errs...)
	})
	return s.releaseErr
}

func parseRGB(v gson.JSON) (loopback.Color, error) {
	arr := v.Arr()
	if len(arr) != 3 {
		return loopback.Color{}, fmt.Errorf("unexpected color value %s", v.JSON("", ""))
	}
	var c [3]uint8
	for i, ch := range arr {
		n := ch.Int()
		if n < 0 || n > 255 {
			return loopback.Color{}, fmt.Errorf("color channel out of range: %d", n)
		}
		c[i] = uint8(n)
	}
	return loopback.Color{R: c[0], G: c[1], B: c[2]}, nil
}

// decodePCM decodes base64 little-endian 16-bit PCM.
func decodePCM(b64 string) ([]int16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("invalid recording encoding: %w", err)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("odd PCM byte count %d", len(raw))
	}
	if len(raw) == 0 {
		return nil, loopback.ErrNoRecording
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return samples, nil
}
