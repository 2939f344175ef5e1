// Package peer is a browserless loopback session client on a Pion
// PeerConnection.
//
// It sends VP8 from IVF files and Opus from OGG files, looping them like
// Chrome's fake capture devices, or synthetic payloads when no file is
// given. "playing" fires on the first echoed RTP packet. The rendered
// color and recorded audio are not observable without a browser.
package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/loopback/pkg/loopback"
	"github.com/thesyncim/loopback/pkg/loopback/internal"
)

// EventConnected fires when the peer connection reaches connected.
const EventConnected = "connected"

// Config configures Go peer sessions.
type Config struct {
	ICEServers    []webrtc.ICEServer
	LoggerFactory logging.LoggerFactory

	// Clock measures play time. Default: internal.MonotonicClock.
	Clock internal.Clock
}

// Factory creates Go peer sessions. It implements loopback.SessionFactory.
type Factory struct {
	cfg Config
	log logging.LeveledLogger
}

// NewFactory creates a Factory.
func NewFactory(cfg Config) *Factory {
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if cfg.Clock == nil {
		cfg.Clock = internal.MonotonicClock{}
	}
	return &Factory{cfg: cfg, log: cfg.LoggerFactory.NewLogger("peer")}
}

// NewSession validates desc and opens its media files. The peer
// connection is created on Connect.
func (f *Factory) NewSession(_ context.Context, desc loopback.SessionDescriptor) (loopback.SessionClient, error) {
	if desc.Client != "" && desc.Client != loopback.ClientWebRTC {
		return nil, fmt.Errorf("%w: client %q", loopback.ErrUnsupported, desc.Client)
	}
	if desc.RecordAudio > 0 {
		return nil, fmt.Errorf("%w: audio recording needs a browser session", loopback.ErrUnsupported)
	}

	s := &Session{
		cfg:    f.cfg,
		desc:   desc,
		log:    f.log,
		waiter: loopback.NewEventWaiter(),
		done:   make(chan struct{}),
	}

	s.openVideo = newSyntheticVideo
	if desc.Video != "" {
		src, err := openIVF(desc.Video)
		if err != nil {
			return nil, err
		}
		src.Close()
		s.openVideo = reopen(func() (frameSource, error) { return openIVF(desc.Video) })
	}
	s.openAudio = newSyntheticAudio
	if desc.Audio != "" {
		src, err := openOGG(desc.Audio)
		if err != nil {
			return nil, err
		}
		src.Close()
		s.openAudio = reopen(func() (frameSource, error) { return openOGG(desc.Audio) })
	}
	return s, nil
}

// reopen adapts a fallible opener validated up front. A failure on a
// later reopen ends that source.
func reopen(open func() (frameSource, error)) func() frameSource {
	return func() frameSource {
		src, err := open()
		if err != nil {
			return nil
		}
		return src
	}
}

// Session is a Pion peer taking part in a loopback scenario.
type Session struct {
	cfg    Config
	desc   loopback.SessionDescriptor
	log    logging.LeveledLogger
	waiter *loopback.EventWaiter

	openVideo func() frameSource
	openAudio func() frameSource

	mu        sync.Mutex
	pc        *webrtc.PeerConnection
	playingAt time.Time
	released  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// Subscribe registers interest in event.
func (s *Session) Subscribe(event string) error {
	s.waiter.Subscribe(event)
	return nil
}

// Connect negotiates with ep and starts sending media for ch.
func (s *Session) Connect(ctx context.Context, ep loopback.Endpoint, ch loopback.Channel) error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return loopback.ErrReleased
	}
	if s.pc != nil {
		s.mu.Unlock()
		return errors.New("session already connected")
	}
	s.mu.Unlock()

	api, err := s.newAPI()
	if err != nil {
		return err
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: s.cfg.ICEServers})
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	type outgoing struct {
		track *webrtc.TrackLocalStaticSample
		open  func() frameSource
	}
	var tracks []outgoing
	if ch.HasVideo() {
		track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "peer")
		if err != nil {
			pc.Close()
			return err
		}
		tracks = append(tracks, outgoing{track, s.openVideo})
	}
	if ch.HasAudio() {
		track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "peer")
		if err != nil {
			pc.Close()
			return err
		}
		tracks = append(tracks, outgoing{track, s.openAudio})
	}
	for _, o := range tracks {
		if _, err := pc.AddTrack(o.track); err != nil {
			pc.Close()
			return fmt.Errorf("failed to add %s track: %w", o.track.Kind(), err)
		}
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.log.Debugf("peer connection state: %s", state)
		if state == webrtc.PeerConnectionStateConnected {
			s.waiter.Notify(EventConnected)
		}
	})
	pc.OnTrack(s.onTrack)

	s.mu.Lock()
	s.pc = pc
	s.mu.Unlock()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return fmt.Errorf("waiting for ICE gathering: %w", ctx.Err())
	}

	answer, err := ep.ProcessOffer(ctx, pc.LocalDescription().SDP)
	if err != nil {
		return fmt.Errorf("endpoint %s rejected offer: %w", ep.ID(), err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return loopback.ErrReleased
	}
	for _, o := range tracks {
		s.wg.Add(1)
		go s.send(o.track, o.open)
	}
	s.log.Debugf("connected to endpoint %s (%s)", ep.ID(), ch)
	return nil
}

// newAPI returns a Pion API with the default codecs and interceptors,
// matching what a browser offers.
func (s *Session) newAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}
	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}
	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(webrtc.SettingEngine{LoggerFactory: s.cfg.LoggerFactory}),
	), nil
}

func (s *Session) onTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	s.log.Debugf("echoed %s track: %s", track.Kind(), track.Codec().MimeType)
	first := true
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
		if !first {
			continue
		}
		first = false

		s.mu.Lock()
		started := !s.playingAt.IsZero()
		if !started {
			s.playingAt = s.cfg.Clock.Now()
		}
		s.mu.Unlock()
		if !started {
			s.waiter.Notify(loopback.EventPlaying)
		}
	}
}

// send paces samples from the source onto track until the session is
// released, reopening the source at EOF.
func (s *Session) send(track *webrtc.TrackLocalStaticSample, open func() frameSource) {
	defer s.wg.Done()

	src := open()
	defer func() {
		if src != nil {
			src.Close()
		}
	}()
	if src == nil {
		return
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-timer.C:
		}

		sample, err := src.next()
		if errors.Is(err, io.EOF) {
			src.Close()
			if src = open(); src == nil {
				return
			}
			timer.Reset(0)
			continue
		}
		if err != nil {
			s.log.Warnf("%s source failed: %v", track.Kind(), err)
			return
		}
		if err := track.WriteSample(sample); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			s.log.Warnf("failed to write %s sample: %v", track.Kind(), err)
			return
		}
		timer.Reset(sample.Duration)
	}
}

// WaitFor blocks until event fires or timeout elapses.
func (s *Session) WaitFor(event string, timeout time.Duration) bool {
	return s.waiter.Wait(event, timeout)
}

// CurrentTime returns seconds since the first echoed packet.
func (s *Session) CurrentTime(_ context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return 0, loopback.ErrReleased
	}
	if s.playingAt.IsZero() {
		return 0, nil
	}
	return s.cfg.Clock.Now().Sub(s.playingAt).Seconds(), nil
}

// SampledColor is not observable without rendering.
func (s *Session) SampledColor(context.Context) (loopback.Color, error) {
	return loopback.Color{}, fmt.Errorf("%w: color sampling needs a browser session", loopback.ErrUnsupported)
}

// RecordedAudio is not observable without rendering.
func (s *Session) RecordedAudio(context.Context) (string, error) {
	return "", fmt.Errorf("%w: audio recording needs a browser session", loopback.ErrUnsupported)
}

// Release closes the peer connection and stops the senders. Calling it
// more than once is a no-op.
func (s *Session) Release() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	pc := s.pc
	close(s.done)
	s.mu.Unlock()

	var err error
	if pc != nil {
		err = pc.Close()
	}
	s.wg.Wait()
	return err
}
