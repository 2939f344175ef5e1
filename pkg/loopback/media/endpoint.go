package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/loopback/pkg/loopback"
)

// WebRTCEndpoint terminates one client PeerConnection and forwards the
// client's media to its connected sinks.
type WebRTCEndpoint struct {
	id       string
	pipeline *Pipeline
	pc       *webrtc.PeerConnection
	log      logging.LeveledLogger

	pliInterval time.Duration

	// Outgoing tracks, added before negotiation so the answer carries them.
	video *webrtc.TrackLocalStaticRTP
	audio *webrtc.TrackLocalStaticRTP

	sinksMu sync.RWMutex
	sinks   []*WebRTCEndpoint

	forwardedVideo atomic.Uint64
	forwardedAudio atomic.Uint64

	closeMu        sync.Mutex
	closeNotified  bool
	closeCallbacks []func()

	// Lifecycle
	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

func newWebRTCEndpoint(p *Pipeline) (*WebRTCEndpoint, error) {
	pc, err := p.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: p.cfg.ICEServers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	id := uuid.NewString()
	e := &WebRTCEndpoint{
		id:          id,
		pipeline:    p,
		pc:          pc,
		log:         p.log,
		pliInterval: p.cfg.PLIInterval,
		done:        make(chan struct{}),
	}

	streamID := "loopback-" + id
	if e.video, err = webrtc.NewTrackLocalStaticRTP(p.cfg.VideoCodec, "video", streamID); err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}
	if e.audio, err = webrtc.NewTrackLocalStaticRTP(p.cfg.AudioCodec, "audio", streamID); err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}

	for _, track := range []*webrtc.TrackLocalStaticRTP{e.video, e.audio} {
		sender, err := pc.AddTrack(track)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("failed to add %s track: %w", track.Kind(), err)
		}
		// Drain RTCP so the interceptors (NACK responder, reports) run.
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()
	}

	pc.OnTrack(e.onTrack)
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		e.log.Debugf("endpoint %s connection state: %s", e.id, state)
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			// Callbacks may close this peer connection.
			go e.notifyClosed()
		}
	})

	return e, nil
}

// ID returns the endpoint id.
func (e *WebRTCEndpoint) ID() string {
	return e.id
}

// Connect routes media received by e to sink. Connecting e to itself
// loops the client's media back to it. Connecting twice is a no-op.
func (e *WebRTCEndpoint) Connect(sink loopback.Endpoint) error {
	target, ok := sink.(*WebRTCEndpoint)
	if !ok {
		return fmt.Errorf("%w: %s is not a WebRTC endpoint", loopback.ErrUnknownEndpoint, sink.ID())
	}
	if target.pipeline != e.pipeline {
		return fmt.Errorf("cannot connect endpoint %s to %s: different pipelines", e.id, target.id)
	}

	e.sinksMu.Lock()
	defer e.sinksMu.Unlock()
	for _, s := range e.sinks {
		if s == target {
			return nil
		}
	}
	e.sinks = append(e.sinks, target)
	e.log.Debugf("endpoint %s connected to %s", e.id, target.id)
	return nil
}

// ProcessOffer applies the client's offer and returns the answer once ICE
// gathering completes, so the answer carries every candidate.
func (e *WebRTCEndpoint) ProcessOffer(ctx context.Context, offerSDP string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := e.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(e.pc)
	if err := e.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for ICE gathering: %w", ctx.Err())
	}
	return e.pc.LocalDescription().SDP, nil
}

// Forwarded returns the number of RTP packets of the given kind this
// endpoint has written to its sinks.
func (e *WebRTCEndpoint) Forwarded(kind webrtc.RTPCodecType) uint64 {
	switch kind {
	case webrtc.RTPCodecTypeVideo:
		return e.forwardedVideo.Load()
	case webrtc.RTPCodecTypeAudio:
		return e.forwardedAudio.Load()
	default:
		return 0
	}
}

// OnClose registers f to run once when the client's connection fails or
// closes, or the endpoint is closed. f runs immediately if that already
// happened. f must not block.
func (e *WebRTCEndpoint) OnClose(f func()) {
	e.closeMu.Lock()
	if !e.closeNotified {
		e.closeCallbacks = append(e.closeCallbacks, f)
		e.closeMu.Unlock()
		return
	}
	e.closeMu.Unlock()
	f()
}

func (e *WebRTCEndpoint) notifyClosed() {
	e.closeMu.Lock()
	if e.closeNotified {
		e.closeMu.Unlock()
		return
	}
	e.closeNotified = true
	callbacks := e.closeCallbacks
	e.closeCallbacks = nil
	e.closeMu.Unlock()

	for _, f := range callbacks {
		f()
	}
}

// Close shuts the peer connection down and waits for the forwarders.
func (e *WebRTCEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.done)
	e.mu.Unlock()

	err := e.pc.Close()
	e.wg.Wait()
	e.notifyClosed()
	return err
}

// track returns e's outgoing track for kind.
func (e *WebRTCEndpoint) track(kind webrtc.RTPCodecType) *webrtc.TrackLocalStaticRTP {
	if kind == webrtc.RTPCodecTypeVideo {
		return e.video
	}
	return e.audio
}

// startWorker registers a goroutine with the endpoint lifecycle.
// Returns false once the endpoint is closed.
func (e *WebRTCEndpoint) startWorker() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	return true
}

func (e *WebRTCEndpoint) onTrack(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	kind := remote.Kind()
	e.log.Infof("endpoint %s received %s track: codec=%s, ssrc=%d",
		e.id, kind, remote.Codec().MimeType, remote.SSRC())

	if kind == webrtc.RTPCodecTypeVideo && e.startWorker() {
		go e.pliLoop(uint32(remote.SSRC()))
	}

	if !e.startWorker() {
		return
	}
	defer e.wg.Done()
	e.forward(remote)
}

// forward copies every RTP packet of remote to the matching track of each sink.
func (e *WebRTCEndpoint) forward(remote *webrtc.TrackRemote) {
	kind := remote.Kind()
	mime := remote.Codec().MimeType
	counter := &e.forwardedAudio
	if kind == webrtc.RTPCodecTypeVideo {
		counter = &e.forwardedVideo
	}

	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			e.log.Debugf("endpoint %s %s read ended: %v", e.id, kind, err)
			return
		}

		e.sinksMu.RLock()
		sinks := e.sinks
		e.sinksMu.RUnlock()

		for _, sink := range sinks {
			if e.forwardTo(sink, kind, mime, pkt) {
				counter.Add(1)
			}
		}
	}
}

// forwardTo writes a copy of pkt to sink's track of the same kind.
// Returns false when the codecs differ or the write failed.
func (e *WebRTCEndpoint) forwardTo(sink *WebRTCEndpoint, kind webrtc.RTPCodecType, mime string, pkt *rtp.Packet) bool {
	local := sink.track(kind)
	if !strings.EqualFold(local.Codec().MimeType, mime) {
		return false
	}
	out := pkt.Clone()
	if sink != e {
		// Extension ids are negotiated per peer connection.
		out.Header.Extension = false
		out.Header.Extensions = nil
	}
	if err := local.WriteRTP(out); err != nil {
		if !errors.Is(err, io.ErrClosedPipe) {
			e.log.Warnf("endpoint %s failed to forward %s to %s: %v", e.id, kind, sink.id, err)
		}
		return false
	}
	return true
}

// pliLoop asks the client for a key frame every pliInterval so that a
// sink attached after the first key frame can decode.
func (e *WebRTCEndpoint) pliLoop(ssrc uint32) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.pliInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			if err := e.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}}); err != nil {
				return
			}
		}
	}
}
