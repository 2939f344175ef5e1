//go:build e2e

package e2e

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/loopback/cmd/loopback-server/server"
	"github.com/thesyncim/loopback/pkg/loopback"
	"github.com/thesyncim/loopback/pkg/loopback/browser"
	"github.com/thesyncim/loopback/pkg/loopback/media"
)

// harness is a running server with its media backend and a browser
// launcher pointed at it.
type harness struct {
	backend  *media.Factory
	launcher *browser.Launcher
	lf       logging.LoggerFactory
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	lf := logging.NewDefaultLoggerFactory()
	lf.DefaultLogLevel = logging.LogLevelWarn

	mediaCfg := media.DefaultConfig()
	mediaCfg.LoggerFactory = lf
	backend, err := media.NewFactory(mediaCfg)
	if err != nil {
		t.Fatalf("failed to create media backend: %v", err)
	}

	// Start server on random port
	srvCfg := server.DefaultConfig()
	srvCfg.Addr = "127.0.0.1:0"
	srvCfg.LoggerFactory = lf
	srv, err := server.NewServer(srvCfg, backend)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	addr, err := srv.Start()
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("server shutdown error: %v", err)
		}
	})
	t.Logf("Server started on %s", addr)

	bcfg := browser.DefaultConfig(srv.LocalURL())
	bcfg.LoggerFactory = lf
	launcher, err := browser.NewLauncher(bcfg)
	if err != nil {
		t.Fatalf("failed to create launcher: %v", err)
	}

	return &harness{backend: backend, launcher: launcher, lf: lf}
}

// TestChrome_SessionLoopback verifies the complete E2E infrastructure:
// 1. Server can start programmatically on random port
// 2. Browser can launch in headless mode with WebRTC flags
// 3. The harness page negotiates with a loopback endpoint
// 4. The looped-back video starts playing
// 5. Cleanup works (no orphaned processes)
func TestChrome_SessionLoopback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pipeline, err := h.backend.NewPipeline(ctx)
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}
	defer pipeline.Release()

	ep, err := pipeline.NewEndpoint(ctx, loopback.EndpointWebRTC)
	if err != nil {
		t.Fatalf("failed to create endpoint: %v", err)
	}
	if err := ep.Connect(ep); err != nil {
		t.Fatalf("failed to connect loopback: %v", err)
	}

	session, err := h.launcher.NewSession(ctx, loopback.SessionDescriptor{
		Browser: loopback.BrowserChromium,
		Client:  loopback.ClientWebRTC,
		Channel: loopback.ChannelAudioAndVideo,
	})
	if err != nil {
		t.Fatalf("failed to create browser session: %v", err)
	}
	defer func() {
		if err := session.Release(); err != nil {
			t.Errorf("session release error: %v", err)
		}
	}()

	if err := session.Subscribe(loopback.EventPlaying); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}
	if err := session.Connect(ctx, ep, loopback.ChannelAudioAndVideo); err != nil {
		t.Fatalf("failed to connect session: %v", err)
	}
	if !session.WaitFor(loopback.EventPlaying, 30*time.Second) {
		t.Fatal("remote video never started playing")
	}

	time.Sleep(2 * time.Second)
	pos, err := session.CurrentTime(ctx)
	if err != nil {
		t.Fatalf("failed to read current time: %v", err)
	}
	if pos < 1 {
		t.Errorf("current time = %.2fs after 2s of playback, want >= 1s", pos)
	}

	fwd := ep.(*media.WebRTCEndpoint)
	t.Logf("forwarded video=%d audio=%d packets", fwd.Forwarded(webrtc.RTPCodecTypeVideo), fwd.Forwarded(webrtc.RTPCodecTypeAudio))
}

// pesqOrSkip returns the pesq executable or skips the test.
func pesqOrSkip(t *testing.T) string {
	t.Helper()
	bin, err := exec.LookPath("pesq")
	if err != nil {
		t.Skip("pesq not found in PATH")
	}
	return bin
}
