//go:build e2e

package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/thesyncim/loopback/pkg/loopback"
	"github.com/thesyncim/loopback/pkg/loopback/quality"
)

// TestLoopback_SyntheticCamera plays Chrome's synthetic camera through
// the loopback and checks the rendered color is its green background.
func TestLoopback_SyntheticCamera(t *testing.T) {
	h := newHarness(t)
	runner := loopback.NewRunner(h.backend, h.launcher, loopback.WithLoggerFactory(h.lf))

	cfg := loopback.DefaultScenarioConfig()
	cfg.Browser = loopback.BrowserChromium
	green := loopback.ColorGreen
	cfg.ExpectedColor = &green
	cfg.PlayDuration = 3 * time.Second

	verdict, err := runner.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !verdict.Passed {
		t.Fatalf("scenario failed:\n%s", verdict)
	}
	if _, ok := verdict.Result(loopback.CriterionColor); !ok {
		t.Error("color criterion was not evaluated")
	}
	if h.backend.Pipelines() != 0 {
		t.Errorf("%d pipelines still live after run", h.backend.Pipelines())
	}
}

// TestLoopback_WrongColorFails expects red from a green source.
func TestLoopback_WrongColorFails(t *testing.T) {
	h := newHarness(t)
	runner := loopback.NewRunner(h.backend, h.launcher, loopback.WithLoggerFactory(h.lf))

	cfg := loopback.DefaultScenarioConfig()
	cfg.Browser = loopback.BrowserChromium
	red := loopback.ColorRed
	cfg.ExpectedColor = &red
	cfg.PlayDuration = 2 * time.Second

	verdict, err := runner.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if verdict.Passed {
		t.Fatal("scenario passed with the wrong expected color")
	}
	r, _ := verdict.Result(loopback.CriterionColor)
	if r.Passed {
		t.Errorf("color criterion passed: %+v", r)
	}
	if ready, _ := verdict.Result(loopback.CriterionReadiness); !ready.Passed {
		t.Errorf("readiness failed: %+v", ready)
	}
}

// TestLoopback_RedClip feeds a red Y4M clip to the fake camera and judges
// both the play time and the rendered color.
func TestLoopback_RedClip(t *testing.T) {
	h := newHarness(t)
	runner := loopback.NewRunner(h.backend, h.launcher, loopback.WithLoggerFactory(h.lf))

	cfg := loopback.DefaultScenarioConfig()
	cfg.Browser = loopback.BrowserChromium
	cfg.Video = writeSolidY4M(t, "red.y4m", 320, 240, 30, redY, redCb, redCr)
	red := loopback.ColorRed
	cfg.ExpectedColor = &red
	cfg.PlayDuration = 3 * time.Second

	verdict, err := runner.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !verdict.Passed {
		t.Fatalf("scenario failed:\n%s", verdict)
	}
	for _, c := range []loopback.Criterion{loopback.CriterionTiming, loopback.CriterionColor} {
		r, ok := verdict.Result(c)
		if !ok {
			t.Errorf("%s criterion was not evaluated", c)
			continue
		}
		if !r.Passed {
			t.Errorf("%s criterion failed: %+v", c, r)
		}
	}
	if verdict.Evidence.PlayTime <= 0 {
		t.Errorf("play time evidence = %v, want > 0", verdict.Evidence.PlayTime)
	}
}

// TestLoopback_AudioQuality plays a reference WAV through the fake
// microphone and scores the recording with PESQ. Set
// LOOPBACK_AUDIO_REF to a 16 kHz mono speech sample.
func TestLoopback_AudioQuality(t *testing.T) {
	bin := pesqOrSkip(t)
	ref := os.Getenv("LOOPBACK_AUDIO_REF")
	if ref == "" {
		t.Skip("LOOPBACK_AUDIO_REF not set")
	}

	h := newHarness(t)
	runner := loopback.NewRunner(h.backend, h.launcher,
		loopback.WithScorer(quality.PESQ{Bin: bin}),
		loopback.WithLoggerFactory(h.lf),
	)

	cfg := loopback.DefaultScenarioConfig()
	cfg.Browser = loopback.BrowserChromium
	cfg.Audio = ref
	cfg.PlayDuration = 8 * time.Second

	verdict, err := runner.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !verdict.Passed {
		t.Fatalf("scenario failed:\n%s", verdict)
	}
}
