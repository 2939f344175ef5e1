package loopback

import (
	"context"
	"fmt"
	"os"

	"github.com/pion/logging"

	"github.com/thesyncim/loopback/pkg/loopback/internal"
)

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithScorer sets the audio quality scorer. Required for scenarios with
// an audio reference.
func WithScorer(s QualityScorer) RunnerOption {
	return func(r *Runner) {
		r.scorer = s
	}
}

// WithClock sets the clock used to hold the play window.
// Default: internal.MonotonicClock
func WithClock(c internal.Clock) RunnerOption {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithLoggerFactory sets the factory the runner's logger is created from.
func WithLoggerFactory(f logging.LoggerFactory) RunnerOption {
	return func(r *Runner) {
		r.loggerFactory = f
	}
}

// Runner builds a loopback topology, drives one session through it and
// judges what the session observed.
type Runner struct {
	pipelines     PipelineFactory
	sessions      SessionFactory
	scorer        QualityScorer
	clock         internal.Clock
	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger
}

// NewRunner creates a Runner on top of a media backend and a session driver.
func NewRunner(pipelines PipelineFactory, sessions SessionFactory, opts ...RunnerOption) *Runner {
	r := &Runner{
		pipelines: pipelines,
		sessions:  sessions,
		clock:     internal.MonotonicClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.loggerFactory == nil {
		r.loggerFactory = logging.NewDefaultLoggerFactory()
	}
	r.log = r.loggerFactory.NewLogger("loopback")
	return r
}

// Run executes one scenario.
//
// The returned Verdict carries every evaluated criterion. A non-nil error
// means the run could not be judged: *SetupError for topology or session
// construction, a wrapped error for evidence sampling or scoring. The
// session and the pipeline are released on every path.
func (r *Runner) Run(ctx context.Context, cfg ScenarioConfig) (*Verdict, error) {
	if err := cfg.Validate(); err != nil {
		return nil, setupErr(StageConfig, err)
	}
	if cfg.Audio != "" && r.scorer == nil {
		return nil, setupErr(StageConfig, fmt.Errorf("%w: audio reference needs a quality scorer", ErrInvalidConfig))
	}

	workDir := cfg.WorkDir
	if workDir == "" && (isURL(cfg.Video) || isURL(cfg.Audio)) {
		dir, err := os.MkdirTemp("", "loopback-*")
		if err != nil {
			return nil, setupErr(StageMedia, err)
		}
		defer os.RemoveAll(dir)
		workDir = dir
	}
	videoPath, err := ResolveMedia(ctx, cfg.Video, workDir)
	if err != nil {
		return nil, setupErr(StageMedia, err)
	}
	audioPath, err := ResolveMedia(ctx, cfg.Audio, workDir)
	if err != nil {
		return nil, setupErr(StageMedia, err)
	}

	pipeline, err := r.pipelines.NewPipeline(ctx)
	if err != nil {
		return nil, setupErr(StagePipeline, err)
	}
	defer func() {
		if err := pipeline.Release(); err != nil {
			r.log.Warnf("pipeline %s release failed: %v", pipeline.ID(), err)
		}
	}()

	endpoint, err := pipeline.NewEndpoint(ctx, EndpointWebRTC)
	if err != nil {
		return nil, setupErr(StageEndpoint, err)
	}
	if err := endpoint.Connect(endpoint); err != nil {
		return nil, setupErr(StageEndpoint, fmt.Errorf("loopback connect: %w", err))
	}

	desc := cfg.Descriptor(videoPath, audioPath)
	session, err := r.sessions.NewSession(ctx, desc)
	if err != nil {
		return nil, setupErr(StageSession, err)
	}
	defer func() {
		if err := session.Release(); err != nil {
			r.log.Warnf("session release failed: %v", err)
		}
	}()

	// Subscribe before attaching: a "playing" fired before the
	// subscription is lost.
	if err := session.Subscribe(EventPlaying); err != nil {
		return nil, setupErr(StageSession, err)
	}
	if err := session.Connect(ctx, endpoint, desc.Channel); err != nil {
		return nil, setupErr(StageConnect, err)
	}
	r.log.Infof("session attached to endpoint %s (%s), waiting for %q", endpoint.ID(), desc.Channel, EventPlaying)

	verdict := newVerdict()
	if !session.WaitFor(EventPlaying, cfg.ReadyTimeout) {
		verdict.add(CriterionResult{
			Criterion: CriterionReadiness,
			Expected:  fmt.Sprintf("%q within %v", EventPlaying, cfg.ReadyTimeout),
			Observed:  "timeout",
			Message:   fmt.Sprintf("timeout waiting for %q event (waited %v)", EventPlaying, cfg.ReadyTimeout),
		})
		r.log.Warnf("readiness timeout after %v", cfg.ReadyTimeout)
		return verdict, nil
	}
	verdict.add(CriterionResult{
		Criterion: CriterionReadiness,
		Passed:    true,
		Expected:  fmt.Sprintf("%q within %v", EventPlaying, cfg.ReadyTimeout),
		Observed:  EventPlaying,
	})

	r.log.Debugf("holding play window of %v", cfg.PlayDuration)
	r.clock.Sleep(cfg.PlayDuration)

	if cfg.TimingTolerance > 0 && cfg.hasInput() {
		observed, err := session.CurrentTime(ctx)
		if err != nil {
			return nil, fmt.Errorf("sampling play time: %w", err)
		}
		verdict.Evidence.PlayTime = observed
		verdict.add(judgeTiming(cfg.PlayDuration.Seconds(), observed, cfg.TimingTolerance.Seconds()))
	}

	if cfg.ExpectedColor != nil {
		observed, err := session.SampledColor(ctx)
		if err != nil {
			return nil, fmt.Errorf("sampling color: %w", err)
		}
		verdict.Evidence.Color = &observed
		verdict.add(judgeColor(*cfg.ExpectedColor, observed, cfg.ColorTolerance))
	}

	if audioPath != "" {
		recorded, err := session.RecordedAudio(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching recorded audio: %w", err)
		}
		score, err := r.scorer.Score(ctx, audioPath, recorded)
		if err != nil {
			return nil, fmt.Errorf("scoring audio: %w", err)
		}
		verdict.Evidence.AudioPath = recorded
		verdict.Evidence.AudioScore = score
		verdict.add(judgeAudio(cfg.MinAudioScore, score))
	}

	if verdict.Passed {
		r.log.Infof("scenario passed (%d criteria)", len(verdict.Results))
	} else {
		r.log.Warnf("scenario failed: %d of %d criteria", len(verdict.Failures()), len(verdict.Results))
	}
	return verdict, nil
}

func judgeTiming(expected, observed, tolerance float64) CriterionResult {
	r := CriterionResult{
		Criterion: CriterionTiming,
		Passed:    TimingClose(expected, observed, tolerance),
		Expected:  fmt.Sprintf("%gs ±%gs", expected, tolerance),
		Observed:  fmt.Sprintf("%gs", observed),
	}
	if !r.Passed {
		r.Message = fmt.Sprintf("play time out of tolerance (expected %gs ±%gs, observed %gs)", expected, tolerance, observed)
	}
	return r
}

func judgeColor(expected, observed Color, tolerance float64) CriterionResult {
	r := CriterionResult{
		Criterion: CriterionColor,
		Passed:    ColorClose(expected, observed, tolerance),
		Expected:  fmt.Sprintf("%s ±%g", expected, tolerance),
		Observed:  observed.String(),
	}
	if !r.Passed {
		r.Message = fmt.Sprintf("rendered color %s differs from expected %s (distance %.1f > %g)",
			observed, expected, ColorDistance(expected, observed), tolerance)
	}
	return r
}

func judgeAudio(minScore, score float64) CriterionResult {
	r := CriterionResult{
		Criterion: CriterionAudio,
		Passed:    score >= minScore,
		Expected:  fmt.Sprintf(">= %g", minScore),
		Observed:  fmt.Sprintf("%g", score),
	}
	if !r.Passed {
		r.Message = fmt.Sprintf("bad perceived audio quality (expected >= %g, observed %g)", minScore, score)
	}
	return r
}
