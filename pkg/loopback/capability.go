package loopback

import (
	"context"
	"time"
)

// PipelineFactory creates media pipelines on a media backend.
type PipelineFactory interface {
	NewPipeline(ctx context.Context) (Pipeline, error)
}

// Pipeline is a media-processing graph owning its endpoints.
type Pipeline interface {
	ID() string
	NewEndpoint(ctx context.Context, kind EndpointKind) (Endpoint, error)

	// Release tears the pipeline down together with every endpoint it
	// owns. Calling it more than once is a no-op.
	Release() error
}

// Endpoint is a media I/O node inside a Pipeline.
type Endpoint interface {
	ID() string

	// Connect routes media received by this endpoint to sink.
	// Connecting an endpoint to itself loops media back to its client.
	Connect(sink Endpoint) error

	// ProcessOffer negotiates a client offer and returns the answer SDP.
	ProcessOffer(ctx context.Context, offerSDP string) (string, error)
}

// SessionFactory starts driven client sessions.
type SessionFactory interface {
	NewSession(ctx context.Context, desc SessionDescriptor) (SessionClient, error)
}

// SessionClient is one driven remote client attached to an Endpoint.
type SessionClient interface {
	// Subscribe starts recording the named lifecycle event.
	Subscribe(event string) error

	// Connect attaches the session to ep, sending the selected channels.
	Connect(ctx context.Context, ep Endpoint, ch Channel) error

	// WaitFor blocks until event fires or timeout elapses.
	// A timeout returns false and is not an error.
	WaitFor(event string, timeout time.Duration) bool

	// CurrentTime returns the playback position of the remote stream in seconds.
	CurrentTime(ctx context.Context) (float64, error)

	// SampledColor returns the currently rendered color of the remote stream.
	SampledColor(ctx context.Context) (Color, error)

	// RecordedAudio returns the path of the recorded capture, or
	// ErrNoRecording when the session was not asked to record.
	RecordedAudio(ctx context.Context) (string, error)

	// Release frees every resource held by the session. It is safe to
	// call more than once and after a partially failed start.
	Release() error
}

// QualityScorer computes an objective audio quality score for a degraded
// recording against its reference. Implementations may be slow.
type QualityScorer interface {
	Score(ctx context.Context, referencePath, degradedPath string) (float64, error)
}

// ScorerFunc adapts a function to QualityScorer.
type ScorerFunc func(ctx context.Context, referencePath, degradedPath string) (float64, error)

// Score calls f.
func (f ScorerFunc) Score(ctx context.Context, referencePath, degradedPath string) (float64, error) {
	return f(ctx, referencePath, degradedPath)
}
