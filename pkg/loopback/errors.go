package loopback

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig   = errors.New("invalid scenario configuration")
	ErrUnsupported     = errors.New("operation not supported by session")
	ErrNoRecording     = errors.New("no audio recording available")
	ErrReleased        = errors.New("already released")
	ErrUnknownEndpoint = errors.New("unknown endpoint")
)

// Setup stages reported by SetupError.
const (
	StageConfig   = "config"
	StageMedia    = "media"
	StagePipeline = "pipeline"
	StageEndpoint = "endpoint"
	StageSession  = "session"
	StageConnect  = "connect"
)

// SetupError is an infrastructure failure that aborted a run before any
// criterion could be judged.
type SetupError struct {
	Stage string
	Err   error
}

// Error implements the error interface
func (e *SetupError) Error() string {
	return fmt.Sprintf("setup failed at %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error
func (e *SetupError) Unwrap() error {
	return e.Err
}

// IsSetupError checks if err is, or wraps, a SetupError.
func IsSetupError(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}

func setupErr(stage string, err error) error {
	return &SetupError{Stage: stage, Err: err}
}
