package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	// KindStepFailure and KindLayerFailure degrade a pass but never end a session.
	KindStepFailure  ErrorKind = "step_failure"
	KindLayerFailure ErrorKind = "layer_failure"
	// KindSafetyHalt and KindConfiguration are terminal and surface to callers.
	KindSafetyHalt    ErrorKind = "safety_halt"
	KindConfiguration ErrorKind = "configuration"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionTerminal   = errors.New("session already finished")
	ErrSessionRunning    = errors.New("session is already running")
	ErrEmptyQuery        = errors.New("query is required")
	ErrUnknownCapability = errors.New("unknown knowledge algorithm")
	ErrInvalidTarget     = errors.New("target confidence must be in (0, 1]")
)

// PipelineError carries the kind of failure and the operation that raised it.
type PipelineError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Terminal reports whether the error ends the session.
func (e *PipelineError) Terminal() bool {
	return e.Kind == KindSafetyHalt || e.Kind == KindConfiguration
}

func NewConfigurationError(op string, err error) error {
	return &PipelineError{Kind: KindConfiguration, Op: op, Err: err}
}

func NewSafetyHalt(op string, err error) error {
	return &PipelineError{Kind: KindSafetyHalt, Op: op, Err: err}
}

func NewStepFailure(op string, err error) error {
	return &PipelineError{Kind: KindStepFailure, Op: op, Err: err}
}

func NewLayerFailure(op string, err error) error {
	return &PipelineError{Kind: KindLayerFailure, Op: op, Err: err}
}

// KindOf returns the ErrorKind of err, or "" if err is not a PipelineError.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
