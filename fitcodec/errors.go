package fitcodec

import (
	"errors"
	"fmt"
)

// Stages a decode can fail in.
const (
	StageHeader    = "header"
	StageStructure = "structure"
	StageDecode    = "decode"
	StageContent   = "content"
)

// ErrInvalidPlan is wrapped by every validation failure of a planned workout.
var ErrInvalidPlan = errors.New("invalid planned workout")

// ParseError reports a FIT stream that could not be decoded in full. No
// partial result accompanies it.
type ParseError struct {
	Stage string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse fit (%s): %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseErrorf(stage, format string, args ...any) *ParseError {
	return &ParseError{Stage: stage, Err: fmt.Errorf(format, args...)}
}

func invalidPlanf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPlan, fmt.Sprintf(format, args...))
}
