package model

import (
	"errors"
	"fmt"
)

// Failure kinds. Every one of them aborts the build; match with errors.Is.
var (
	ErrIntegrity         = errors.New("integrity check failed")
	ErrTransport         = errors.New("fetch failed")
	ErrExtraction        = errors.New("extraction failed")
	ErrExternalTool      = errors.New("external tool failed")
	ErrPatch             = errors.New("patch failed")
	ErrBindingGeneration = errors.New("binding generation failed")
	ErrShimCompile       = errors.New("shim compilation failed")
)

// StageError ties a failure to the pipeline stage that produced it.
type StageError struct {
	Stage string
	Kind  error
	Err   error
}

// Fail builds a StageError.
func Fail(stage string, kind error, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// Failf builds a StageError from a format string.
func Failf(stage string, kind error, format string, args ...interface{}) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

// Is matches the failure kind as well as anything wrapped by Err.
func (e *StageError) Is(target error) bool {
	return target == e.Kind
}

func (e *StageError) Unwrap() error { return e.Err }
