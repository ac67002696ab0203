package session

import (
	"errors"
	"fmt"
)

// Step names a suspension point that can fail
type Step string

const (
	StepAccept    Step = "accept"
	StepResolve   Step = "resolve"
	StepConnect   Step = "connect"
	StepHandshake Step = "handshake"
	StepWrite     Step = "write"
	StepRead      Step = "read"
	StepClose     Step = "close"
)

// StepError is a failure attributed to the step that raised it
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed", e.Step)
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Is matches the step sentinels below, so errors.Is(err, ErrHandshake) works on any wrapped StepError
func (e *StepError) Is(target error) bool {
	t, ok := target.(*StepError)
	return ok && t.Err == nil && t.Step == e.Step
}

// Sentinels for errors.Is, one per step
var (
	ErrAccept    = &StepError{Step: StepAccept}
	ErrResolve   = &StepError{Step: StepResolve}
	ErrConnect   = &StepError{Step: StepConnect}
	ErrHandshake = &StepError{Step: StepHandshake}
	ErrWrite     = &StepError{Step: StepWrite}
	ErrRead      = &StepError{Step: StepRead}
	ErrClose     = &StepError{Step: StepClose}
)

// ErrAlreadyStarted is returned when Run is called more than once
var ErrAlreadyStarted = errors.New("session already started")

// FailedStep returns the step recorded in err, if any
func FailedStep(err error) (Step, bool) {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step, true
	}
	return "", false
}
