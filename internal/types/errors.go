package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput is returned when an action's payload is unusable
var ErrInvalidInput = errors.New("invalid input")

// PlanningError is returned when the planner cannot produce a usable plan
type PlanningError struct {
	Message string
	Err     error
}

func (e *PlanningError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *PlanningError) Unwrap() error { return e.Err }

// GenerationError is returned when the generator fails outright for a file
type GenerationError struct {
	FilePath string
	Message  string
	Err      error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("generation failed for %s: %s", e.FilePath, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.Err }

// InsufficientContextError signals the generator needs more files before it can act
type InsufficientContextError struct {
	FilePath string
	Files    []string
	Reason   string
}

func (e *InsufficientContextError) Error() string {
	msg := "insufficient context for " + e.FilePath
	if len(e.Files) > 0 {
		msg += " (needs " + strings.Join(e.Files, ", ") + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// UserInputRequiredError signals the planner needs a direct answer from the human
type UserInputRequiredError struct {
	Question string
}

func (e *UserInputRequiredError) Error() string {
	return "user input required: " + e.Question
}

// VcsError wraps a failed version-control operation
type VcsError struct {
	Op  string
	Err error
}

func (e *VcsError) Error() string {
	return fmt.Sprintf("vcs %s failed: %v", e.Op, e.Err)
}

func (e *VcsError) Unwrap() error { return e.Err }

// InvalidActionError is returned when an action is not accepted in the current status
type InvalidActionError struct {
	Action string
	Status Status
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("action %q is not valid while status is %s", e.Action, e.Status)
}
