package types

import (
	"encoding/json"
	"fmt"
)

// PlanningView is the snapshot payload while the planner runs
type PlanningView struct {
	Status   Status    `json:"status"`
	Progress string    `json:"progress"`
	ToolLogs []ToolLog `json:"tool_logs"`
}

// PlanReviewView is the snapshot payload while a plan awaits the human
type PlanReviewView struct {
	Status           Status    `json:"status"`
	Plan             string    `json:"plan"`
	Reasoning        string    `json:"reasoning"`
	BranchName       string    `json:"branch_name"`
	RelevantFiles    []string  `json:"relevant_files"`
	FilesToEdit      []string  `json:"files_to_edit"`
	FilesToCreate    []NewFile `json:"files_to_create"`
	GenerationOrder  []string  `json:"generation_order"`
	AllFiles         []string  `json:"all_files"`
	UserContextFiles []string  `json:"user_context_files"`
}

// UserInputView is the snapshot payload while a question awaits an answer
type UserInputView struct {
	Status      Status `json:"status"`
	UserRequest string `json:"user_request"`
	Origin      Status `json:"origin"`
	FilePath    string `json:"file_path,omitempty"`
}

// GeneratingView is the snapshot payload while files are produced
type GeneratingView struct {
	Status          Status       `json:"status"`
	GenerationOrder []string     `json:"generation_order"`
	CompletedFiles  []FileResult `json:"completed_files"`
	PendingFiles    []string     `json:"pending_files"`
	CurrentFile     string       `json:"current_file,omitempty"`
	Attempt         int          `json:"attempt"`
	MaxAttempts     int          `json:"max_attempts"`
}

// DoneView is the snapshot payload of a successful run
type DoneView struct {
	Status         Status `json:"status"`
	Message        string `json:"message"`
	CommitMessage  string `json:"commit_message,omitempty"`
	PullRequestURL string `json:"pull_request_url,omitempty"`
}

// ErrorView is the snapshot payload of a failed run
type ErrorView struct {
	Status Status `json:"status"`
	Error  string `json:"error"`
}

// Snapshot is a consistent, immutable view of the run state.
// Exactly one payload pointer is set, selected by Status.
type Snapshot struct {
	Status  Status
	Version uint64

	Planning   *PlanningView
	PlanReview *PlanReviewView
	UserInput  *UserInputView
	Generating *GeneratingView
	Done       *DoneView
	Error      *ErrorView
}

func (s Snapshot) payload() (any, error) {
	var v any
	switch s.Status {
	case StatusPlanning:
		v = s.Planning
	case StatusPlanReview:
		v = s.PlanReview
	case StatusUserInputRequired:
		v = s.UserInput
	case StatusGenerating:
		v = s.Generating
	case StatusDone:
		v = s.Done
	case StatusError:
		v = s.Error
	default:
		return nil, fmt.Errorf("unknown status %q", s.Status)
	}
	return v, nil
}

// MarshalJSON encodes only the payload that matches Status
func (s Snapshot) MarshalJSON() ([]byte, error) {
	v, err := s.payload()
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// UnmarshalJSON decodes a status-keyed payload into the matching variant
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var head struct {
		Status Status `json:"status"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	if !head.Status.Valid() {
		return fmt.Errorf("unknown status %q", head.Status)
	}

	*s = Snapshot{Status: head.Status}
	var target any
	switch head.Status {
	case StatusPlanning:
		s.Planning = &PlanningView{}
		target = s.Planning
	case StatusPlanReview:
		s.PlanReview = &PlanReviewView{}
		target = s.PlanReview
	case StatusUserInputRequired:
		s.UserInput = &UserInputView{}
		target = s.UserInput
	case StatusGenerating:
		s.Generating = &GeneratingView{}
		target = s.Generating
	case StatusDone:
		s.Done = &DoneView{}
		target = s.Done
	case StatusError:
		s.Error = &ErrorView{}
		target = s.Error
	}
	return json.Unmarshal(data, target)
}
