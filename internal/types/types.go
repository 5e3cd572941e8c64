package types

import (
	"fmt"
	"strings"
)

// Status is the orchestrator's position in the run workflow
type Status string

const (
	StatusPlanning          Status = "planning"
	StatusPlanReview        Status = "plan_review"
	StatusGenerating        Status = "generating"
	StatusUserInputRequired Status = "user_input_required"
	StatusDone              Status = "done"
	StatusError             Status = "error"
)

func (s Status) String() string {
	return string(s)
}

// Terminal reports whether no further transitions can leave s
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusPlanning, StatusPlanReview, StatusGenerating,
		StatusUserInputRequired, StatusDone, StatusError:
		return true
	default:
		return false
	}
}

// NewFile describes a file the plan intends to create
type NewFile struct {
	FilePath           string   `json:"file_path"`
	Reasoning          string   `json:"reasoning"`
	ContentSuggestions []string `json:"content_suggestions,omitempty"`
}

// Plan is the planner's structured output
type Plan struct {
	BranchName      string    `json:"branch_name"`
	Steps           []string  `json:"plan"`
	RelevantFiles   []string  `json:"relevant_files"`
	FilesToEdit     []string  `json:"files_to_edit"`
	FilesToCreate   []NewFile `json:"files_to_create"`
	GenerationOrder []string  `json:"generation_order"`
	Reasoning       string    `json:"reasoning"`
	UseFastModel    bool      `json:"use_flash_model"`
}

// PlanText renders the plan steps as a numbered list
func (p *Plan) PlanText() string {
	var b strings.Builder
	for i, step := range p.Steps {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, step)
	}
	return b.String()
}

// NewFileFor returns the creation entry for path, if any
func (p *Plan) NewFileFor(path string) *NewFile {
	for i := range p.FilesToCreate {
		if p.FilesToCreate[i].FilePath == path {
			return &p.FilesToCreate[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the plan
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	c.Steps = cloneStrings(p.Steps)
	c.RelevantFiles = cloneStrings(p.RelevantFiles)
	c.FilesToEdit = cloneStrings(p.FilesToEdit)
	c.GenerationOrder = cloneStrings(p.GenerationOrder)
	c.FilesToCreate = make([]NewFile, len(p.FilesToCreate))
	for i, f := range p.FilesToCreate {
		f.ContentSuggestions = cloneStrings(f.ContentSuggestions)
		c.FilesToCreate[i] = f
	}
	return &c
}

// ToolLog records one repository tool invocation made while planning
type ToolLog struct {
	ToolName  string `json:"tool_name"`
	ToolInput string `json:"tool_input"`
}

// FileResult is the outcome of generating a single file
type FileResult struct {
	FilePath  string `json:"file_path"`
	Summary   string `json:"summary"`
	Reasoning string `json:"reasoning"`
	Diff      string `json:"diff"`
}

// GeneratedFile is the generator's structured output for one file
type GeneratedFile struct {
	FilePath      string   `json:"file_path"`
	Code          string   `json:"code"`
	Summary       string   `json:"summary"`
	Reasoning     string   `json:"reasoning"`
	FutureContext []string `json:"needed_context_for_future_files,omitempty"`
}

// ContextFile is a file's content supplied alongside a request
type ContextFile struct {
	Path    string
	Content string
}

// Clarification is a question put to the human and their answer
type Clarification struct {
	Question string
	Answer   string
}

// PlanRequest carries everything the planner sees for one invocation
type PlanRequest struct {
	Task           string
	AppDescription string
	Guidelines     string
	Files          []string
	Context        []ContextFile
	Feedback       string
	Clarifications []Clarification
	Strict         bool
}

// GenerateRequest carries everything the generator sees for one file
type GenerateRequest struct {
	Task           string
	AppDescription string
	Guidelines     string
	FilePath       string
	IsNew          bool
	Original       string
	Plan           *Plan
	Context        []ContextFile
	Completed      []FileResult
	Notes          []string
	Strict         bool
}

// PullRequest describes a pull request to open
type PullRequest struct {
	Title string
	Body  string
	Head  string
	Base  string
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
