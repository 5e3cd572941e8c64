package orchestrator

import (
	"sync"

	"github.com/davepeng-0503/dave-bot/internal/types"
)

// runData is the mutable record behind RunState. Only touched under RunState.mu.
type runData struct {
	status   types.Status
	progress string

	plan     *types.Plan
	allFiles []string
	toolLogs []types.ToolLog

	generationOrder []string
	completed       []types.FileResult

	userContextFiles []string
	feedback         string
	clarifications   []types.Clarification
	questionsAsked   int

	userInputRequest string
	userInputAnswer  string
	inputOrigin      types.Status

	// In-flight file of the generating loop
	currentFile  string
	attempt      int
	maxAttempts  int
	extraContext []string
	notes        []string
	requested    []string

	errMsg         string
	doneMessage    string
	commitMessage  string
	pullRequestURL string
}

// RunState is the single versioned record of a run's progress.
// Every read and write goes through its lock; readers get copies.
type RunState struct {
	mu      sync.RWMutex
	version uint64
	data    runData
}

// NewRunState creates a run state positioned at the start of planning
func NewRunState(maxAttempts int) *RunState {
	return &RunState{
		data: runData{
			status:      types.StatusPlanning,
			progress:    "Analyzing repository",
			maxAttempts: maxAttempts,
		},
	}
}

// Status returns the current status
func (r *RunState) Status() types.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.status
}

// Version increments on every accepted change
func (r *RunState) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// apply runs fn under the write lock. If fn returns an error the state is
// left untouched and the version does not move, so fn must validate before
// it mutates.
func (r *RunState) apply(fn func(d *runData) error) (from, to types.Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	from = r.data.status
	if err := fn(&r.data); err != nil {
		return from, from, err
	}
	r.version++
	return from, r.data.status, nil
}

// read runs fn under the read lock
func (r *RunState) read(fn func(d *runData)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(&r.data)
}

// Snapshot returns a consistent copy shaped by the current status
func (r *RunState) Snapshot() types.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d := &r.data
	snap := types.Snapshot{Status: d.status, Version: r.version}

	switch d.status {
	case types.StatusPlanning:
		snap.Planning = &types.PlanningView{
			Status:   d.status,
			Progress: d.progress,
			ToolLogs: append([]types.ToolLog{}, d.toolLogs...),
		}
	case types.StatusPlanReview:
		view := &types.PlanReviewView{
			Status:           d.status,
			RelevantFiles:    []string{},
			FilesToEdit:      []string{},
			FilesToCreate:    []types.NewFile{},
			GenerationOrder:  []string{},
			AllFiles:         copyStrings(d.allFiles),
			UserContextFiles: copyStrings(d.userContextFiles),
		}
		if p := d.plan.Clone(); p != nil {
			view.Plan = p.PlanText()
			view.Reasoning = p.Reasoning
			view.BranchName = p.BranchName
			view.RelevantFiles = nonNil(p.RelevantFiles)
			view.FilesToEdit = nonNil(p.FilesToEdit)
			view.GenerationOrder = nonNil(p.GenerationOrder)
			if p.FilesToCreate != nil {
				view.FilesToCreate = p.FilesToCreate
			}
		}
		snap.PlanReview = view
	case types.StatusUserInputRequired:
		snap.UserInput = &types.UserInputView{
			Status:      d.status,
			UserRequest: d.userInputRequest,
			Origin:      d.inputOrigin,
		}
		if d.inputOrigin == types.StatusGenerating {
			snap.UserInput.FilePath = d.currentFile
		}
	case types.StatusGenerating:
		snap.Generating = &types.GeneratingView{
			Status:          d.status,
			GenerationOrder: copyStrings(d.generationOrder),
			CompletedFiles:  append([]types.FileResult{}, d.completed...),
			PendingFiles:    d.pendingFiles(),
			CurrentFile:     d.currentFile,
			Attempt:         d.attempt,
			MaxAttempts:     d.maxAttempts,
		}
	case types.StatusDone:
		snap.Done = &types.DoneView{
			Status:         d.status,
			Message:        d.doneMessage,
			CommitMessage:  d.commitMessage,
			PullRequestURL: d.pullRequestURL,
		}
	case types.StatusError:
		snap.Error = &types.ErrorView{
			Status: d.status,
			Error:  d.errMsg,
		}
	}

	return snap
}

// pendingFiles is the generation order minus the completed prefix
func (d *runData) pendingFiles() []string {
	if len(d.completed) >= len(d.generationOrder) {
		return []string{}
	}
	return copyStrings(d.generationOrder[len(d.completed):])
}

// nextFile returns the first file not yet generated
func (d *runData) nextFile() (string, bool) {
	if len(d.completed) >= len(d.generationOrder) {
		return "", false
	}
	return d.generationOrder[len(d.completed)], true
}

func (d *runData) fail(msg string) {
	d.status = types.StatusError
	d.errMsg = msg
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

// addUnique appends items not already present, preserving order
func addUnique(list []string, items ...string) []string {
	seen := make(map[string]bool, len(list))
	for _, s := range list {
		seen[s] = true
	}
	for _, s := range items {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		list = append(list, s)
	}
	return list
}
