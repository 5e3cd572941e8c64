package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/davepeng-0503/dave-bot/internal/types"
)

// RunSummary is the final record written when a run reaches a terminal status
type RunSummary struct {
	ID             string       `json:"id"`
	Task           string       `json:"task"`
	Status         types.Status `json:"status"`
	Message        string       `json:"message,omitempty"`
	Error          string       `json:"error,omitempty"`
	Branch         string       `json:"branch,omitempty"`
	CommitMessage  string       `json:"commit_message,omitempty"`
	PullRequestURL string       `json:"pull_request_url,omitempty"`
	Files          []string     `json:"files"`
	StartTime      time.Time    `json:"start_time"`
	EndTime        time.Time    `json:"end_time"`
}

// Artifacts writes a run's audit trail. The files are never read back.
// A nil *Artifacts discards everything.
type Artifacts struct {
	Dir string
}

// NewArtifacts creates the run directory
func NewArtifacts(dir string) (*Artifacts, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run dir: %w", err)
	}
	return &Artifacts{Dir: dir}, nil
}

// SaveTask records the task description
func (a *Artifacts) SaveTask(task string) error {
	if a == nil {
		return nil
	}
	if err := os.WriteFile(filepath.Join(a.Dir, "task.txt"), []byte(task), 0644); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// SavePlan records the n-th accepted plan (1-based)
func (a *Artifacts) SavePlan(n int, plan *types.Plan) error {
	if a == nil {
		return nil
	}
	return a.writeJSON(filepath.Join("plans", fmt.Sprintf("%03d.json", n)), plan)
}

// SaveFileResult records the i-th generated file (0-based)
func (a *Artifacts) SaveFileResult(i int, result types.FileResult) error {
	if a == nil {
		return nil
	}
	return a.writeJSON(filepath.Join("files", fmt.Sprintf("%03d.json", i+1)), result)
}

// SaveSummary records the terminal outcome
func (a *Artifacts) SaveSummary(summary RunSummary) error {
	if a == nil {
		return nil
	}
	return a.writeJSON("summary.json", summary)
}

func (a *Artifacts) writeJSON(rel string, v any) error {
	path := filepath.Join(a.Dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", rel, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return nil
}
