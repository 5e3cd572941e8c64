package orchestrator

import (
	"context"

	"github.com/davepeng-0503/dave-bot/internal/types"
)

// Planner produces a plan for a task.
// It may return *types.UserInputRequiredError to ask the human a question.
type Planner interface {
	Plan(ctx context.Context, req types.PlanRequest, onTool func(types.ToolLog)) (*types.Plan, error)
}

// Generator produces the new content of one file.
// It returns *types.InsufficientContextError when it needs more files.
type Generator interface {
	Generate(ctx context.Context, req types.GenerateRequest) (*types.GeneratedFile, error)
}

// VCS persists the generated changes
type VCS interface {
	Diff(ctx context.Context, path string) (string, error)
	ChangedFiles(ctx context.Context) ([]string, error)
	CreateBranch(ctx context.Context, name string) error
	Commit(ctx context.Context, message string) (string, error)
	Push(ctx context.Context, branch string) error
	OpenPullRequest(ctx context.Context, pr types.PullRequest) (string, error)
}

// Workspace is the repository file surface the engine reads and writes
type Workspace interface {
	ListFiles(ctx context.Context) ([]string, error)
	ReadFile(path string) (string, error)
	WriteFile(path, content string) error
	Exists(path string) bool
}
