package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/davepeng-0503/dave-bot/internal/types"
	"github.com/stretchr/testify/require"
)

// memWorkspace is an in-memory Workspace
type memWorkspace struct {
	mu    sync.Mutex
	files map[string]string
}

func newMemWorkspace(files map[string]string) *memWorkspace {
	ws := &memWorkspace{files: map[string]string{}}
	for k, v := range files {
		ws.files[k] = v
	}
	return ws
}

func (w *memWorkspace) ListFiles(ctx context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for k := range w.files {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (w *memWorkspace) ReadFile(path string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	content, ok := w.files[path]
	if !ok {
		return "", errors.New("not found: " + path)
	}
	return content, nil
}

func (w *memWorkspace) WriteFile(path, content string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[path] = content
	return nil
}

func (w *memWorkspace) Exists(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.files[path]
	return ok
}

// plannerStep is one scripted planner response
type plannerStep struct {
	plan     *types.Plan
	err      error
	toolLogs []types.ToolLog
}

type fakePlanner struct {
	mu    sync.Mutex
	steps []plannerStep
	calls []types.PlanRequest
}

func (p *fakePlanner) Plan(ctx context.Context, req types.PlanRequest, onTool func(types.ToolLog)) (*types.Plan, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	n := len(p.calls)
	p.mu.Unlock()

	step := p.steps[len(p.steps)-1]
	if n <= len(p.steps) {
		step = p.steps[n-1]
	}
	for _, l := range step.toolLogs {
		onTool(l)
	}
	return step.plan.Clone(), step.err
}

func (p *fakePlanner) Calls() []types.PlanRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.PlanRequest{}, p.calls...)
}

type fakeGenerator struct {
	mu    sync.Mutex
	fn    func(req types.GenerateRequest, call int) (*types.GeneratedFile, error)
	calls []types.GenerateRequest
}

func (g *fakeGenerator) Generate(ctx context.Context, req types.GenerateRequest) (*types.GeneratedFile, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	n := len(g.calls)
	g.mu.Unlock()
	return g.fn(req, n)
}

func (g *fakeGenerator) Calls() []types.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]types.GenerateRequest{}, g.calls...)
}

// echoGenerator writes "generated <path>" for every file
func echoGenerator() *fakeGenerator {
	return &fakeGenerator{fn: func(req types.GenerateRequest, call int) (*types.GeneratedFile, error) {
		return &types.GeneratedFile{
			FilePath:  req.FilePath,
			Code:      "generated " + req.FilePath,
			Summary:   "wrote " + req.FilePath,
			Reasoning: "because",
		}, nil
	}}
}

type fakeVCS struct {
	mu      sync.Mutex
	ops     []string
	prErr   error
	pushErr error
	changed []string
	pr      types.PullRequest
	message string
}

func (v *fakeVCS) record(op string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ops = append(v.ops, op)
}

func (v *fakeVCS) Diff(ctx context.Context, path string) (string, error) {
	v.record("diff:" + path)
	return "--- a/" + path + "\n+++ b/" + path + "\n@@ -0,0 +1 @@\n+generated " + path + "\n", nil
}

func (v *fakeVCS) ChangedFiles(ctx context.Context) ([]string, error) {
	v.record("changed")
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.changed != nil {
		return v.changed, nil
	}
	return []string{"changed.txt"}, nil
}

func (v *fakeVCS) CreateBranch(ctx context.Context, name string) error {
	v.record("branch:" + name)
	return nil
}

func (v *fakeVCS) Commit(ctx context.Context, message string) (string, error) {
	v.record("commit")
	v.mu.Lock()
	v.message = message
	v.mu.Unlock()
	return "abc123", nil
}

func (v *fakeVCS) Push(ctx context.Context, branch string) error {
	v.record("push:" + branch)
	return v.pushErr
}

func (v *fakeVCS) OpenPullRequest(ctx context.Context, pr types.PullRequest) (string, error) {
	v.record("pr")
	v.mu.Lock()
	v.pr = pr
	v.mu.Unlock()
	if v.prErr != nil {
		return "", v.prErr
	}
	return "https://github.com/acme/app/pull/7", nil
}

func (v *fakeVCS) Ops() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string{}, v.ops...)
}

// harness runs an engine on a background goroutine
type harness struct {
	engine    *Engine
	planner   *fakePlanner
	generator *fakeGenerator
	vcs       *fakeVCS
	ws        *memWorkspace
	done      chan error
	finished  chan struct{}
	cancel    context.CancelFunc
}

func newHarness(t *testing.T, opts Options, planner *fakePlanner, generator *fakeGenerator, files map[string]string) *harness {
	t.Helper()
	if opts.Task == "" {
		opts.Task = "add a greeting"
	}
	if opts.VCS.Remote == "" {
		opts.VCS = types.VCSConfig{Remote: "origin", BaseBranch: "main", BranchPrefix: "dave-bot/", Push: true, PullRequest: true}
	}
	h := &harness{
		planner:   planner,
		generator: generator,
		vcs:       &fakeVCS{},
		ws:        newMemWorkspace(files),
		done:      make(chan error, 1),
		finished:  make(chan struct{}),
	}
	h.engine = NewEngine(opts, planner, generator, h.vcs, h.ws)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.done <- h.engine.Run(ctx)
		close(h.finished)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.finished:
		case <-time.After(2 * time.Second):
		}
	})
}

func (h *harness) waitFor(t *testing.T, status types.Status) types.Snapshot {
	t.Helper()
	var snap types.Snapshot
	require.Eventuallyf(t, func() bool {
		snap = h.engine.Snapshot()
		return snap.Status == status
	}, 2*time.Second, 5*time.Millisecond, "status never became %s (last %s)", status, h.engine.Snapshot().Status)
	return snap
}

func (h *harness) waitDone(t *testing.T) {
	t.Helper()
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("engine did not finish, status %s", h.engine.Snapshot().Status)
	}
}

func simplePlan(order ...string) *types.Plan {
	return &types.Plan{
		BranchName:      "dave-bot/feat/greeting",
		Steps:           []string{"write the files"},
		RelevantFiles:   []string{"README.md"},
		GenerationOrder: order,
		Reasoning:       "files depend on each other in this order",
	}
}
