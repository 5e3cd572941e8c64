package tui

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/davepeng-0503/dave-bot/internal/gateway"
	"github.com/davepeng-0503/dave-bot/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu       sync.Mutex
	snap     types.Snapshot
	calls    []string
	approved []string
	text     string
	err      error
}

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeClient) Status(ctx context.Context) (types.Snapshot, error) {
	f.record("status")
	return f.snap, nil
}

func (f *fakeClient) Approve(ctx context.Context, files []string) (types.Status, error) {
	f.record("approve")
	f.approved = files
	return types.StatusGenerating, f.err
}

func (f *fakeClient) Reject(ctx context.Context) (types.Status, error) {
	f.record("reject")
	return types.StatusError, f.err
}

func (f *fakeClient) Feedback(ctx context.Context, text string) (types.Status, error) {
	f.record("feedback")
	f.text = text
	return types.StatusPlanning, f.err
}

func (f *fakeClient) UserInput(ctx context.Context, text string) (types.Status, error) {
	f.record("user_input")
	f.text = text
	return types.StatusGenerating, f.err
}

func reviewSnapshot() types.Snapshot {
	return types.Snapshot{
		Status:  types.StatusPlanReview,
		Version: 2,
		PlanReview: &types.PlanReviewView{
			Status:          types.StatusPlanReview,
			Plan:            "1. Add a health endpoint",
			Reasoning:       "Operators need a liveness probe.",
			BranchName:      "dave-bot/add-health",
			RelevantFiles:   []string{"server.go"},
			FilesToEdit:     []string{"server.go"},
			FilesToCreate:   []types.NewFile{{FilePath: "health.go"}},
			GenerationOrder: []string{"health.go", "server.go"},
		},
	}
}

func questionSnapshot() types.Snapshot {
	return types.Snapshot{
		Status:  types.StatusUserInputRequired,
		Version: 7,
		UserInput: &types.UserInputView{
			Status:      types.StatusUserInputRequired,
			UserRequest: "Which port should the probe use?",
			Origin:      types.StatusPlanning,
		},
	}
}

// update feeds msg to m and returns the new model
func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newReadyModel(t *testing.T, client *fakeClient) Model {
	t.Helper()
	m := New(client, 0)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m, _ = update(t, m, snapshotMsg{snap: client.snap})
	return m
}

func TestPollRendersSnapshot(t *testing.T) {
	client := &fakeClient{snap: reviewSnapshot()}
	m := New(client, 0)
	assert.Equal(t, "Loading...", m.View())

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	msg := m.poll()()
	m, cmd := update(t, m, msg)
	assert.NotNil(t, cmd, "polling continues while the run is live")

	view := m.View()
	assert.Contains(t, view, "plan_review")
	assert.Contains(t, view, "Add a health endpoint")
	assert.Contains(t, view, "dave-bot/add-health")
	assert.Contains(t, view, "health.go")
	assert.Contains(t, view, "a: approve")
}

func TestPollingStopsAtTerminalStatus(t *testing.T) {
	client := &fakeClient{snap: types.Snapshot{
		Status:  types.StatusDone,
		Version: 4,
		Done:    &types.DoneView{Status: types.StatusDone, Message: "Changes committed."},
	}}
	m := New(client, 0)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 30})
	m, cmd := update(t, m, snapshotMsg{snap: client.snap})
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "Changes committed.")
	assert.Contains(t, m.View(), "run finished")
}

func TestPollErrorIsShown(t *testing.T) {
	m := newReadyModel(t, &fakeClient{snap: reviewSnapshot()})
	m, cmd := update(t, m, snapshotMsg{err: errors.New("connection refused")})
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "gateway unreachable: connection refused")
	assert.Contains(t, m.View(), "Add a health endpoint", "last snapshot stays visible")
}

func TestApproveAndReject(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"approve", "a", "approve"},
		{"reject", "x", "reject"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{snap: reviewSnapshot()}
			m := newReadyModel(t, client)

			m, cmd := update(t, m, key(tt.key))
			require.NotNil(t, cmd)
			assert.True(t, m.busy)

			_, second := update(t, m, key(tt.key))
			assert.Nil(t, second, "no second action while one is in flight")

			msg := cmd()
			assert.Equal(t, []string{tt.want}, client.calls)

			m, _ = update(t, m, msg)
			assert.False(t, m.busy)
			assert.Contains(t, m.notice, tt.want+" accepted")
		})
	}
}

func TestActionsIgnoredInWrongStatus(t *testing.T) {
	client := &fakeClient{snap: questionSnapshot()}
	m := newReadyModel(t, client)

	for _, k := range []string{"a", "x", "f", "c"} {
		var cmd tea.Cmd
		m, cmd = update(t, m, key(k))
		assert.Nil(t, cmd, k)
		assert.Equal(t, inputNone, m.mode, k)
	}
	assert.Empty(t, client.calls)
}

func TestFeedbackInput(t *testing.T) {
	client := &fakeClient{snap: reviewSnapshot()}
	m := newReadyModel(t, client)

	m, _ = update(t, m, key("f"))
	require.Equal(t, inputFeedback, m.mode)
	assert.Contains(t, m.View(), "esc: cancel")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, "nothing to send", m.notice)

	m.input.SetValue("also log requests")
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, inputNone, m.mode)

	cmd()
	assert.Equal(t, "also log requests", client.text)
	assert.Contains(t, client.calls, "feedback")
}

func TestApproveWithContextFiles(t *testing.T) {
	client := &fakeClient{snap: reviewSnapshot()}
	m := newReadyModel(t, client)

	m, _ = update(t, m, key("c"))
	require.Equal(t, inputContextFiles, m.mode)
	m.input.SetValue("go.mod, docs/api.md  config.toml")
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	cmd()
	assert.Equal(t, []string{"go.mod", "docs/api.md", "config.toml"}, client.approved)
}

func TestAnswerQuestion(t *testing.T) {
	client := &fakeClient{snap: questionSnapshot()}
	m := newReadyModel(t, client)
	assert.Contains(t, m.View(), "Which port should the probe use?")

	m, _ = update(t, m, key("i"))
	require.Equal(t, inputAnswer, m.mode)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, inputNone, m.mode)

	m, _ = update(t, m, key("i"))
	m.input.SetValue("8081")
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, "8081", client.text)
}

func TestInputClosesWhenStatusMovesOn(t *testing.T) {
	client := &fakeClient{snap: reviewSnapshot()}
	m := newReadyModel(t, client)
	m, _ = update(t, m, key("f"))
	require.Equal(t, inputFeedback, m.mode)

	m, _ = update(t, m, snapshotMsg{snap: types.Snapshot{
		Status:     types.StatusGenerating,
		Version:    3,
		Generating: &types.GeneratingView{Status: types.StatusGenerating},
	}})
	assert.Equal(t, inputNone, m.mode)
}

func TestRefusedActionShowsGatewayMessage(t *testing.T) {
	client := &fakeClient{
		snap: reviewSnapshot(),
		err:  &gateway.APIError{StatusCode: http.StatusConflict, Message: "action \"approve\" is not valid while status is generating"},
	}
	m := newReadyModel(t, client)

	m, cmd := update(t, m, key("a"))
	m, _ = update(t, m, cmd())
	assert.Contains(t, m.notice, "approve refused")
	assert.Contains(t, m.notice, "not valid while status is generating")
}

func TestRenderSnapshotGenerating(t *testing.T) {
	snap := types.Snapshot{
		Status: types.StatusGenerating,
		Generating: &types.GeneratingView{
			Status:          types.StatusGenerating,
			GenerationOrder: []string{"a.go", "b.go"},
			CompletedFiles: []types.FileResult{{
				FilePath: "a.go",
				Summary:  "Adds the handler",
				Diff:     "--- a/a.go\n+++ b/a.go\n@@ -1 +1 @@\n-old\n+new\n",
			}},
			PendingFiles: []string{"b.go"},
			CurrentFile:  "b.go",
			Attempt:      2,
			MaxAttempts:  3,
		},
	}
	out := RenderSnapshot(snap, 80, "*")
	assert.Contains(t, out, "1 of 2 files")
	assert.Contains(t, out, "* b.go")
	assert.Contains(t, out, "attempt 2 of 3")
	assert.Contains(t, out, "Adds the handler")
	assert.Contains(t, out, "+new")
	assert.Equal(t, 1, strings.Count(out, "b.go"), "current file is not listed again as pending")
}

func TestRenderSnapshotPlanningTrimsToolLogs(t *testing.T) {
	logs := make([]types.ToolLog, 20)
	for i := range logs {
		logs[i] = types.ToolLog{ToolName: "read_file", ToolInput: `{"path":"f.go"}`}
	}
	out := RenderSnapshot(types.Snapshot{
		Status:   types.StatusPlanning,
		Planning: &types.PlanningView{Status: types.StatusPlanning, Progress: "Reading the repository", ToolLogs: logs},
	}, 80, "*")
	assert.Contains(t, out, "Reading the repository")
	assert.Contains(t, out, "(5 earlier)")
	assert.Equal(t, maxToolLogLines, strings.Count(out, "read_file"))
}

func TestSplitFiles(t *testing.T) {
	assert.Equal(t, []string{"a.go", "b/c.go"}, splitFiles(" a.go,\n b/c.go ,"))
	assert.Empty(t, splitFiles(" , "))
}
