package claude

import (
	"context"
	"strings"
	"testing"

	"github.com/davepeng-0503/dave-bot/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPlan() map[string]any {
	return map[string]any{
		"branch_name":      "dave-bot/feat/config-env",
		"plan":             []string{"add env loading", "call it from main"},
		"relevant_files":   []string{"cmd/app/main.go"},
		"files_to_edit":    []string{"cmd/app/main.go"},
		"files_to_create":  []map[string]any{{"file_path": "internal/config/env.go", "reasoning": "env loader"}},
		"generation_order": []string{"internal/config/env.go", "cmd/app/main.go"},
		"reasoning":        "env first, then the caller",
		"use_flash_model":  true,
	}
}

func newTestPlanner(t *testing.T, f *fakeMessages) *Planner {
	t.Helper()
	p, err := NewPlanner(testClient(f), NewToolExecutor(testRepo(), nil), t.TempDir(), 5)
	require.NoError(t, err)
	return p
}

func TestPlannerProducesPlan(t *testing.T) {
	f := &fakeMessages{}
	f.responses = append(f.responses,
		toolReply(t, map[string]any{"name": "list_directory", "input": map[string]any{}}),
		jsonReply(t, validPlan()),
	)
	p := newTestPlanner(t, f)

	var logs []types.ToolLog
	plan, err := p.Plan(context.Background(), types.PlanRequest{
		Task:           "load config from env",
		AppDescription: "a demo app",
		Files:          []string{"README.md", "cmd/app/main.go"},
		Feedback:       "keep main small",
		Clarifications: []types.Clarification{{Question: "which vars?", Answer: "APP_PORT"}},
		Strict:         true,
	}, func(l types.ToolLog) { logs = append(logs, l) })
	require.NoError(t, err)

	assert.Equal(t, []string{"internal/config/env.go", "cmd/app/main.go"}, plan.GenerationOrder)
	assert.Equal(t, "env loader", plan.FilesToCreate[0].Reasoning)
	assert.True(t, plan.UseFastModel)
	require.Len(t, logs, 1)
	assert.Equal(t, "list_directory", logs[0].ToolName)

	req := f.Requests()[0]
	system := req.System[0].Text
	assert.Contains(t, system, "Change only what the task requires")
	assert.Contains(t, system, `"generation_order"`)
	assert.NotContains(t, system, "{{SCHEMA}}")

	user := req.Messages[0].Content[0].OfText.Text
	for _, want := range []string{"load config from env", "a demo app", "cmd/app/main.go", "keep main small", "Q: which vars?\nA: APP_PORT"} {
		assert.Contains(t, user, want)
	}
}

func TestPlannerQuestion(t *testing.T) {
	f := &fakeMessages{}
	f.responses = append(f.responses, jsonReply(t, map[string]any{"user_request": "Which database?"}))

	_, err := newTestPlanner(t, f).Plan(context.Background(), types.PlanRequest{Task: "x"}, func(types.ToolLog) {})
	var q *types.UserInputRequiredError
	require.ErrorAs(t, err, &q)
	assert.Equal(t, "Which database?", q.Question)
}

func TestPlannerRepairsInvalidReply(t *testing.T) {
	f := &fakeMessages{}
	f.responses = append(f.responses, textReply(t, "I think we should edit main.go"), jsonReply(t, validPlan()))

	plan, err := newTestPlanner(t, f).Plan(context.Background(), types.PlanRequest{Task: "x"}, func(types.ToolLog) {})
	require.NoError(t, err)
	assert.Len(t, plan.GenerationOrder, 2)

	reqs := f.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.True(t, strings.Contains(last.Content[0].OfText.Text, "could not be used"))
}

func TestPlannerInvalidTwice(t *testing.T) {
	f := &fakeMessages{}
	missing := validPlan()
	delete(missing, "reasoning")
	f.responses = append(f.responses, jsonReply(t, missing), jsonReply(t, missing))

	_, err := newTestPlanner(t, f).Plan(context.Background(), types.PlanRequest{Task: "x"}, func(types.ToolLog) {})
	var perr *types.PlanningError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Message, "invalid plan")
}

func TestPlannerAPIFailure(t *testing.T) {
	f := &fakeMessages{err: assert.AnError}
	_, err := newTestPlanner(t, f).Plan(context.Background(), types.PlanRequest{Task: "x"}, func(types.ToolLog) {})
	var perr *types.PlanningError
	assert.ErrorAs(t, err, &perr)
}
