package claude

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/davepeng-0503/dave-bot/internal/types"
	"github.com/stretchr/testify/require"
)

// fakeMessages replays scripted responses and records requests
type fakeMessages struct {
	mu        sync.Mutex
	responses []*anthropic.Message
	requests  []anthropic.MessageNewParams
	err       error
}

func (f *fakeMessages) New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, params)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func (f *fakeMessages) Requests() []anthropic.MessageNewParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]anthropic.MessageNewParams{}, f.requests...)
}

func decodeMessage(t *testing.T, stopReason string, content ...map[string]any) *anthropic.Message {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":          "msg_test",
		"type":        "message",
		"role":        "assistant",
		"model":       "claude-test",
		"content":     content,
		"stop_reason": stopReason,
		"usage":       map[string]any{"input_tokens": 10, "output_tokens": 5},
	})
	require.NoError(t, err)
	var msg anthropic.Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return &msg
}

func textReply(t *testing.T, text string) *anthropic.Message {
	return decodeMessage(t, "end_turn", map[string]any{"type": "text", "text": text})
}

func toolReply(t *testing.T, calls ...map[string]any) *anthropic.Message {
	blocks := []map[string]any{{"type": "text", "text": "Let me look."}}
	for i, c := range calls {
		blocks = append(blocks, map[string]any{
			"type":  "tool_use",
			"id":    "toolu_" + string(rune('a'+i)),
			"name":  c["name"],
			"input": c["input"],
		})
	}
	return decodeMessage(t, "tool_use", blocks...)
}

func jsonReply(t *testing.T, v any) *anthropic.Message {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return textReply(t, "```json\n"+string(data)+"\n```")
}

func testClient(f *fakeMessages) *Client {
	return NewClientWith(f, types.ModelConfig{
		Planner:   "planner-model",
		Generator: "generator-model",
		Fast:      "fast-model",
		MaxTokens: 1000,
	}, nil)
}

// memRepo is an in-memory Repository
type memRepo map[string]string

func (m memRepo) ListFiles(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (m memRepo) ReadFile(path string) (string, error) {
	content, ok := m[path]
	if !ok {
		return "", errors.New("not found: " + path)
	}
	return content, nil
}

func (m memRepo) Exists(path string) bool {
	_, ok := m[path]
	return ok
}

// fakeCompleter counts summarizer calls
type fakeCompleter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeCompleter) Text(ctx context.Context, model, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	first, _, _ := strings.Cut(user, "\n")
	return "summary: " + strings.TrimPrefix(first, "File: "), nil
}

func (f *fakeCompleter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
