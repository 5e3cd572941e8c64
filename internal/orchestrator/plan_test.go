package orchestrator

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/davepeng-0503/dave-bot/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePlanReconcilesAgainstRepository(t *testing.T) {
	existing := map[string]bool{"cmd/main.go": true, "go.mod": true}
	exists := func(p string) bool { return existing[p] }

	plan := &types.Plan{
		BranchName:    "Feat: Add Health Check!!",
		RelevantFiles: []string{"go.mod", "./go.mod", "../outside"},
		FilesToEdit:   []string{"stale.go"},
		FilesToCreate: []types.NewFile{
			{FilePath: "internal/health/health.go", Reasoning: "new handler", ContentSuggestions: []string{"func Handler()"}},
			{FilePath: "never-ordered.go"},
		},
		GenerationOrder: []string{"internal/health/health.go", "./cmd/main.go"},
	}

	got, err := NormalizePlan(plan, exists, "dave-bot/", "task-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"internal/health/health.go", "cmd/main.go"}, got.GenerationOrder)
	assert.Equal(t, []string{"cmd/main.go"}, got.FilesToEdit)
	require.Len(t, got.FilesToCreate, 1)
	assert.Equal(t, "new handler", got.FilesToCreate[0].Reasoning)
	assert.Equal(t, []string{"go.mod"}, got.RelevantFiles)
	assert.Equal(t, "dave-bot/feat-add-health-check", got.BranchName)

	// input is untouched
	assert.Equal(t, "./cmd/main.go", plan.GenerationOrder[1])
}

func TestNormalizePlanRejects(t *testing.T) {
	tests := []struct {
		name  string
		order []string
	}{
		{"duplicate", []string{"a.go", "./a.go"}},
		{"empty", []string{"a.go", " "}},
		{"absolute", []string{"/etc/passwd"}},
		{"traversal", []string{"src/../../x"}},
		{"git dir", []string{".git/config"}},
		{"repository root", []string{"."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizePlan(&types.Plan{GenerationOrder: tt.order}, func(string) bool { return false }, "dave-bot/", "x")
			var perr *types.PlanningError
			assert.ErrorAs(t, err, &perr)
		})
	}

	_, err := NormalizePlan(nil, func(string) bool { return false }, "dave-bot/", "x")
	assert.Error(t, err)
}

func TestSanitizeBranchName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"dave-bot/feat/add-user-auth", "dave-bot/feat/add-user-auth"},
		{"feat/add user auth", "dave-bot/feat/add-user-auth"},
		{"DAVE-BOT/Fix/Bug", "dave-bot/fix/bug"},
		{"weird..name//here.lock", "dave-bot/weird.name/here"},
		{"", "dave-bot/task-abc"},
		{"!!!", "dave-bot/task-abc"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeBranchName(tt.in, "dave-bot/", "task-abc"))
		})
	}
}

func TestCommitMessageAndPullRequest(t *testing.T) {
	assert.Equal(t, "feat: add x", CommitMessage(" add x ", ""))
	assert.Equal(t, "feat: add x\n\nbecause", CommitMessage("add x", "because"))

	plan := &types.Plan{BranchName: "dave-bot/x", Steps: []string{"one", "two"}, Reasoning: "r"}
	pr := PullRequestFor("add x", plan, "main")
	assert.Equal(t, "AI-Gen: add x", pr.Title)
	assert.Equal(t, "dave-bot/x", pr.Head)
	assert.Equal(t, "main", pr.Base)
	assert.Contains(t, pr.Body, "1. one\n2. two")
	assert.Contains(t, pr.Body, "> add x")

	long := PullRequestFor(strings.Repeat("a", 68)+"日本語のタスク", plan, "main")
	assert.True(t, utf8.ValidString(long.Title))
	assert.Equal(t, "AI-Gen: "+strings.Repeat("a", 68)+"...", long.Title)
}

func TestMentionedFiles(t *testing.T) {
	all := []string{"d.txt", "pkg/schema.go", "README.md"}
	got := mentionedFiles("use d.txt's exported schema, see `pkg/schema.go`.", all)
	assert.Equal(t, []string{"d.txt", "pkg/schema.go"}, got)
	assert.Empty(t, mentionedFiles("nothing here", all))
}
