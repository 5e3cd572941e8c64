package claude

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/davepeng-0503/dave-bot/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSummarizer(t *testing.T, c *fakeCompleter) *Summarizer {
	t.Helper()
	s, err := NewSummarizer(c, "summary-model", t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSummarizeCachesByContent(t *testing.T) {
	c := &fakeCompleter{}
	s := newTestSummarizer(t, c)
	ctx := context.Background()

	first, err := s.Summarize(ctx, "a.go", "package a")
	require.NoError(t, err)
	assert.Equal(t, "summary: a.go", first)

	again, err := s.Summarize(ctx, "a.go", "package a")
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, c.Calls())

	_, err = s.Summarize(ctx, "a.go", "package a // changed")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Calls())
}

func TestCompact(t *testing.T) {
	files := []types.ContextFile{
		{Path: "small.go", Content: "small"},
		{Path: "big.go", Content: strings.Repeat("b", 400)},
		{Path: "mid.go", Content: strings.Repeat("m", 200)},
	}

	t.Run("under limit is untouched", func(t *testing.T) {
		c := &fakeCompleter{}
		out := newTestSummarizer(t, c).Compact(context.Background(), files, 10000)
		assert.Equal(t, files, out)
		assert.Zero(t, c.Calls())
	})

	t.Run("disabled", func(t *testing.T) {
		out := newTestSummarizer(t, &fakeCompleter{}).Compact(context.Background(), files, 0)
		assert.Equal(t, files, out)
	})

	t.Run("largest first", func(t *testing.T) {
		c := &fakeCompleter{}
		out := newTestSummarizer(t, c).Compact(context.Background(), files, 300)
		assert.Equal(t, "small", out[0].Content)
		assert.True(t, strings.HasPrefix(out[1].Content, "[summary of big.go]"))
		assert.Equal(t, files[2].Content, out[2].Content)
		assert.Equal(t, 1, c.Calls())
		assert.Equal(t, strings.Repeat("b", 400), files[1].Content, "input is not modified")
	})

	t.Run("truncates when summarizing fails", func(t *testing.T) {
		c := &fakeCompleter{err: assert.AnError}
		out := newTestSummarizer(t, c).Compact(context.Background(), files, 300)
		assert.True(t, strings.HasSuffix(out[1].Content, "... (truncated)"))
		assert.Less(t, len(out[1].Content), 400)
	})

	t.Run("truncation keeps whole runes", func(t *testing.T) {
		wide := []types.ContextFile{{Path: "i18n.txt", Content: strings.Repeat("日本語", 50)}}
		var s *Summarizer
		out := s.Compact(context.Background(), wide, 100)
		assert.True(t, utf8.ValidString(out[0].Content))
		assert.True(t, strings.HasSuffix(out[0].Content, "... (truncated)"))
	})

	t.Run("nil summarizer truncates", func(t *testing.T) {
		var s *Summarizer
		out := s.Compact(context.Background(), files, 300)
		assert.True(t, strings.HasSuffix(out[1].Content, "... (truncated)"))
	})
}
