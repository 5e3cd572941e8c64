package claude

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/davepeng-0503/dave-bot/internal/config"
	"github.com/davepeng-0503/dave-bot/internal/types"
	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"
)

// summaryCacheBytes bounds the memory held by cached summaries
const summaryCacheBytes = 32 << 20

// TextCompleter runs a single-turn text request
type TextCompleter interface {
	Text(ctx context.Context, model, system, user string) (string, error)
}

// Summarizer condenses large context files. Summaries are cached by
// content hash for the life of the process.
type Summarizer struct {
	completer TextCompleter
	model     string
	prompt    string
	cache     *ristretto.Cache[string, string]
	logger    *zap.Logger
}

// NewSummarizer loads the summarizer prompt from configDir
func NewSummarizer(completer TextCompleter, model, configDir string, logger *zap.Logger) (*Summarizer, error) {
	prompt, err := config.LoadPrompt(configDir, "summarizer")
	if err != nil {
		return nil, err
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: 10000,
		MaxCost:     summaryCacheBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create summary cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{completer: completer, model: model, prompt: prompt, cache: cache, logger: logger}, nil
}

// Summarize returns a summary of content
func (s *Summarizer) Summarize(ctx context.Context, path, content string) (string, error) {
	sum := sha256.Sum256([]byte(content))
	key := hex.EncodeToString(sum[:])
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	summary, err := s.completer.Text(ctx, s.model, s.prompt, fmt.Sprintf("File: %s\n\n%s", path, content))
	if err != nil {
		return "", fmt.Errorf("summarize %s: %w", path, err)
	}
	summary = strings.TrimSpace(summary)
	s.cache.Set(key, summary, int64(len(summary)))
	s.cache.Wait()
	s.logger.Debug("summarized context file", zap.String("path", path), zap.Int("from", len(content)), zap.Int("to", len(summary)))
	return summary, nil
}

// Close releases the cache
func (s *Summarizer) Close() {
	s.cache.Close()
}

// Compact shrinks files until their combined size fits limit, summarizing
// the largest first. Files that cannot be summarized are truncated.
// A limit <= 0 disables compaction.
func (s *Summarizer) Compact(ctx context.Context, files []types.ContextFile, limit int) []types.ContextFile {
	if limit <= 0 {
		return files
	}
	total := 0
	for _, f := range files {
		total += len(f.Content)
	}
	if total <= limit {
		return files
	}

	out := make([]types.ContextFile, len(files))
	copy(out, files)
	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return len(out[order[a]].Content) > len(out[order[b]].Content)
	})

	for _, i := range order {
		if total <= limit {
			break
		}
		f := out[i]
		var replacement string
		if s != nil {
			if summary, err := s.Summarize(ctx, f.Path, f.Content); err == nil {
				replacement = "[summary of " + f.Path + "]\n" + summary
			} else {
				s.logger.Warn("summarize failed, truncating", zap.String("path", f.Path), zap.Error(err))
			}
		}
		if replacement == "" || len(replacement) >= len(f.Content) {
			keep := len(f.Content) - (total - limit)
			if keep < 0 {
				keep = 0
			}
			replacement = types.TruncateBytes(f.Content, keep) + "\n... (truncated)"
		}
		total += len(replacement) - len(f.Content)
		out[i].Content = replacement
	}
	return out
}
