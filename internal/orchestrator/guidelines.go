package orchestrator

import (
	"strings"

	"github.com/davepeng-0503/dave-bot/internal/types"
	"go.uber.org/zap"
)

// guidelineFiles are checked in order; the first one present wins
var guidelineFiles = []string{"AGENTS.md", ".dave-bot/AGENTS.md"}

// LoadGuidelines reads the repository's AGENTS.md, if any
func LoadGuidelines(ws Workspace) string {
	for _, name := range guidelineFiles {
		if !ws.Exists(name) {
			continue
		}
		content, err := ws.ReadFile(name)
		if err != nil {
			continue
		}
		return strings.TrimSpace(content)
	}
	return ""
}

// readContext loads the given files, skipping the target and anything missing
func readContext(ws Workspace, logger *zap.Logger, paths []string, exclude string) []types.ContextFile {
	files := make([]types.ContextFile, 0, len(paths))
	for _, p := range paths {
		if p == exclude {
			continue
		}
		if !ws.Exists(p) {
			logger.Debug("context file not found", zap.String("path", p))
			continue
		}
		content, err := ws.ReadFile(p)
		if err != nil {
			logger.Warn("failed to read context file", zap.String("path", p), zap.Error(err))
			continue
		}
		files = append(files, types.ContextFile{Path: p, Content: content})
	}
	return files
}
