package orchestrator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/davepeng-0503/dave-bot/internal/paths"
	"github.com/davepeng-0503/dave-bot/internal/types"
)

var (
	branchInvalidRe = regexp.MustCompile(`[^a-z0-9/._-]+`)
	branchDashRe    = regexp.MustCompile(`-{2,}`)
	branchSlashRe   = regexp.MustCompile(`/{2,}`)
)

// NormalizePlan validates a planner result and reconciles it against the
// repository. The generation order is authoritative: entries that exist are
// edits, the rest are creations.
func NormalizePlan(plan *types.Plan, exists func(string) bool, branchPrefix, fallbackBranch string) (*types.Plan, error) {
	if plan == nil {
		return nil, &types.PlanningError{Message: "planner returned no plan"}
	}
	out := plan.Clone()

	order := make([]string, 0, len(out.GenerationOrder))
	seen := make(map[string]bool, len(out.GenerationOrder))
	for _, p := range out.GenerationOrder {
		clean, err := cleanPath(p)
		if err != nil {
			return nil, &types.PlanningError{Message: "invalid generation order", Err: err}
		}
		if seen[clean] {
			return nil, &types.PlanningError{Message: fmt.Sprintf("file %s appears more than once in the generation order", clean)}
		}
		seen[clean] = true
		order = append(order, clean)
	}
	out.GenerationOrder = order

	suggestions := make(map[string]types.NewFile, len(out.FilesToCreate))
	for _, f := range out.FilesToCreate {
		if clean, err := cleanPath(f.FilePath); err == nil {
			f.FilePath = clean
			suggestions[clean] = f
		}
	}

	out.FilesToEdit = []string{}
	out.FilesToCreate = []types.NewFile{}
	for _, p := range order {
		if exists(p) {
			out.FilesToEdit = append(out.FilesToEdit, p)
			continue
		}
		nf, ok := suggestions[p]
		if !ok {
			nf = types.NewFile{FilePath: p}
		}
		out.FilesToCreate = append(out.FilesToCreate, nf)
	}

	relevant := []string{}
	for _, p := range out.RelevantFiles {
		if clean, err := cleanPath(p); err == nil {
			relevant = addUnique(relevant, clean)
		}
	}
	out.RelevantFiles = relevant

	out.BranchName = SanitizeBranchName(out.BranchName, branchPrefix, fallbackBranch)
	return out, nil
}

// cleanPath resolves a file path inside the repository
func cleanPath(p string) (string, error) {
	clean, err := paths.CleanRelative(p)
	if err != nil {
		return "", err
	}
	if clean == "." {
		return "", fmt.Errorf("path %q escapes the repository", p)
	}
	return clean, nil
}

// SanitizeBranchName makes name git-friendly and forces it under prefix
func SanitizeBranchName(name, prefix, fallback string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, strings.ToLower(prefix))
	name = branchInvalidRe.ReplaceAllString(name, "-")
	name = branchDashRe.ReplaceAllString(name, "-")
	name = branchSlashRe.ReplaceAllString(name, "/")
	for strings.Contains(name, "..") {
		name = strings.ReplaceAll(name, "..", ".")
	}
	name = strings.Trim(name, "-/.")
	name = strings.TrimSuffix(name, ".lock")
	if name == "" {
		name = fallback
	}
	return prefix + name
}
