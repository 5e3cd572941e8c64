package tui

import (
	"fmt"
	"strings"

	"github.com/davepeng-0503/dave-bot/internal/types"
	"github.com/muesli/reflow/wordwrap"
)

// maxToolLogLines bounds the planner activity shown while planning
const maxToolLogLines = 15

// RenderSnapshot renders the body for a run snapshot
func RenderSnapshot(snap types.Snapshot, width int, spinner string) string {
	if width < 20 {
		width = 20
	}
	var b strings.Builder

	switch snap.Status {
	case types.StatusPlanning:
		renderPlanning(&b, snap.Planning, width, spinner)
	case types.StatusPlanReview:
		renderPlanReview(&b, snap.PlanReview, width)
	case types.StatusUserInputRequired:
		renderQuestion(&b, snap.UserInput, width)
	case types.StatusGenerating:
		renderGenerating(&b, snap.Generating, width, spinner)
	case types.StatusDone:
		renderDone(&b, snap.Done, width)
	case types.StatusError:
		if snap.Error != nil {
			b.WriteString(ErrorStyle.Render(SymbolFailed + " Run failed"))
			b.WriteString("\n\n")
			b.WriteString(wrap(snap.Error.Error, width))
		}
	default:
		b.WriteString(LabelStyle.Render("Waiting for the run..."))
	}
	return b.String()
}

func renderPlanning(b *strings.Builder, v *types.PlanningView, width int, spinner string) {
	progress := "Planning"
	if v != nil && v.Progress != "" {
		progress = v.Progress
	}
	fmt.Fprintf(b, "%s %s\n", spinner, BodyStyle.Render(progress))
	if v == nil || len(v.ToolLogs) == 0 {
		return
	}

	b.WriteString("\n")
	b.WriteString(TitleStyle.Render("Planner activity"))
	b.WriteString("\n")
	logs := v.ToolLogs
	if len(logs) > maxToolLogLines {
		fmt.Fprintf(b, "%s\n", LabelStyle.Render(fmt.Sprintf("  ... (%d earlier)", len(logs)-maxToolLogLines)))
		logs = logs[len(logs)-maxToolLogLines:]
	}
	for _, l := range logs {
		line := truncate(l.ToolName+" "+l.ToolInput, width-2)
		fmt.Fprintf(b, "  %s\n", LabelStyle.Render(line))
	}
}

func renderPlanReview(b *strings.Builder, v *types.PlanReviewView, width int) {
	if v == nil {
		return
	}
	section(b, "Plan")
	b.WriteString(wrap(v.Plan, width))
	b.WriteString("\n\n")

	if v.Reasoning != "" {
		section(b, "Reasoning")
		b.WriteString(wrap(v.Reasoning, width))
		b.WriteString("\n\n")
	}

	fmt.Fprintf(b, "%s %s\n\n", LabelStyle.Render("Branch:"), BodyStyle.Render(v.BranchName))

	section(b, "Generation order")
	for i, f := range v.GenerationOrder {
		tag := "edit"
		for _, n := range v.FilesToCreate {
			if n.FilePath == f {
				tag = "new"
			}
		}
		fmt.Fprintf(b, "  %d. %s %s\n", i+1, f, LabelStyle.Render("("+tag+")"))
	}

	if len(v.RelevantFiles) > 0 {
		b.WriteString("\n")
		section(b, "Context")
		for _, f := range v.RelevantFiles {
			fmt.Fprintf(b, "  %s\n", f)
		}
	}
	if len(v.UserContextFiles) > 0 {
		b.WriteString("\n")
		section(b, "Added by you")
		for _, f := range v.UserContextFiles {
			fmt.Fprintf(b, "  %s\n", f)
		}
	}
}

func renderQuestion(b *strings.Builder, v *types.UserInputView, width int) {
	if v == nil {
		return
	}
	title := "Question from the planner"
	if v.Origin == types.StatusGenerating {
		title = "Question while generating"
		if v.FilePath != "" {
			title += " " + v.FilePath
		}
	}
	section(b, title)
	b.WriteString(wrap(v.UserRequest, width))
	b.WriteString("\n")
}

func renderGenerating(b *strings.Builder, v *types.GeneratingView, width int, spinner string) {
	if v == nil {
		return
	}
	done := len(v.CompletedFiles)
	total := len(v.GenerationOrder)
	fmt.Fprintf(b, "%s\n\n", LabelStyle.Render(fmt.Sprintf("%d of %d files", done, total)))

	for _, f := range v.CompletedFiles {
		fmt.Fprintf(b, "%s %s\n", DiffAddStyle.Render(SymbolPassed), f.FilePath)
	}
	if v.CurrentFile != "" {
		attempt := ""
		if v.Attempt > 1 {
			attempt = LabelStyle.Render(fmt.Sprintf(" (attempt %d of %d)", v.Attempt, v.MaxAttempts))
		}
		fmt.Fprintf(b, "%s %s%s\n", spinner, v.CurrentFile, attempt)
	}
	for _, f := range v.PendingFiles {
		if f == v.CurrentFile {
			continue
		}
		fmt.Fprintf(b, "%s %s\n", LabelStyle.Render(SymbolPending), LabelStyle.Render(f))
	}

	for _, f := range v.CompletedFiles {
		b.WriteString("\n")
		section(b, f.FilePath)
		if f.Summary != "" {
			b.WriteString(wrap(f.Summary, width))
			b.WriteString("\n")
		}
		b.WriteString(RenderDiff(f.Diff))
	}
}

func renderDone(b *strings.Builder, v *types.DoneView, width int) {
	if v == nil {
		return
	}
	b.WriteString(DiffAddStyle.Render(SymbolPassed + " " + v.Message))
	b.WriteString("\n")
	if v.CommitMessage != "" {
		b.WriteString("\n")
		section(b, "Commit")
		b.WriteString(wrap(v.CommitMessage, width))
		b.WriteString("\n")
	}
	if v.PullRequestURL != "" {
		fmt.Fprintf(b, "\n%s %s\n", LabelStyle.Render("Pull request:"), v.PullRequestURL)
	}
}

// RenderDiff colors a unified diff
func RenderDiff(diff string) string {
	if diff == "" {
		return LabelStyle.Render("(no changes)") + "\n"
	}
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			b.WriteString(DiffMetaStyle.Render(line))
		case strings.HasPrefix(line, "@@"):
			b.WriteString(DiffHunkStyle.Render(line))
		case strings.HasPrefix(line, "+"):
			b.WriteString(DiffAddStyle.Render(line))
		case strings.HasPrefix(line, "-"):
			b.WriteString(DiffDelStyle.Render(line))
		default:
			b.WriteString(line)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func section(b *strings.Builder, title string) {
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n")
}

func wrap(s string, width int) string {
	return wordwrap.String(s, width)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if n < 4 || len(s) <= n {
		return s
	}
	return types.TruncateBytes(s, n-3) + "..."
}
