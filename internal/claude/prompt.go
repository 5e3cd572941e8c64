package claude

import (
	"fmt"
	"strings"

	"github.com/davepeng-0503/dave-bot/internal/types"
)

const (
	strictScope = `## Scope
Change only what the task requires. Do not refactor, rename or reformat unrelated code,
and do not add features that were not asked for.`

	lenientScope = `## Scope
Stay focused on the task, but you may make small related improvements (fixing an obvious
bug next to the change, updating docs or tests for the code you touch) when they help.`
)

// renderSystemPrompt fills the scope and schema placeholders of a prompt template
func renderSystemPrompt(template, schema string, strict bool) string {
	scope := lenientScope
	if strict {
		scope = strictScope
	}
	out := strings.ReplaceAll(template, "{{SCOPE}}", scope)
	return strings.ReplaceAll(out, "{{SCHEMA}}", schema)
}

func writeSection(b *strings.Builder, title, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	fmt.Fprintf(b, "## %s\n%s\n\n", title, body)
}

func writeFiles(b *strings.Builder, title string, files []types.ContextFile) {
	if len(files) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n", title)
	for _, f := range files {
		fmt.Fprintf(b, "### %s\n```\n%s\n```\n\n", f.Path, strings.TrimRight(f.Content, "\n"))
	}
}

// planPrompt renders the user message for a planning request
func planPrompt(req types.PlanRequest) string {
	var b strings.Builder
	writeSection(&b, "Task", req.Task)
	writeSection(&b, "Application", req.AppDescription)
	writeSection(&b, "Repository guidelines", req.Guidelines)
	writeSection(&b, "Repository files", strings.Join(req.Files, "\n"))
	writeFiles(&b, "File contents", req.Context)

	if req.Feedback != "" {
		writeSection(&b, "Reviewer feedback on your previous plan",
			req.Feedback+"\n\nRevise the plan to address this feedback.")
	}
	if len(req.Clarifications) > 0 {
		var qa strings.Builder
		for _, c := range req.Clarifications {
			fmt.Fprintf(&qa, "Q: %s\nA: %s\n\n", c.Question, c.Answer)
		}
		writeSection(&b, "Answers from the user", qa.String())
	}
	return b.String()
}

// generatePrompt renders the user message for one file
func generatePrompt(req types.GenerateRequest) string {
	var b strings.Builder
	writeSection(&b, "Task", req.Task)
	writeSection(&b, "Application", req.AppDescription)
	writeSection(&b, "Repository guidelines", req.Guidelines)

	if req.Plan != nil {
		writeSection(&b, "Approved plan", req.Plan.PlanText())
		writeSection(&b, "Plan reasoning", req.Plan.Reasoning)
		writeSection(&b, "Generation order", strings.Join(req.Plan.GenerationOrder, "\n"))
	}

	var done strings.Builder
	for _, r := range req.Completed {
		fmt.Fprintf(&done, "- %s: %s\n", r.FilePath, r.Summary)
	}
	writeSection(&b, "Files already generated", done.String())
	writeFiles(&b, "Related files", req.Context)
	writeSection(&b, "Notes from the user", strings.Join(req.Notes, "\n\n"))

	if req.IsNew {
		var target strings.Builder
		fmt.Fprintf(&target, "Create the new file `%s`.", req.FilePath)
		if req.Plan != nil {
			if nf := req.Plan.NewFileFor(req.FilePath); nf != nil {
				if nf.Reasoning != "" {
					fmt.Fprintf(&target, "\nPurpose: %s", nf.Reasoning)
				}
				for _, s := range nf.ContentSuggestions {
					fmt.Fprintf(&target, "\n- %s", s)
				}
			}
		}
		writeSection(&b, "Target file", target.String())
	} else {
		fmt.Fprintf(&b, "## Target file\nRewrite `%s`. Its current content:\n```\n%s\n```\n", req.FilePath, strings.TrimRight(req.Original, "\n"))
	}
	return b.String()
}
