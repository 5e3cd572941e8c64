package orchestrator

import (
	"fmt"
	"strings"

	"github.com/davepeng-0503/dave-bot/internal/types"
	"go.uber.org/zap"
)

// RejectedMessage is the error reported when the reviewer rejects a plan
const RejectedMessage = "Task rejected by user."

// Approve accepts the plan under review, adding contextFiles to the
// generator's context, and starts generation.
func (e *Engine) Approve(contextFiles []string) error {
	return e.act("approve", func(d *runData) error {
		if d.status != types.StatusPlanReview {
			return &types.InvalidActionError{Action: "approve", Status: d.status}
		}
		cleaned := make([]string, 0, len(contextFiles))
		for _, f := range contextFiles {
			clean, err := cleanPath(f)
			if err != nil {
				return fmt.Errorf("%w: %v", types.ErrInvalidInput, err)
			}
			cleaned = append(cleaned, clean)
		}

		d.userContextFiles = addUnique(d.userContextFiles, cleaned...)
		d.generationOrder = copyStrings(d.plan.GenerationOrder)
		d.completed = []types.FileResult{}
		d.currentFile = ""
		d.attempt = 0
		d.notes = nil
		d.status = types.StatusGenerating
		return nil
	})
}

// Reject cancels the run while its plan is under review
func (e *Engine) Reject() error {
	return e.act("reject", func(d *runData) error {
		if d.status != types.StatusPlanReview {
			return &types.InvalidActionError{Action: "reject", Status: d.status}
		}
		d.fail(RejectedMessage)
		return nil
	})
}

// Feedback sends the plan back to the planner with the reviewer's comments.
// The current plan is kept until a new one is produced.
func (e *Engine) Feedback(text string) error {
	return e.act("feedback", func(d *runData) error {
		if d.status != types.StatusPlanReview {
			return &types.InvalidActionError{Action: "feedback", Status: d.status}
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return fmt.Errorf("%w: feedback must not be empty", types.ErrInvalidInput)
		}

		d.feedback = text
		d.toolLogs = nil
		d.progress = "Re-planning with feedback"
		d.status = types.StatusPlanning
		return nil
	})
}

// UserInput answers the pending question and resumes the phase that asked it
func (e *Engine) UserInput(text string) error {
	return e.act("user_input", func(d *runData) error {
		if d.status != types.StatusUserInputRequired {
			return &types.InvalidActionError{Action: "user_input", Status: d.status}
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return fmt.Errorf("%w: answer must not be empty", types.ErrInvalidInput)
		}

		d.userInputAnswer = text
		switch d.inputOrigin {
		case types.StatusGenerating:
			d.extraContext = addUnique(d.extraContext, d.requested...)
			d.extraContext = addUnique(d.extraContext, mentionedFiles(text, d.allFiles)...)
			d.notes = append(d.notes, fmt.Sprintf("Q: %s\nA: %s", d.userInputRequest, text))
			d.requested = nil
			d.status = types.StatusGenerating
		default:
			d.clarifications = append(d.clarifications, types.Clarification{
				Question: d.userInputRequest,
				Answer:   text,
			})
			d.progress = "Planning with your answer"
			d.status = types.StatusPlanning
		}
		d.userInputRequest = ""
		return nil
	})
}

// act applies a reviewer action and wakes the engine; the work it triggers
// happens on the engine goroutine.
func (e *Engine) act(name string, fn func(d *runData) error) error {
	if err := e.apply(fn); err != nil {
		e.Logger.Info("action rejected", zap.String("action", name), zap.Error(err))
		return err
	}
	e.Logger.Info("action accepted", zap.String("action", name))
	e.notify()
	return nil
}

// mentionedFiles returns repository files named verbatim in text
func mentionedFiles(text string, all []string) []string {
	known := make(map[string]bool, len(all))
	for _, f := range all {
		known[f] = true
	}
	var found []string
	for _, word := range strings.Fields(text) {
		word = strings.TrimLeft(word, "`'\"([{")
		word = strings.TrimRight(word, "`'\")]},;:.!?")
		word = strings.TrimSuffix(word, "'s")
		if known[word] {
			found = addUnique(found, word)
		}
	}
	return found
}
