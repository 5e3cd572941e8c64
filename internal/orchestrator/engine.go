package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davepeng-0503/dave-bot/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultMaxContextAttempts   = 3
	defaultMaxPlanningQuestions = 3
	defaultBranchPrefix         = "dave-bot/"
)

// Options configures a single run
type Options struct {
	RunID          string
	Task           string
	AppDescription string
	Strict         bool
	Force          bool
	Limits         types.Limits
	VCS            types.VCSConfig
}

// Engine drives one task from planning to done or error
type Engine struct {
	Options   Options
	Planner   Planner
	Generator Generator
	VCS       VCS
	Workspace Workspace
	Artifacts *Artifacts
	Logger    *zap.Logger

	OnStatus  func(from, to types.Status)
	OnToolLog func(log types.ToolLog)

	state      *RunState
	wake       chan struct{}
	guidelines string
	plans      int
	started    time.Time
}

// NewEngine creates an engine positioned at the start of planning
func NewEngine(opts Options, planner Planner, generator Generator, vcs VCS, ws Workspace) *Engine {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Limits.MaxContextAttempts < 1 {
		opts.Limits.MaxContextAttempts = defaultMaxContextAttempts
	}
	if opts.Limits.MaxPlanningQuestions < 1 {
		opts.Limits.MaxPlanningQuestions = defaultMaxPlanningQuestions
	}
	if opts.VCS.BranchPrefix == "" {
		opts.VCS.BranchPrefix = defaultBranchPrefix
	}

	return &Engine{
		Options:   opts,
		Planner:   planner,
		Generator: generator,
		VCS:       vcs,
		Workspace: ws,
		Logger:    zap.NewNop(),
		state:     NewRunState(opts.Limits.MaxContextAttempts),
		wake:      make(chan struct{}, 1),
	}
}

// RunID identifies this run
func (e *Engine) RunID() string {
	return e.Options.RunID
}

// Snapshot returns a consistent view of the run state
func (e *Engine) Snapshot() types.Snapshot {
	return e.state.Snapshot()
}

// Run executes the workflow until a terminal status or ctx is cancelled.
// Reaching error is not a Go error; inspect Snapshot for the outcome.
// Logger and the hooks are read by reviewer actions and must not change
// once Run has started.
func (e *Engine) Run(ctx context.Context) error {
	e.started = time.Now()
	e.Logger.Info("run started", zap.String("task", e.Options.Task), zap.Bool("force", e.Options.Force))

	if err := e.Artifacts.SaveTask(e.Options.Task); err != nil {
		e.Logger.Warn("failed to save task", zap.Error(err))
	}

	e.guidelines = LoadGuidelines(e.Workspace)
	files, err := e.Workspace.ListFiles(ctx)
	if err != nil {
		e.fail(fmt.Sprintf("failed to list repository files: %v", err))
	} else {
		e.apply(func(d *runData) error {
			d.allFiles = files
			return nil
		})
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var stepErr error
		switch status := e.state.Status(); status {
		case types.StatusPlanning:
			stepErr = e.runPlanning(ctx)
		case types.StatusGenerating:
			stepErr = e.runGenerating(ctx)
		case types.StatusPlanReview, types.StatusUserInputRequired:
			e.Logger.Debug("waiting for reviewer", zap.String("status", status.String()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-e.wake:
			}
		case types.StatusDone, types.StatusError:
			e.finalize()
			return nil
		default:
			return fmt.Errorf("unknown status %q", status)
		}

		if stepErr != nil {
			return stepErr
		}
	}
}

// apply mutates the run state and reports status changes
func (e *Engine) apply(fn func(d *runData) error) error {
	from, to, err := e.state.apply(fn)
	if err != nil {
		return err
	}
	if from != to {
		e.Logger.Info("status transition", zap.String("from", from.String()), zap.String("to", to.String()))
		if e.OnStatus != nil {
			e.OnStatus(from, to)
		}
	}
	return nil
}

func (e *Engine) fail(msg string) {
	e.Logger.Error("run failed", zap.String("error", msg))
	e.apply(func(d *runData) error {
		d.fail(msg)
		return nil
	})
}

func (e *Engine) notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) recordToolLog(log types.ToolLog) {
	e.apply(func(d *runData) error {
		d.toolLogs = append(d.toolLogs, log)
		return nil
	})
	if e.OnToolLog != nil {
		e.OnToolLog(log)
	}
}

func (e *Engine) runPlanning(ctx context.Context) error {
	var (
		req      types.PlanRequest
		ctxPaths []string
	)
	e.state.read(func(d *runData) {
		req = types.PlanRequest{
			Task:           e.Options.Task,
			AppDescription: e.Options.AppDescription,
			Guidelines:     e.guidelines,
			Files:          copyStrings(d.allFiles),
			Feedback:       d.feedback,
			Clarifications: append([]types.Clarification{}, d.clarifications...),
			Strict:         e.Options.Strict,
		}
		ctxPaths = copyStrings(d.userContextFiles)
	})
	req.Context = readContext(e.Workspace, e.Logger, ctxPaths, "")

	e.Logger.Info("invoking planner", zap.Bool("feedback", req.Feedback != ""), zap.Int("clarifications", len(req.Clarifications)))
	plan, err := e.Planner.Plan(ctx, req, e.recordToolLog)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var question *types.UserInputRequiredError
	switch {
	case errors.As(err, &question):
		return e.askPlanningQuestion(question.Question)
	case err != nil:
		e.fail(err.Error())
		return nil
	}

	fallback := "task-" + strings.SplitN(e.Options.RunID, "-", 2)[0]
	normalized, err := NormalizePlan(plan, e.Workspace.Exists, e.Options.VCS.BranchPrefix, fallback)
	if err != nil {
		e.fail(err.Error())
		return nil
	}

	e.plans++
	if err := e.Artifacts.SavePlan(e.plans, normalized); err != nil {
		e.Logger.Warn("failed to save plan", zap.Error(err))
	}

	if len(normalized.GenerationOrder) == 0 {
		e.Logger.Info("plan has no files to change")
		e.apply(func(d *runData) error {
			d.plan = normalized
			d.status = types.StatusDone
			d.doneMessage = "Plan contains no files to change; nothing to do."
			return nil
		})
		return nil
	}

	e.apply(func(d *runData) error {
		d.plan = normalized
		d.progress = ""
		d.status = types.StatusPlanReview
		return nil
	})
	e.Logger.Info("plan ready for review",
		zap.String("branch", normalized.BranchName),
		zap.Strings("generation_order", normalized.GenerationOrder),
	)

	if e.Options.Force {
		e.Logger.Info("force mode: approving plan")
		if err := e.Approve(nil); err != nil {
			e.fail(fmt.Sprintf("auto-approve failed: %v", err))
		}
	}
	return nil
}

func (e *Engine) askPlanningQuestion(question string) error {
	limit := e.Options.Limits.MaxPlanningQuestions
	return e.apply(func(d *runData) error {
		if d.questionsAsked >= limit {
			d.fail(fmt.Sprintf("planner still needs input after %d questions: %s", limit, question))
			return nil
		}
		d.questionsAsked++
		d.userInputRequest = question
		d.userInputAnswer = ""
		d.inputOrigin = types.StatusPlanning
		d.status = types.StatusUserInputRequired
		return nil
	})
}

func (e *Engine) runGenerating(ctx context.Context) error {
	var (
		file     string
		ok       bool
		attempt  int
		index    int
		ctxPaths []string
		req      types.GenerateRequest
	)
	e.apply(func(d *runData) error {
		file, ok = d.nextFile()
		if !ok {
			return nil
		}
		if d.currentFile != file {
			d.currentFile = file
			d.attempt = 0
			d.notes = nil
		}
		d.attempt++
		attempt = d.attempt
		index = len(d.completed)

		ctxPaths = addUnique(copyStrings(d.plan.RelevantFiles), d.userContextFiles...)
		ctxPaths = addUnique(ctxPaths, d.extraContext...)
		req = types.GenerateRequest{
			Task:           e.Options.Task,
			AppDescription: e.Options.AppDescription,
			Guidelines:     e.guidelines,
			FilePath:       file,
			Plan:           d.plan.Clone(),
			Completed:      append([]types.FileResult{}, d.completed...),
			Notes:          copyStrings(d.notes),
			Strict:         e.Options.Strict,
		}
		return nil
	})
	if !ok {
		return e.finish(ctx)
	}

	req.IsNew = !e.Workspace.Exists(file)
	if !req.IsNew {
		original, err := e.Workspace.ReadFile(file)
		if err != nil {
			e.fail(fmt.Sprintf("failed to read %s: %v", file, err))
			return nil
		}
		req.Original = original
	}
	req.Context = readContext(e.Workspace, e.Logger, ctxPaths, file)

	log := e.Logger.With(zap.String("file", file), zap.Int("attempt", attempt))
	log.Info("generating file", zap.Int("context_files", len(req.Context)))

	gen, err := e.Generator.Generate(ctx, req)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var insufficient *types.InsufficientContextError
	switch {
	case errors.As(err, &insufficient):
		log.Info("generator needs more context", zap.Strings("files", insufficient.Files), zap.String("reason", insufficient.Reason))
		e.handleInsufficientContext(file, attempt, ctxPaths, insufficient)
		return nil
	case err != nil:
		e.fail(err.Error())
		return nil
	case gen == nil:
		e.fail((&types.GenerationError{FilePath: file, Message: "generator returned no content"}).Error())
		return nil
	}

	if err := e.Workspace.WriteFile(file, gen.Code); err != nil {
		e.fail(fmt.Sprintf("failed to write %s: %v", file, err))
		return nil
	}
	diff, err := e.VCS.Diff(ctx, file)
	if err != nil {
		e.fail(err.Error())
		return nil
	}

	result := types.FileResult{
		FilePath:  file,
		Summary:   gen.Summary,
		Reasoning: gen.Reasoning,
		Diff:      diff,
	}

	var future []string
	for _, p := range gen.FutureContext {
		if clean, err := cleanPath(p); err == nil && e.Workspace.Exists(clean) {
			future = append(future, clean)
		}
	}

	e.apply(func(d *runData) error {
		d.completed = append(d.completed, result)
		d.extraContext = addUnique(d.extraContext, future...)
		d.currentFile = ""
		d.attempt = 0
		d.notes = nil
		return nil
	})
	if err := e.Artifacts.SaveFileResult(index, result); err != nil {
		log.Warn("failed to save file result", zap.Error(err))
	}
	log.Info("file generated", zap.String("summary", result.Summary))
	return nil
}

// handleInsufficientContext loads requested files itself when every one of
// them exists and is new to the context; otherwise it asks the human.
func (e *Engine) handleInsufficientContext(file string, attempt int, ctxPaths []string, ic *types.InsufficientContextError) {
	limit := e.Options.Limits.MaxContextAttempts
	if attempt >= limit {
		e.fail(fmt.Sprintf("giving up on %s after %d attempts: %s", file, attempt, ic.Error()))
		return
	}

	known := make(map[string]bool, len(ctxPaths))
	for _, p := range ctxPaths {
		known[p] = true
	}

	var (
		resolvable []string
		requested  []string
		unresolved bool
	)
	for _, f := range ic.Files {
		clean, err := cleanPath(f)
		if err != nil {
			unresolved = true
			continue
		}
		requested = addUnique(requested, clean)
		switch {
		case known[clean]:
		case e.Workspace.Exists(clean):
			resolvable = addUnique(resolvable, clean)
		default:
			unresolved = true
		}
	}

	if len(resolvable) > 0 && !unresolved {
		e.Logger.Info("adding requested files to context", zap.String("file", file), zap.Strings("files", resolvable))
		e.apply(func(d *runData) error {
			d.extraContext = addUnique(d.extraContext, resolvable...)
			return nil
		})
		return
	}

	question := contextQuestion(file, ic, requested)
	e.apply(func(d *runData) error {
		d.extraContext = addUnique(d.extraContext, resolvable...)
		d.requested = requested
		d.userInputRequest = question
		d.userInputAnswer = ""
		d.inputOrigin = types.StatusGenerating
		d.status = types.StatusUserInputRequired
		return nil
	})
}

func contextQuestion(file string, ic *types.InsufficientContextError, requested []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "More context is needed to generate %s.", file)
	if ic.Reason != "" {
		fmt.Fprintf(&b, " %s", ic.Reason)
	}
	if len(requested) > 0 {
		fmt.Fprintf(&b, "\nRequested files: %s", strings.Join(requested, ", "))
	}
	b.WriteString("\nAnswer with the missing information or the paths of files to read.")
	return b.String()
}

func (e *Engine) finish(ctx context.Context) error {
	var (
		plan  *types.Plan
		count int
	)
	e.state.read(func(d *runData) {
		plan = d.plan.Clone()
		count = len(d.completed)
	})

	changed, err := e.VCS.ChangedFiles(ctx)
	if err != nil {
		e.fail(err.Error())
		return nil
	}
	if len(changed) == 0 {
		e.apply(func(d *runData) error {
			d.status = types.StatusDone
			d.doneMessage = fmt.Sprintf("Generated %d file(s) but they match the repository; nothing was committed.", count)
			return nil
		})
		return nil
	}

	cfg := e.Options.VCS
	branch := plan.BranchName
	if err := e.VCS.CreateBranch(ctx, branch); err != nil {
		e.fail(err.Error())
		return nil
	}

	commitMessage := CommitMessage(e.Options.Task, plan.Reasoning)
	hash, err := e.VCS.Commit(ctx, commitMessage)
	if err != nil {
		e.fail(err.Error())
		return nil
	}
	e.Logger.Info("changes committed", zap.String("branch", branch), zap.String("commit", hash), zap.Int("files", len(changed)))

	message := fmt.Sprintf("Committed %d changed file(s) to branch %s.", len(changed), branch)
	var prURL string
	if cfg.Push {
		if err := e.VCS.Push(ctx, branch); err != nil {
			e.fail(err.Error())
			return nil
		}
		message += " Pushed to " + cfg.Remote + "."

		if cfg.PullRequest {
			url, err := e.VCS.OpenPullRequest(ctx, PullRequestFor(e.Options.Task, plan, cfg.BaseBranch))
			if err != nil {
				e.Logger.Warn("failed to open pull request", zap.Error(err))
				message += "\nWarning: could not open a pull request: " + err.Error()
			} else {
				prURL = url
				message += "\nPull request: " + url
			}
		}
	}

	e.apply(func(d *runData) error {
		d.status = types.StatusDone
		d.doneMessage = message
		d.commitMessage = commitMessage
		d.pullRequestURL = prURL
		return nil
	})
	return nil
}

// CommitMessage builds the conventional commit message for a task
func CommitMessage(task, reasoning string) string {
	msg := "feat: " + strings.TrimSpace(task)
	if r := strings.TrimSpace(reasoning); r != "" {
		msg += "\n\n" + r
	}
	return msg
}

// PullRequestFor builds the pull request for an approved plan
func PullRequestFor(task string, plan *types.Plan, base string) types.PullRequest {
	var body strings.Builder
	fmt.Fprintf(&body, "This PR was generated by dave-bot to address the following task:\n\n> %s\n", strings.TrimSpace(task))
	if text := plan.PlanText(); text != "" {
		fmt.Fprintf(&body, "\n### Plan\n%s\n", text)
	}
	if plan.Reasoning != "" {
		fmt.Fprintf(&body, "\n### Reasoning\n%s\n", plan.Reasoning)
	}

	title := strings.TrimSpace(task)
	if len(title) > 72 {
		title = types.TruncateBytes(title, 69) + "..."
	}
	return types.PullRequest{
		Title: "AI-Gen: " + title,
		Body:  body.String(),
		Head:  plan.BranchName,
		Base:  base,
	}
}

func (e *Engine) finalize() {
	snap := e.state.Snapshot()
	summary := RunSummary{
		ID:        e.Options.RunID,
		Task:      e.Options.Task,
		Status:    snap.Status,
		StartTime: e.started,
		EndTime:   time.Now(),
	}
	e.state.read(func(d *runData) {
		summary.Message = d.doneMessage
		summary.Error = d.errMsg
		summary.CommitMessage = d.commitMessage
		summary.PullRequestURL = d.pullRequestURL
		if d.plan != nil {
			summary.Branch = d.plan.BranchName
		}
		for _, r := range d.completed {
			summary.Files = append(summary.Files, r.FilePath)
		}
	})
	if err := e.Artifacts.SaveSummary(summary); err != nil {
		e.Logger.Warn("failed to save summary", zap.Error(err))
	}

	fields := []zap.Field{zap.String("status", snap.Status.String()), zap.Duration("duration", summary.EndTime.Sub(summary.StartTime))}
	if snap.Status == types.StatusError {
		e.Logger.Error("run finished", append(fields, zap.String("error", summary.Error))...)
		return
	}
	e.Logger.Info("run finished", fields...)
}
