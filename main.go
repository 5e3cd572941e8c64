package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/davepeng-0503/dave-bot/internal/claude"
	"github.com/davepeng-0503/dave-bot/internal/config"
	"github.com/davepeng-0503/dave-bot/internal/embedded"
	"github.com/davepeng-0503/dave-bot/internal/gateway"
	"github.com/davepeng-0503/dave-bot/internal/logging"
	"github.com/davepeng-0503/dave-bot/internal/orchestrator"
	"github.com/davepeng-0503/dave-bot/internal/paths"
	"github.com/davepeng-0503/dave-bot/internal/tui"
	"github.com/davepeng-0503/dave-bot/internal/types"
	"github.com/davepeng-0503/dave-bot/internal/vcs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

// shutdownGrace bounds how long the gateway drains after the run ends
const shutdownGrace = 5 * time.Second

type codeOptions struct {
	task           string
	dir            string
	strict         bool
	noStrict       bool
	force          bool
	port           int
	appDescription string
	configPath     string
	logLevel       string
	linger         time.Duration
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "dave-bot",
		Short: "dave-bot - plan, review and apply code changes with a human in the loop",
		Long: `dave-bot plans a change to a git repository, waits for a human to review the plan,
generates each file, then commits the result on a new branch and opens a pull request.

Commands:
  dave-bot code -t "..."   Run a task against the repository
  dave-bot watch           Review a running task from the terminal
  dave-bot init            Create .dave-bot/ in the current repository`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newCodeCmd(), newWatchCmd(), newInitCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCodeCmd() *cobra.Command {
	opts := &codeOptions{}
	cmd := &cobra.Command{
		Use:   "code",
		Short: "Plan and apply a task, with approval through the reviewer gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.noStrict {
				opts.strict = false
			}
			return runCode(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.task, "task", "t", "", "Task description")
	cmd.Flags().StringVarP(&opts.dir, "dir", "d", "", "Repository directory (default: current directory)")
	cmd.Flags().BoolVar(&opts.strict, "strict", true, "Restrict edits to what the task asks for")
	cmd.Flags().BoolVar(&opts.noStrict, "no-strict", false, "Allow small related improvements")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Approve the plan without waiting for review")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Gateway port (default from config)")
	cmd.Flags().StringVar(&opts.appDescription, "app-description", "", "File describing the application")
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Config file")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().DurationVar(&opts.linger, "linger", 3*time.Second, "Keep the gateway up this long after the run ends")
	cmd.MarkFlagRequired("task")
	cmd.MarkFlagsMutuallyExclusive("strict", "no-strict")
	return cmd
}

func runCode(cmd *cobra.Command, opts *codeOptions) error {
	if strings.TrimSpace(opts.task) == "" {
		return errors.New("task must not be empty")
	}

	appPaths, err := resolvePaths(opts.dir)
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadFirst(appPaths.ConfigCandidates(opts.configPath)...)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = opts.port
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()
	if cfgPath != "" {
		logger.Debug("loaded config", zap.String("path", cfgPath))
	}

	var appDescription string
	if opts.appDescription != "" {
		data, err := os.ReadFile(opts.appDescription)
		if err != nil {
			return fmt.Errorf("failed to read app description: %w", err)
		}
		appDescription = string(data)
	}

	repo, err := vcs.Open(appPaths.RepoDir, cfg.VCS, logger.Named("vcs"))
	if err != nil {
		return err
	}

	client, err := claude.NewClient(cfg.Model, logger.Named("claude"))
	if err != nil {
		return err
	}
	executor := claude.NewToolExecutor(repo, repo)
	planner, err := claude.NewPlanner(client, executor, appPaths.UserDir, cfg.Limits.MaxToolCalls)
	if err != nil {
		return err
	}
	summarizer, err := claude.NewSummarizer(client, cfg.Model.Summarizer, appPaths.UserDir, logger.Named("summarizer"))
	if err != nil {
		return err
	}
	defer summarizer.Close()
	generator, err := claude.NewGenerator(client, summarizer, appPaths.UserDir, cfg.Limits.ContextSizeLimit)
	if err != nil {
		return err
	}

	engine := orchestrator.NewEngine(orchestrator.Options{
		Task:           opts.task,
		AppDescription: appDescription,
		Strict:         opts.strict,
		Force:          opts.force,
		Limits:         cfg.Limits,
		VCS:            cfg.VCS,
	}, planner, generator, repo, repo)
	engine.Logger = logger.Named("engine").With(zap.String("run_id", engine.RunID()))

	artifacts, err := orchestrator.NewArtifacts(appPaths.RunDir(engine.RunID()))
	if err != nil {
		return err
	}
	engine.Artifacts = artifacts

	server, err := gateway.NewServer(engine, logger.Named("gateway"), &gateway.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		PortRetries: cfg.Server.PortRetries,
	})
	if err != nil {
		return err
	}
	engine.OnStatus = server.Metrics().ObserveTransition
	if err := server.Listen(); err != nil {
		return err
	}

	fmt.Printf("dave-bot run %s\n", engine.RunID())
	fmt.Printf("Task: %s\n", opts.task)
	fmt.Printf("Review at %s (or: dave-bot watch --addr %s)\n", server.URL(), server.URL())
	fmt.Printf("Artifacts in %s\n\n", artifacts.Dir)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Serve)
	g.Go(func() error {
		runErr := engine.Run(gctx)
		if runErr == nil {
			// let pollers see the terminal status
			select {
			case <-gctx.Done():
			case <-time.After(opts.linger):
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("gateway shutdown failed", zap.Error(err))
		}
		return runErr
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("interrupted")
		}
		return err
	}

	snap := engine.Snapshot()
	switch snap.Status {
	case types.StatusDone:
		fmt.Println(snap.Done.Message)
		return nil
	case types.StatusError:
		return fmt.Errorf("run failed: %s", snap.Error.Error)
	default:
		return fmt.Errorf("run stopped in status %s", snap.Status)
	}
}

func newWatchCmd() *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Review a running task from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.New("watch needs an interactive terminal; open the gateway URL in a browser instead")
			}
			model := tui.New(gateway.NewClient(addr), interval)
			if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
				return fmt.Errorf("TUI error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "http://127.0.0.1:8080", "Gateway address")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Status poll interval")
	return cmd
}

func newInitCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create .dave-bot/ in the repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			appPaths, err := resolvePaths(dir)
			if err != nil {
				return err
			}
			return initProject(appPaths)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Repository directory (default: current directory)")
	return cmd
}

// resolvePaths resolves dir and installs the user defaults on first use
func resolvePaths(dir string) (*paths.Paths, error) {
	appPaths, err := paths.Resolve(dir)
	if err != nil {
		return nil, err
	}
	if err := appPaths.EnsureUserDir(); err != nil {
		return nil, err
	}
	if !appPaths.IsInitialized() {
		fmt.Println("First run - setting up ~/.dave-bot...")
		if err := embedded.Install(appPaths.UserDir); err != nil {
			return nil, fmt.Errorf("failed to install defaults: %w", err)
		}
	}
	return appPaths, nil
}

func initProject(appPaths *paths.Paths) error {
	if appPaths.HasProjectConfig() {
		fmt.Println(".dave-bot already exists in this directory")
		return nil
	}
	if err := os.MkdirAll(appPaths.ProjectDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", appPaths.ProjectDir, err)
	}

	defaults, err := embedded.ReadFile("config.toml")
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("# Project-specific dave-bot configuration\n")
	b.WriteString("# Uncomment and customize as needed\n\n")
	for _, line := range strings.Split(strings.TrimRight(string(defaults), "\n"), "\n") {
		switch {
		case line == "", strings.HasPrefix(line, "#"):
			b.WriteString(line)
		default:
			b.WriteString("# " + line)
		}
		b.WriteString("\n")
	}
	if err := os.WriteFile(appPaths.ProjectConfig, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write config.toml: %w", err)
	}

	gitignore := "# Local overrides only; run artifacts live in ~/.dave-bot/runs\n*\n!.gitignore\n!config.toml\n!AGENTS.md\n"
	if err := os.WriteFile(filepath.Join(appPaths.ProjectDir, ".gitignore"), []byte(gitignore), 0644); err != nil {
		return fmt.Errorf("failed to write .gitignore: %w", err)
	}

	fmt.Println("Created .dave-bot/ in", appPaths.RepoDir)
	fmt.Println()
	fmt.Println("Files created:")
	fmt.Println("  .dave-bot/config.toml  - Project configuration")
	fmt.Println("  .dave-bot/.gitignore   - Keeps local files out of git")
	return nil
}
