package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/reviewpilot/internal/config"
	"github.com/reviewpilot/internal/engine"
	"github.com/reviewpilot/internal/executor"
	"github.com/reviewpilot/internal/githubapi"
	"github.com/reviewpilot/internal/logging"
	"github.com/reviewpilot/internal/runner"
	"github.com/reviewpilot/internal/vcs"
	"github.com/reviewpilot/internal/workspace"
)

// RunCommand returns the run command
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Scan a repository's open PRs and act on review threads",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "pr-limit",
				Usage: "Maximum number of open PRs to scan (0 = all)",
			},
			&cli.BoolFlag{
				Name:  "single-thread",
				Usage: "Stop after processing the first review thread",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "Classify threads without replying or editing code",
			},
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "Override the editing backend (agent or oneshot)",
			},
			&cli.StringFlag{
				Name:    "engine",
				Aliases: []string{"e"},
				Usage:   "Override the AI provider (openai, googleai, claude, ollama)",
			},
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Override the model name",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Console log level (debug, info, warn, error)",
				Value: "info",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable verbose output for this command",
			},
		},
		ArgsUsage: "OWNER REPO",
		Action:    runScan,
	}
}

func runScan(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("missing required arguments: OWNER REPO")
	}
	owner := c.Args().Get(0)
	repo := c.Args().Get(1)

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyOverrides(cfg, c.String("engine"), c.String("model"), c.String("backend"))
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logLevel := c.String("log-level")
	if c.Bool("verbose") {
		logLevel = "debug"
	}
	runLog, err := logging.StartRun("run_logs", logLevel)
	if err != nil {
		return fmt.Errorf("failed to start run logging: %w", err)
	}
	defer runLog.Close()

	ctx := context.Background()

	r, err := buildRunner(ctx, cfg, owner)
	if err != nil {
		return err
	}

	summary, err := r.Run(ctx, runner.Options{
		Owner:        owner,
		Repo:         repo,
		PRLimit:      c.Int("pr-limit"),
		SingleThread: c.Bool("single-thread"),
		DryRun:       c.Bool("dry-run"),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Scanned %d PRs, %d threads: %d replies, %d code changes, %d no-action, %d failures\n",
		summary.PullRequests, summary.Threads, summary.Replies,
		summary.CodeChanges, summary.NoActions, summary.Failures)
	if summary.Failures > 0 {
		return fmt.Errorf("%d threads failed; see the run log", summary.Failures)
	}
	return nil
}

// applyOverrides layers per-invocation flag values over the loaded
// configuration. Empty values leave the configuration untouched.
func applyOverrides(cfg *config.Config, engineName, model, backend string) {
	if engineName != "" {
		cfg.AI.Provider = engineName
	}
	if model != "" {
		cfg.AI.Model = model
	}
	if backend != "" {
		cfg.Executor.Backend = backend
	}
}

// buildRunner assembles the transport, model, engine, executor and
// workspace manager from configuration.
func buildRunner(ctx context.Context, cfg *config.Config, owner string) (*runner.Runner, error) {
	transport := githubapi.NewClient(cfg.GitHub.GraphQLURL, cfg.GitHub.Token)

	llm, err := engine.NewModel(ctx, engine.ModelOptions{
		Provider:    cfg.AI.Provider,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		BaseURL:     cfg.AI.BaseURL,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	git := vcs.New()
	workspaces, err := workspace.NewManager(cfg.Workspace.Root, git)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace manager: %w", err)
	}

	var exec executor.Executor
	switch cfg.Executor.Backend {
	case "oneshot":
		exec = executor.NewOneShotExecutor(llm, cfg.Executor.MaxFiles)
	default:
		exec = executor.NewAgentExecutor(llm, cfg.Executor.MaxTurns)
	}

	eng := engine.NewLangchainEngine(llm, cfg.AI.Temperature, cfg.AI.MaxTokens)
	r := runner.New(transport, eng, exec, workspaces, git)
	r.WithSubAnalyzer(engine.NewRepoAnalyzer(owner, workspaces, llm))
	return r, nil
}
