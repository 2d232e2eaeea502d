// Package runner drives one scan of a repository: list open pull
// requests, reconstruct their review threads, classify each thread and
// dispatch the resulting action. A failure in any one thread is logged
// and the scan moves on.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reviewpilot/internal/engine"
	"github.com/reviewpilot/internal/executor"
	"github.com/reviewpilot/internal/fsview"
	"github.com/reviewpilot/internal/threads"
	"github.com/reviewpilot/internal/vcs"
	"github.com/reviewpilot/internal/workspace"
	"github.com/reviewpilot/pkg/models"
)

// Transport is the GitHub API surface the runner consumes.
type Transport interface {
	ListOpenPullRequests(ctx context.Context, owner, repo string, limit int) ([]models.PullRequest, error)
	ListReviewThreadIDs(ctx context.Context, owner, repo string, prNumber int) ([]string, error)
	ListThreadComments(ctx context.Context, threadID string, prNumber int) ([]models.Comment, error)
	PullRequestInfo(ctx context.Context, owner, repo string, number int) (*models.PullRequest, error)
	ReplyToThread(ctx context.Context, threadID, body string) (*models.CreatedComment, error)
}

// GitActions is the subset of VCS operations the code-change path
// needs on top of what workspace preparation already covers.
type GitActions interface {
	CreateBranch(ctx context.Context, repoDir, name string) error
	CommitAll(ctx context.Context, repoDir, message string) (bool, error)
	Push(ctx context.Context, repoDir, branch string) error
	CreatePullRequest(ctx context.Context, repoDir string, opts vcs.CreatePROptions) (*models.PullRequest, error)
}

// Options controls one scan.
type Options struct {
	Owner string
	Repo  string

	// PRLimit bounds how many open pull requests are fetched; zero
	// means no bound.
	PRLimit int
	// SingleThread stops the scan after the first processed thread.
	SingleThread bool
	// DryRun classifies threads but performs no replies, edits,
	// commits, pushes or pull requests.
	DryRun bool
}

// Runner wires the transport, decision engine, executor and workspace
// manager into the scan loop.
type Runner struct {
	transport  Transport
	engine     engine.Engine
	executor   executor.Executor
	workspaces *workspace.Manager
	git        GitActions

	// subAnalyzer is optional cross-repository analysis support.
	subAnalyzer engine.SubAnalyzer
}

// New assembles a runner from its collaborators.
func New(transport Transport, eng engine.Engine, exec executor.Executor, workspaces *workspace.Manager, git GitActions) *Runner {
	return &Runner{
		transport:  transport,
		engine:     eng,
		executor:   exec,
		workspaces: workspaces,
		git:        git,
	}
}

// WithSubAnalyzer enables the cross-repository analysis tool for the
// decision engine.
func (r *Runner) WithSubAnalyzer(sa engine.SubAnalyzer) *Runner {
	r.subAnalyzer = sa
	return r
}

// Summary counts what one scan did.
type Summary struct {
	PullRequests int
	Threads      int
	Replies      int
	CodeChanges  int
	NoActions    int
	Failures     int
}

// Run performs one full scan. Only total failure to list pull requests
// is returned as an error; per-thread failures are logged, counted and
// skipped.
func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	logger := log.With().Str("owner", opts.Owner).Str("repo", opts.Repo).Logger()

	prs, err := r.transport.ListOpenPullRequests(ctx, opts.Owner, opts.Repo, opts.PRLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list open pull requests: %w", err)
	}
	logger.Info().Int("pull_requests", len(prs)).Msg("scan started")

	summary := &Summary{PullRequests: len(prs)}

	var all []models.Comment
	for _, pr := range prs {
		comments, err := r.collectPRComments(ctx, opts, pr.Number)
		if err != nil {
			logger.Error().Err(err).Int("pr", pr.Number).Msg("skipping pull request")
			summary.Failures++
			continue
		}
		all = append(all, comments...)
	}

	for _, thread := range orderedThreads(threads.Reconstruct(all)) {
		summary.Threads++
		tlog := logger.With().Int("pr", thread.PullRequestNumber).Str("thread", thread.ID).Logger()

		if err := r.processThread(ctx, opts, thread, summary, tlog); err != nil {
			tlog.Error().Err(err).Msg("thread processing failed")
			summary.Failures++
		}
		if opts.SingleThread {
			tlog.Info().Msg("single-thread mode, stopping after first thread")
			break
		}
	}

	logger.Info().
		Int("threads", summary.Threads).
		Int("replies", summary.Replies).
		Int("code_changes", summary.CodeChanges).
		Int("no_actions", summary.NoActions).
		Int("failures", summary.Failures).
		Msg("scan finished")
	return summary, nil
}

// collectPRComments gathers every review thread comment of one PR.
func (r *Runner) collectPRComments(ctx context.Context, opts Options, prNumber int) ([]models.Comment, error) {
	threadIDs, err := r.transport.ListReviewThreadIDs(ctx, opts.Owner, opts.Repo, prNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list review threads: %w", err)
	}

	var comments []models.Comment
	for _, id := range threadIDs {
		cs, err := r.transport.ListThreadComments(ctx, id, prNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch comments of thread %s: %w", id, err)
		}
		comments = append(comments, cs...)
	}
	return comments, nil
}

// orderedThreads flattens the reconstruction map into a deterministic
// processing order: ascending PR number, then root creation time.
func orderedThreads(byRoot map[string]*models.Thread) []*models.Thread {
	out := make([]*models.Thread, 0, len(byRoot))
	for _, t := range byRoot {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PullRequestNumber != out[j].PullRequestNumber {
			return out[i].PullRequestNumber < out[j].PullRequestNumber
		}
		ri, rj := out[i].Root(), out[j].Root()
		if ri == nil || rj == nil {
			return out[i].ID < out[j].ID
		}
		if !ri.CreatedAt.Equal(rj.CreatedAt) {
			return ri.CreatedAt.Before(rj.CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// processThread runs the full per-thread lifecycle: workspace, diff,
// classification, dispatch. The workspace is released when processing
// finishes, leaving the checkout on disk.
func (r *Runner) processThread(ctx context.Context, opts Options, thread *models.Thread, summary *Summary, tlog zerolog.Logger) error {
	ws, err := r.workspaces.Prepare(ctx, opts.Owner, opts.Repo, thread.PullRequestNumber)
	if err != nil {
		return fmt.Errorf("failed to prepare workspace: %w", err)
	}
	defer ws.Release()

	diff, err := ws.Diff(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch diff: %w", err)
	}

	in := &engine.Input{
		Owner:       opts.Owner,
		Repo:        opts.Repo,
		Thread:      thread,
		Diff:        diff,
		Files:       fsview.New(ws.Dir),
		SubAnalyzer: r.subAnalyzer,
	}

	decision, err := r.engine.Analyze(ctx, in)
	if err != nil {
		if errors.Is(err, engine.ErrMalformedDecision) {
			tlog.Warn().Err(err).Msg("unusable decision, skipping thread")
			summary.Failures++
			return nil
		}
		return fmt.Errorf("analysis failed: %w", err)
	}

	tlog.Info().
		Str("action", string(decision.ActionType)).
		Str("reasoning", decision.Reasoning).
		Msg("thread classified")

	return r.dispatch(ctx, opts, ws, thread, decision, in, summary, tlog)
}
