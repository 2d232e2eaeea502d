package runner

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/reviewpilot/internal/engine"
	"github.com/reviewpilot/internal/executor"
	"github.com/reviewpilot/internal/vcs"
	"github.com/reviewpilot/internal/workspace"
	"github.com/reviewpilot/pkg/models"
)

// dispatch routes one classified thread to its side effect. Exactly one
// of the three actions runs; no_action does nothing at all.
func (r *Runner) dispatch(ctx context.Context, opts Options, ws *workspace.Workspace, thread *models.Thread, decision *models.Decision, in *engine.Input, summary *Summary, tlog zerolog.Logger) error {
	switch decision.ActionType {
	case models.ActionReply:
		if opts.DryRun {
			tlog.Info().Str("reply", decision.CommentReply).Msg("dry run, reply suppressed")
			summary.Replies++
			return nil
		}
		created, err := r.transport.ReplyToThread(ctx, thread.ID, decision.CommentReply)
		if err != nil {
			return fmt.Errorf("failed to post reply: %w", err)
		}
		tlog.Info().Str("comment_url", created.URL).Msg("reply posted")
		summary.Replies++
		return nil

	case models.ActionCodeChange:
		if opts.DryRun {
			tlog.Info().Str("fix_prompt", decision.FixPrompt).Msg("dry run, code change suppressed")
			summary.CodeChanges++
			return nil
		}
		if err := r.applyCodeChange(ctx, opts, ws, thread, decision, in, tlog); err != nil {
			return err
		}
		summary.CodeChanges++
		return nil

	case models.ActionNoAction:
		summary.NoActions++
		return nil
	}
	return fmt.Errorf("unknown action type %q", decision.ActionType)
}

// applyCodeChange runs the editing backend in the prepared checkout and
// publishes the result as a follow-up pull request based on the
// reviewed PR's head branch. An executor error aborts before any
// commit, push or PR. A no-op edit is not an error; it skips
// publishing, including the thread reply, since the reply text claims
// changes that were never made.
func (r *Runner) applyCodeChange(ctx context.Context, opts Options, ws *workspace.Workspace, thread *models.Thread, decision *models.Decision, in *engine.Input, tlog zerolog.Logger) error {
	reviewed, err := r.transport.PullRequestInfo(ctx, opts.Owner, opts.Repo, thread.PullRequestNumber)
	if err != nil {
		return fmt.Errorf("failed to resolve reviewed PR: %w", err)
	}

	req := &executor.Request{
		FixPrompt:     decision.FixPrompt,
		Reasoning:     decision.Reasoning,
		CommentReply:  decision.CommentReply,
		ThreadContext: engine.BuildUserMessage(in),
	}
	commitMessage, err := r.executor.Execute(ctx, ws, req)
	if err != nil {
		return fmt.Errorf("editing backend failed: %w", err)
	}

	branch := FixBranchName(thread.PullRequestNumber, thread.ID)
	if err := r.git.CreateBranch(ctx, ws.Dir, branch); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", branch, err)
	}

	committed, err := r.git.CommitAll(ctx, ws.Dir, commitMessage)
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	if !committed {
		tlog.Info().Msg("backend produced no file changes, skipping push, PR and reply")
		return nil
	}

	if err := r.git.Push(ctx, ws.Dir, branch); err != nil {
		return fmt.Errorf("failed to push %s: %w", branch, err)
	}

	followUp, err := r.git.CreatePullRequest(ctx, ws.Dir, vcs.CreatePROptions{
		Base:  reviewed.HeadBranch,
		Head:  branch,
		Title: followUpTitle(commitMessage, thread.PullRequestNumber),
		Body:  followUpBody(thread, decision),
	})
	if err != nil {
		return fmt.Errorf("failed to open follow-up PR: %w", err)
	}
	tlog.Info().Int("follow_up_pr", followUp.Number).Str("url", followUp.URL).
		Str("branch", branch).Msg("follow-up PR opened")

	if decision.CommentReply != "" {
		created, err := r.transport.ReplyToThread(ctx, thread.ID, decision.CommentReply)
		if err != nil {
			return fmt.Errorf("follow-up PR opened but reply failed: %w", err)
		}
		tlog.Info().Str("comment_url", created.URL).Msg("reply posted on thread")
	}
	return nil
}

// FixBranchName derives a stable branch name from the reviewed PR
// number and thread ID, so re-processing the same thread reuses the
// same branch.
func FixBranchName(prNumber int, threadID string) string {
	sum := sha1.Sum([]byte(threadID))
	return fmt.Sprintf("review-fix/pr-%d-%s", prNumber, hex.EncodeToString(sum[:])[:8])
}

// followUpTitle uses the commit message's first line, falling back to a
// generic title.
func followUpTitle(commitMessage string, prNumber int) string {
	line := strings.TrimSpace(strings.SplitN(commitMessage, "\n", 2)[0])
	if line == "" {
		return fmt.Sprintf("Address review feedback on #%d", prNumber)
	}
	return line
}

// followUpBody summarizes where the change came from.
func followUpBody(thread *models.Thread, decision *models.Decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Automated follow-up for a review thread on #%d.\n\n", thread.PullRequestNumber)
	if root := thread.Root(); root != nil {
		fmt.Fprintf(&b, "Review comment by @%s", root.Author)
		if root.Path != "" {
			fmt.Fprintf(&b, " on `%s`", root.Path)
		}
		b.WriteString(":\n\n")
		for _, line := range strings.Split(strings.TrimSpace(root.Body), "\n") {
			fmt.Fprintf(&b, "> %s\n", line)
		}
		b.WriteString("\n")
		if root.URL != "" {
			fmt.Fprintf(&b, "Thread: %s\n\n", root.URL)
		}
	}
	if decision.Reasoning != "" {
		fmt.Fprintf(&b, "Why: %s\n", decision.Reasoning)
	}
	return b.String()
}
