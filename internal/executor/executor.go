// Package executor applies review-driven code changes inside a prepared
// workspace and reports a commit message. Two interchangeable backends
// exist: a multi-turn editing agent and a single-shot editor that is
// handed a bounded file list up front.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/reviewpilot/internal/workspace"
)

// ErrTurnBudgetExceeded indicates the agent backend hit its turn limit
// before finishing. Surfaced instead of committing half-done edits.
var ErrTurnBudgetExceeded = errors.New("turn budget exceeded")

// defaultCommitMessage is used when no message can be extracted from
// the backend's output.
const defaultCommitMessage = "Code changes implemented"

// Request carries the instructions for one editing run.
type Request struct {
	FixPrompt     string
	Reasoning     string
	CommentReply  string
	ThreadContext string // the original analysis request, for context
}

// Executor mutates files inside the workspace and returns a commit
// message. An error means no usable edit was produced; callers must not
// commit or push after one.
type Executor interface {
	Execute(ctx context.Context, ws *workspace.Workspace, req *Request) (string, error)
}

// extractCommitMessage pulls a plausible commit message out of free-form
// backend output. The first line mentioning a commit/message/summary
// wins; otherwise the first non-empty line; otherwise the fixed default.
func extractCommitMessage(output string) string {
	lines := strings.Split(output, "\n")

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if strings.Contains(lower, "commit") || strings.Contains(lower, "message") || strings.Contains(lower, "summary") {
			trimmed = strings.TrimPrefix(trimmed, "Commit message:")
			trimmed = strings.TrimPrefix(trimmed, "commit message:")
			if msg := strings.TrimSpace(trimmed); msg != "" {
				return msg
			}
		}
	}

	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}

	return defaultCommitMessage
}

// resolveInside joins path onto the workspace and rejects escapes.
func resolveInside(root, path string) (string, error) {
	full := filepath.Join(root, path)
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes the workspace", path)
	}
	return full, nil
}

// writeWorkspaceFile writes content to a workspace-relative path,
// creating parent directories as needed.
func writeWorkspaceFile(root, path, content string) error {
	full, err := resolveInside(root, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return err
	}
	return os.WriteFile(full, []byte(content), 0644)
}

// buildInstruction renders one editing request the same way for both
// backends.
func buildInstruction(req *Request) string {
	var sb strings.Builder
	sb.WriteString("Based on the following analysis, make the necessary code changes:\n\n")
	fmt.Fprintf(&sb, "Reasoning: %s\n", req.Reasoning)
	fmt.Fprintf(&sb, "Fix Prompt: %s\n", req.FixPrompt)
	fmt.Fprintf(&sb, "Comment Reply: %s\n", req.CommentReply)
	if req.ThreadContext != "" {
		fmt.Fprintf(&sb, "\nOriginal review context:\n%s\n", req.ThreadContext)
	}
	return sb.String()
}
