// Package vcs shells out to the gh and git CLIs for repository and
// pull-request operations. Failures carry the command line, exit code
// and stderr so callers can log them and move on instead of aborting
// the whole run.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/reviewpilot/pkg/models"
)

// CommandError is a structured non-zero-exit failure from gh or git.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed with exit code %d: %s",
		e.Command, e.ExitCode, strings.TrimSpace(e.Stderr))
}

// runFunc executes a command in dir and returns its stdout. Injectable
// for tests.
type runFunc func(ctx context.Context, dir, name string, args ...string) (string, error)

// CLI wraps the gh and git binaries.
type CLI struct {
	run runFunc
}

// New returns a CLI backed by the real gh/git binaries on PATH.
func New() *CLI {
	return &CLI{run: runCommand}
}

func runCommand(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return stdout.String(), &CommandError{
			Command:  name + " " + strings.Join(args, " "),
			ExitCode: exitCode,
			Stderr:   stderr.String(),
		}
	}
	return stdout.String(), nil
}

// Clone clones owner/repo into parentDir (gh handles auth and remote URL
// selection).
func (c *CLI) Clone(ctx context.Context, parentDir, owner, repo string) error {
	_, err := c.run(ctx, parentDir, "gh", "repo", "clone", owner+"/"+repo)
	return err
}

// CheckoutPR checks out the head of a pull request inside repoDir.
func (c *CLI) CheckoutPR(ctx context.Context, repoDir string, number int) error {
	_, err := c.run(ctx, repoDir, "gh", "pr", "checkout", strconv.Itoa(number))
	return err
}

// Diff returns the full diff text of a pull request.
func (c *CLI) Diff(ctx context.Context, repoDir string, number int) (string, error) {
	return c.run(ctx, repoDir, "gh", "pr", "diff", strconv.Itoa(number))
}

// CreateBranch creates and switches to a new branch.
func (c *CLI) CreateBranch(ctx context.Context, repoDir, name string) error {
	_, err := c.run(ctx, repoDir, "git", "checkout", "-b", name)
	return err
}

// CommitAll stages everything and commits. When there is nothing to
// commit it returns (false, nil) rather than failing: an editor run
// that changed nothing must not fail the thread.
func (c *CLI) CommitAll(ctx context.Context, repoDir, message string) (bool, error) {
	if _, err := c.run(ctx, repoDir, "git", "add", "-A"); err != nil {
		return false, err
	}

	// Exit 0 means the index matches HEAD, so there is nothing to commit.
	if _, err := c.run(ctx, repoDir, "git", "diff", "--cached", "--quiet"); err == nil {
		log.Debug().Str("dir", repoDir).Msg("nothing staged, skipping commit")
		return false, nil
	} else {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && cmdErr.ExitCode != 1 {
			return false, err
		}
	}

	if _, err := c.run(ctx, repoDir, "git", "commit", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}

// Push pushes branch to origin with upstream tracking.
func (c *CLI) Push(ctx context.Context, repoDir, branch string) error {
	_, err := c.run(ctx, repoDir, "git", "push", "-u", "origin", branch)
	return err
}

// CreatePROptions parameterizes pull-request creation.
type CreatePROptions struct {
	Base  string
	Head  string
	Title string
	Body  string
}

// CreatePullRequest opens a PR and returns its number and URL, parsed
// from the URL gh prints.
func (c *CLI) CreatePullRequest(ctx context.Context, repoDir string, opts CreatePROptions) (*models.PullRequest, error) {
	out, err := c.run(ctx, repoDir, "gh", "pr", "create",
		"--base", opts.Base,
		"--head", opts.Head,
		"--title", opts.Title,
		"--body", opts.Body)
	if err != nil {
		return nil, err
	}

	url := lastLine(out)
	number, err := prNumberFromURL(url)
	if err != nil {
		return nil, fmt.Errorf("unexpected gh pr create output %q: %w", out, err)
	}

	return &models.PullRequest{
		Number:     number,
		URL:        url,
		Title:      opts.Title,
		HeadBranch: opts.Head,
		BaseBranch: opts.Base,
	}, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// prNumberFromURL extracts the trailing number of a PR URL like
// https://github.com/acme/widgets/pull/17.
func prNumberFromURL(url string) (int, error) {
	idx := strings.LastIndex(url, "/")
	if idx < 0 || idx == len(url)-1 {
		return 0, fmt.Errorf("no PR number in %q", url)
	}
	return strconv.Atoi(url[idx+1:])
}
