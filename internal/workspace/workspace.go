// Package workspace manages transient local checkouts. Each repository
// name maps to exactly one checkout directory under the manager's root;
// preparing a workspace destroys any previous checkout of the same
// repository, so access is serialized through a per-repository lock.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// GitOps is the subset of VCS operations workspace preparation needs.
type GitOps interface {
	Clone(ctx context.Context, parentDir, owner, repo string) error
	CheckoutPR(ctx context.Context, repoDir string, number int) error
	Diff(ctx context.Context, repoDir string, number int) (string, error)
}

// Manager creates and tracks per-repository checkouts under one root
// directory.
type Manager struct {
	root string
	git  GitOps

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates the root directory if needed and returns a manager.
func NewManager(root string, git GitOps) (*Manager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root %s: %w", root, err)
	}
	return &Manager{
		root:  root,
		git:   git,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Workspace is an exclusive checkout of one repository at one PR's head.
// Release must be called when thread processing finishes; the checkout
// itself is left on disk so commit and push can act on it.
type Workspace struct {
	Dir      string
	Owner    string
	Repo     string
	PRNumber int

	git     GitOps
	release func()
	once    sync.Once
}

// repoLock returns the named lock for a repository, creating it on first
// use.
func (m *Manager) repoLock(repo string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[repo]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[repo] = lock
	}
	return lock
}

// Prepare acquires the repository's lock, destroys any prior checkout,
// clones fresh and checks out the PR head. The caller owns the returned
// workspace until Release.
func (m *Manager) Prepare(ctx context.Context, owner, repo string, prNumber int) (*Workspace, error) {
	lock := m.repoLock(repo)
	lock.Lock()

	ws := &Workspace{
		Dir:      filepath.Join(m.root, repo),
		Owner:    owner,
		Repo:     repo,
		PRNumber: prNumber,
		git:      m.git,
		release:  lock.Unlock,
	}

	if err := os.RemoveAll(ws.Dir); err != nil {
		ws.Release()
		return nil, fmt.Errorf("failed to clear previous checkout of %s: %w", repo, err)
	}

	log.Debug().Str("repo", repo).Int("pr", prNumber).Str("dir", ws.Dir).
		Msg("preparing workspace")

	if err := m.git.Clone(ctx, m.root, owner, repo); err != nil {
		ws.Release()
		return nil, fmt.Errorf("failed to clone %s/%s: %w", owner, repo, err)
	}

	if err := m.git.CheckoutPR(ctx, ws.Dir, prNumber); err != nil {
		ws.Release()
		return nil, fmt.Errorf("failed to checkout PR #%d: %w", prNumber, err)
	}

	return ws, nil
}

// Clone acquires the repository's lock and clones it at its default
// branch, without a PR checkout. Used for read-only cross-repository
// analysis.
func (m *Manager) Clone(ctx context.Context, owner, repo string) (*Workspace, error) {
	lock := m.repoLock(repo)
	lock.Lock()

	ws := &Workspace{
		Dir:     filepath.Join(m.root, repo),
		Owner:   owner,
		Repo:    repo,
		git:     m.git,
		release: lock.Unlock,
	}

	if err := os.RemoveAll(ws.Dir); err != nil {
		ws.Release()
		return nil, fmt.Errorf("failed to clear previous checkout of %s: %w", repo, err)
	}
	if err := m.git.Clone(ctx, m.root, owner, repo); err != nil {
		ws.Release()
		return nil, fmt.Errorf("failed to clone %s/%s: %w", owner, repo, err)
	}

	return ws, nil
}

// Diff fetches the PR's diff text from the checkout.
func (ws *Workspace) Diff(ctx context.Context) (string, error) {
	return ws.git.Diff(ctx, ws.Dir, ws.PRNumber)
}

// Release frees the repository lock. Safe to call more than once. The
// checkout directory is intentionally not removed.
func (ws *Workspace) Release() {
	ws.once.Do(ws.release)
}
