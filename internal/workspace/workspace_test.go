package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGit simulates clone/checkout by creating the repo directory.
type fakeGit struct {
	mu        sync.Mutex
	clones    int
	checkouts []int
	diff      string
}

func (f *fakeGit) Clone(ctx context.Context, parentDir, owner, repo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clones++
	return os.MkdirAll(filepath.Join(parentDir, repo), 0755)
}

func (f *fakeGit) CheckoutPR(ctx context.Context, repoDir string, number int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkouts = append(f.checkouts, number)
	return nil
}

func (f *fakeGit) Diff(ctx context.Context, repoDir string, number int) (string, error) {
	return f.diff, nil
}

func TestPrepare_DestroysPreviousCheckout(t *testing.T) {
	root := t.TempDir()
	git := &fakeGit{}
	mgr, err := NewManager(root, git)
	require.NoError(t, err)

	// Plant a stale checkout with leftover state.
	stale := filepath.Join(root, "widgets", "leftover.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0644))

	ws, err := mgr.Prepare(context.Background(), "acme", "widgets", 7)
	require.NoError(t, err)
	defer ws.Release()

	_, statErr := os.Stat(stale)
	assert.True(t, os.IsNotExist(statErr), "previous checkout must be removed")
	assert.Equal(t, 1, git.clones)
	assert.Equal(t, []int{7}, git.checkouts)
	assert.Equal(t, filepath.Join(root, "widgets"), ws.Dir)
}

func TestPrepare_SerializesSameRepository(t *testing.T) {
	root := t.TempDir()
	git := &fakeGit{}
	mgr, err := NewManager(root, git)
	require.NoError(t, err)

	first, err := mgr.Prepare(context.Background(), "acme", "widgets", 1)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := mgr.Prepare(context.Background(), "acme", "widgets", 2)
		if err == nil {
			second.Release()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Prepare must block while the first workspace is held")
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Prepare must proceed after release")
	}
}

func TestPrepare_DifferentRepositoriesDoNotBlock(t *testing.T) {
	root := t.TempDir()
	git := &fakeGit{}
	mgr, err := NewManager(root, git)
	require.NoError(t, err)

	first, err := mgr.Prepare(context.Background(), "acme", "widgets", 1)
	require.NoError(t, err)
	defer first.Release()

	done := make(chan struct{})
	go func() {
		other, err := mgr.Prepare(context.Background(), "acme", "gadgets", 3)
		if err == nil {
			other.Release()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("different repositories must not share a lock")
	}
}

func TestRelease_Idempotent(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewManager(root, &fakeGit{})
	require.NoError(t, err)

	ws, err := mgr.Prepare(context.Background(), "acme", "widgets", 1)
	require.NoError(t, err)

	ws.Release()
	ws.Release() // must not panic or double-unlock

	next, err := mgr.Prepare(context.Background(), "acme", "widgets", 2)
	require.NoError(t, err)
	next.Release()
}

func TestDiff_DelegatesToGit(t *testing.T) {
	root := t.TempDir()
	git := &fakeGit{diff: "diff --git a/main.go b/main.go"}
	mgr, err := NewManager(root, git)
	require.NoError(t, err)

	ws, err := mgr.Prepare(context.Background(), "acme", "widgets", 7)
	require.NoError(t, err)
	defer ws.Release()

	diff, err := ws.Diff(context.Background())
	require.NoError(t, err)
	assert.Contains(t, diff, "diff --git")
}
