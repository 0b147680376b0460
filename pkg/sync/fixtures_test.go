package sync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// seedRepo creates a repository at path with one commit containing files.
func seedRepo(t *testing.T, path string, files map[string]string) *git.Repository {
	t.Helper()

	require.NoError(t, os.MkdirAll(path, 0o755))
	repo, err := git.PlainInit(path, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		full := filepath.Join(path, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(t, err)
	}

	sig := &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()}
	_, err = wt.Commit("initial commit", &git.CommitOptions{Author: sig, Committer: sig})
	require.NoError(t, err)
	return repo
}

// seedBareFork mirrors src into a bare repository at path, the shape a
// remote fork has from the driver's point of view.
func seedBareFork(t *testing.T, src, path string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	_, err := git.PlainClone(path, true, &git.CloneOptions{URL: src})
	require.NoError(t, err)
}

// writeSourceFiles lays out canonical files under a fresh source root.
func writeSourceFiles(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for name, content := range files {
		full := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}
