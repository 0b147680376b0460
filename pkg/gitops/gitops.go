// Package gitops wraps go-git with the handful of task-oriented
// operations the sync engine needs: clone a repository, reconcile a
// fork with its upstream, and publish a branch carrying staged changes.
package gitops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

const (
	// OriginRemote is the remote name pointing at the fork.
	OriginRemote = "origin"

	// UpstreamRemote is the remote name for the canonical repository.
	UpstreamRemote = "upstream"

	defaultRemoteBase  = "https://github.com"
	defaultAuthorName  = "org-infra-sync[bot]"
	defaultAuthorEmail = "org-infra-sync[bot]@users.noreply.github.com"
)

// Client builds remote URLs and authenticated git operations for one
// run. It is read-only after construction.
type Client struct {
	// Token authenticates HTTPS pushes and fetches. Empty means
	// unauthenticated, which is what local-path remotes in tests use.
	Token string

	// RemoteBase is the URL prefix repositories hang off. Defaults to
	// https://github.com; tests point it at a local directory.
	RemoteBase string

	AuthorName  string
	AuthorEmail string
}

// NewClient creates a client with the default GitHub remote base.
func NewClient(token string) *Client {
	return &Client{
		Token:       token,
		RemoteBase:  defaultRemoteBase,
		AuthorName:  defaultAuthorName,
		AuthorEmail: defaultAuthorEmail,
	}
}

// RemoteURL returns the clone URL for owner/repo under the configured base.
func (c *Client) RemoteURL(owner, repo string) string {
	return fmt.Sprintf("%s/%s/%s.git", c.RemoteBase, owner, repo)
}

// authMethod returns token auth for HTTPS remotes, or nil when no
// token is configured.
func (c *Client) authMethod() transport.AuthMethod {
	if c.Token == "" {
		return nil
	}
	return &githttp.BasicAuth{
		Username: "x-access-token",
		Password: c.Token,
	}
}

// Worktree is a cloned working tree together with its repository handle.
type Worktree struct {
	repo   *git.Repository
	wt     *git.Worktree
	path   string
	client *Client
}

// Clone clones url into dir and returns the working tree.
func (c *Client) Clone(ctx context.Context, url, dir string) (*Worktree, error) {
	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:  url,
		Auth: c.authMethod(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to clone %s: %w", url, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	return &Worktree{repo: repo, wt: wt, path: dir, client: c}, nil
}

// Path returns the working tree's directory on disk.
func (w *Worktree) Path() string {
	return w.path
}

// HeadBranch returns the short name of the branch HEAD points at,
// which after a fresh clone is the repository's primary branch.
func (w *Worktree) HeadBranch() (string, error) {
	head, err := w.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("HEAD is not on a branch: %s", head.Name())
	}
	return head.Name().Short(), nil
}

// EnsureRemote creates the named remote if it does not already exist.
func (w *Worktree) EnsureRemote(name, url string) error {
	_, err := w.repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: name,
		URLs: []string{url},
	})
	if err != nil && !errors.Is(err, git.ErrRemoteExists) {
		return fmt.Errorf("failed to create remote %s: %w", name, err)
	}
	return nil
}

// SyncWithUpstream fetches the upstream remote and hard-resets branch
// to upstream/branch, discarding any divergence on the fork's clone.
func (w *Worktree) SyncWithUpstream(ctx context.Context, branch string) error {
	err := w.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: UpstreamRemote,
		Auth:       w.client.authMethod(),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to fetch %s: %w", UpstreamRemote, err)
	}

	err = w.wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
	})
	if err != nil {
		return fmt.Errorf("failed to checkout %s: %w", branch, err)
	}

	ref, err := w.repo.Reference(plumbing.NewRemoteReferenceName(UpstreamRemote, branch), true)
	if err != nil {
		return fmt.Errorf("failed to resolve %s/%s: %w", UpstreamRemote, branch, err)
	}

	err = w.wt.Reset(&git.ResetOptions{
		Commit: ref.Hash(),
		Mode:   git.HardReset,
	})
	if err != nil {
		return fmt.Errorf("failed to reset to %s/%s: %w", UpstreamRemote, branch, err)
	}

	return nil
}

// CreateBranch creates and checks out a new local branch at HEAD.
func (w *Worktree) CreateBranch(name string) error {
	err := w.wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Create: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create branch %s: %w", name, err)
	}
	return nil
}

// CommitPaths stages exactly the given paths and commits them. It
// never stages the whole tree.
func (w *Worktree) CommitPaths(paths []string, message string) error {
	for _, path := range paths {
		if _, err := w.wt.Add(path); err != nil {
			return fmt.Errorf("failed to stage %s: %w", path, err)
		}
	}

	sig := &object.Signature{
		Name:  w.client.AuthorName,
		Email: w.client.AuthorEmail,
		When:  time.Now(),
	}
	_, err := w.wt.Commit(message, &git.CommitOptions{
		Author:    sig,
		Committer: sig,
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Push publishes branch to the fork remote.
func (w *Worktree) Push(ctx context.Context, branch string) error {
	refspec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	err := w.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: OriginRemote,
		RefSpecs:   []gitconfig.RefSpec{refspec},
		Auth:       w.client.authMethod(),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push %s: %w", branch, err)
	}
	return nil
}
