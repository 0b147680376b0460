package github

import "context"

// Forge defines the remote operations the sync engine consumes. The
// production implementation is Ops; tests substitute a mock.
type Forge interface {
	// CurrentLogin resolves the authenticated actor's login.
	CurrentLogin(ctx context.Context) (string, error)

	// Fork lifecycle operations
	ForkExists(ctx context.Context, forkOwner, repoName string) bool
	CreateFork(ctx context.Context, org, repoName string) bool
	EnsureFork(ctx context.Context, org, repoName, forkOwner string) bool

	// Pull request and branch operations
	OpenPullRequest(ctx context.Context, org, repoName string, spec PullRequestSpec) (string, error)
	DeleteBranch(ctx context.Context, forkOwner, repoName, branch string) bool
}
