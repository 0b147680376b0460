package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/complytime/org-infra/pkg/config"
	"github.com/complytime/org-infra/pkg/github"
	"github.com/complytime/org-infra/pkg/gitops"
)

type forgeMock struct {
	mock.Mock
}

func (m *forgeMock) CurrentLogin(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *forgeMock) ForkExists(ctx context.Context, forkOwner, repoName string) bool {
	return m.Called(ctx, forkOwner, repoName).Bool(0)
}

func (m *forgeMock) CreateFork(ctx context.Context, org, repoName string) bool {
	return m.Called(ctx, org, repoName).Bool(0)
}

func (m *forgeMock) EnsureFork(ctx context.Context, org, repoName, forkOwner string) bool {
	return m.Called(ctx, org, repoName, forkOwner).Bool(0)
}

func (m *forgeMock) OpenPullRequest(ctx context.Context, org, repoName string, spec github.PullRequestSpec) (string, error) {
	args := m.Called(ctx, org, repoName, spec)
	return args.String(0), args.Error(1)
}

func (m *forgeMock) DeleteBranch(ctx context.Context, forkOwner, repoName, branch string) bool {
	return m.Called(ctx, forkOwner, repoName, branch).Bool(0)
}

// driverFixture wires a driver against local repositories: an upstream
// at <base>/test-org/repo1.git and a bare fork at <base>/sync-bot/repo1.git.
type driverFixture struct {
	driver   *Driver
	forge    *forgeMock
	base     string
	upstream string
	fork     string
	cfg      *config.SyncConfig
}

func newDriverFixture(t *testing.T, upstreamFiles map[string]string) *driverFixture {
	t.Helper()

	base := t.TempDir()
	upstream := filepath.Join(base, "test-org", "repo1.git")
	seedRepo(t, upstream, upstreamFiles)

	fork := filepath.Join(base, "sync-bot", "repo1.git")
	seedBareFork(t, upstream, fork)

	client := gitops.NewClient("")
	client.RemoteBase = base

	sourceRoot := writeSourceFiles(t, map[string]string{"CODEOWNERS": "* @owners"})

	forge := &forgeMock{}
	return &driverFixture{
		driver: &Driver{
			Forge:      forge,
			Git:        client,
			Reconciler: &Reconciler{SourceRoot: sourceRoot},
			Now: func() time.Time {
				return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			},
		},
		forge:    forge,
		base:     base,
		upstream: upstream,
		fork:     fork,
		cfg:      &config.SyncConfig{FilesToSync: []config.FileRule{{Source: "CODEOWNERS"}}},
	}
}

func TestProcessRepository(t *testing.T) {
	fx := newDriverFixture(t, map[string]string{"README.md": "v1"})

	fx.forge.On("EnsureFork", mock.Anything, "test-org", "repo1", "sync-bot").Return(true)

	var spec github.PullRequestSpec
	fx.forge.On("OpenPullRequest", mock.Anything, "test-org", "repo1", mock.Anything).
		Run(func(args mock.Arguments) {
			spec = args.Get(3).(github.PullRequestSpec)
		}).
		Return("https://github.com/test-org/repo1/pull/7", nil)

	attempt, err := fx.driver.ProcessRepository(context.Background(), "test-org", "repo1", "sync-bot", fx.cfg, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"CODEOWNERS"}, attempt.Changed)
	assert.Equal(t, "https://github.com/test-org/repo1/pull/7", attempt.PullRequestURL)

	assert.Equal(t, "chore: sync repository standards", spec.Title)
	assert.Equal(t, "sync-bot:sync-repo-standards-20240101000000", spec.Head)
	assert.Equal(t, "master", spec.Base)
	assert.Contains(t, spec.Body, "- `CODEOWNERS`")

	// The sync branch landed in the fork with the file committed.
	fork, err := git.PlainOpen(fx.fork)
	require.NoError(t, err)
	ref, err := fork.Reference(plumbing.NewBranchReferenceName("sync-repo-standards-20240101000000"), true)
	require.NoError(t, err)

	commit, err := fork.CommitObject(ref.Hash())
	require.NoError(t, err)
	assert.Contains(t, commit.Message, "Updated files:\n- CODEOWNERS")

	tree, err := commit.Tree()
	require.NoError(t, err)
	_, err = tree.File("CODEOWNERS")
	assert.NoError(t, err)

	fx.forge.AssertExpectations(t)
}

func TestProcessRepositoryUpToDate(t *testing.T) {
	fx := newDriverFixture(t, map[string]string{
		"README.md":  "v1",
		"CODEOWNERS": "* @owners",
	})

	fx.forge.On("EnsureFork", mock.Anything, "test-org", "repo1", "sync-bot").Return(true)

	attempt, err := fx.driver.ProcessRepository(context.Background(), "test-org", "repo1", "sync-bot", fx.cfg, false)
	require.NoError(t, err)
	assert.Empty(t, attempt.Changed)
	assert.Empty(t, attempt.PullRequestURL)

	fx.forge.AssertNotCalled(t, "OpenPullRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessRepositoryDryRun(t *testing.T) {
	fx := newDriverFixture(t, map[string]string{"README.md": "v1"})

	attempt, err := fx.driver.ProcessRepository(context.Background(), "test-org", "repo1", "sync-bot", fx.cfg, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"CODEOWNERS"}, attempt.Changed)
	assert.Empty(t, attempt.PullRequestURL)

	// Nothing remote is touched in dry-run.
	fx.forge.AssertNotCalled(t, "EnsureFork", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	fx.forge.AssertNotCalled(t, "OpenPullRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// And the upstream working tree is left as it was.
	_, statErr := os.Stat(filepath.Join(fx.upstream, "CODEOWNERS"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestProcessRepositoryDryRunMatchesRealRun(t *testing.T) {
	fx := newDriverFixture(t, map[string]string{"README.md": "v1"})

	preview, err := fx.driver.ProcessRepository(context.Background(), "test-org", "repo1", "sync-bot", fx.cfg, true)
	require.NoError(t, err)

	fx.forge.On("EnsureFork", mock.Anything, "test-org", "repo1", "sync-bot").Return(true)
	fx.forge.On("OpenPullRequest", mock.Anything, "test-org", "repo1", mock.Anything).
		Return("https://github.com/test-org/repo1/pull/1", nil)

	applied, err := fx.driver.ProcessRepository(context.Background(), "test-org", "repo1", "sync-bot", fx.cfg, false)
	require.NoError(t, err)

	assert.Equal(t, preview.Changed, applied.Changed)
}

func TestProcessRepositoryForkFailureAborts(t *testing.T) {
	fx := newDriverFixture(t, map[string]string{"README.md": "v1"})

	fx.forge.On("EnsureFork", mock.Anything, "test-org", "repo1", "sync-bot").Return(false)

	_, err := fx.driver.ProcessRepository(context.Background(), "test-org", "repo1", "sync-bot", fx.cfg, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create fork")

	fx.forge.AssertNotCalled(t, "OpenPullRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessRepositoryEmptyRules(t *testing.T) {
	fx := newDriverFixture(t, map[string]string{"README.md": "v1"})

	_, err := fx.driver.ProcessRepository(context.Background(), "test-org", "repo1", "sync-bot", &config.SyncConfig{}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files configured for sync")
}

func TestBranchName(t *testing.T) {
	d := &Driver{Now: func() time.Time {
		return time.Date(2024, 3, 15, 9, 30, 45, 0, time.UTC)
	}}
	assert.Equal(t, "sync-repo-standards-20240315093045", d.branchName())
}

func TestCommitMessage(t *testing.T) {
	msg := commitMessage([]string{"CODEOWNERS", ".github/workflows/lint.yml"})
	assert.Equal(t, "chore: sync repository standards\n\nUpdated files:\n- CODEOWNERS\n- .github/workflows/lint.yml", msg)
}

func TestPRBody(t *testing.T) {
	body := prBody([]string{"CODEOWNERS"})
	assert.Contains(t, body, "## Files Updated")
	assert.Contains(t, body, "- `CODEOWNERS`")
	assert.Contains(t, body, "automatically generated")
}
