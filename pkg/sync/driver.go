package sync

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/complytime/org-infra/pkg/config"
	"github.com/complytime/org-infra/pkg/github"
	"github.com/complytime/org-infra/pkg/gitops"
)

const (
	branchPrefix = "sync-repo-standards-"
	prTitle      = "chore: sync repository standards"
)

// Attempt is the working state of one repository sync. It is created
// when processing starts, discarded when it ends, and never shared.
type Attempt struct {
	Org       string
	Repo      string
	ForkOwner string
	DryRun    bool

	// Changed lists the destination paths the reconciler touched (or
	// would touch in dry-run).
	Changed []string

	// PullRequestURL is set when a pull request was opened.
	PullRequestURL string
}

// Driver runs the fork-based sync sequence for a single repository:
// ensure fork, clone, reconcile fork with upstream, reconcile files,
// branch, commit, push, open pull request. The sequence is linear with
// early exits; no state is revisited, and a failed attempt leaves
// nothing behind that blocks a clean retry.
type Driver struct {
	Forge      github.Forge
	Git        *gitops.Client
	Reconciler *Reconciler

	// Now supplies the timestamp for branch names; nil means time.Now.
	Now func() time.Time
}

// ProcessRepository drives one repository through the full sequence.
// A nil error means the repository is either fully up to date or has a
// freshly opened pull request (or, in dry-run, a computed preview).
func (d *Driver) ProcessRepository(ctx context.Context, org, repoName, forkOwner string, cfg *config.SyncConfig, dryRun bool) (*Attempt, error) {
	rule := strings.Repeat("=", 60)
	fmt.Printf("\n%s\nProcessing: %s/%s\n%s\n", rule, org, repoName, rule)

	// The caller cannot distinguish "nothing configured" from
	// "misconfigured", so an empty rule set is a failure, not a no-op.
	if len(cfg.FilesToSync) == 0 {
		return nil, fmt.Errorf("no files configured for sync")
	}

	attempt := &Attempt{Org: org, Repo: repoName, ForkOwner: forkOwner, DryRun: dryRun}

	// Step 1: ensure the fork exists, so the PR can be prepared without
	// write access to the target repository. Dry-run never mutates the
	// fork, so the step is skipped entirely.
	if !dryRun {
		if !d.Forge.EnsureFork(ctx, org, repoName, forkOwner) {
			return attempt, fmt.Errorf("failed to create fork, skipping %s", repoName)
		}
	}

	// Step 2: clone into an ephemeral working tree. Dry-run clones
	// upstream directly; the upstream tree is sufficient to preview diffs.
	cloneURL := d.Git.RemoteURL(forkOwner, repoName)
	if dryRun {
		fmt.Printf("[DRY RUN] Would clone fork: %s\n", cloneURL)
		cloneURL = d.Git.RemoteURL(org, repoName)
	}

	tmpdir, err := os.MkdirTemp("", "org-infra-sync-")
	if err != nil {
		return attempt, fmt.Errorf("failed to create working directory: %w", err)
	}
	defer os.RemoveAll(tmpdir)

	fmt.Printf("Cloning %s...\n", cloneURL)
	wt, err := d.Git.Clone(ctx, cloneURL, tmpdir)
	if err != nil {
		return attempt, err
	}

	baseBranch, err := wt.HeadBranch()
	if err != nil {
		return attempt, err
	}

	// Step 3: hard-reset the clone to upstream's primary branch so the
	// diff is computed against current upstream. Failure is advisory:
	// an out-of-date fork can still receive a correct diff.
	if !dryRun {
		if err := wt.EnsureRemote(gitops.UpstreamRemote, d.Git.RemoteURL(org, repoName)); err != nil {
			fmt.Printf("Warning: could not add upstream remote: %v\n", err)
		} else if err := wt.SyncWithUpstream(ctx, baseBranch); err != nil {
			fmt.Printf("Warning: could not sync with upstream: %v\n", err)
		} else {
			fmt.Println("Synced fork with upstream")
		}
	}

	// Step 4: file reconciliation.
	changed, err := d.Reconciler.Reconcile(cfg.FilesToSync, wt.Path(), repoName, dryRun)
	if err != nil {
		return attempt, err
	}
	attempt.Changed = changed

	if len(changed) == 0 {
		fmt.Printf("All files up to date for %s\n", repoName)
		return attempt, nil
	}

	if dryRun {
		fmt.Printf("[DRY RUN] Would create PR with %d file(s)\n", len(changed))
		return attempt, nil
	}

	// Step 5: branch, commit exactly the changed paths, push to the fork.
	branch := d.branchName()
	fmt.Println("\nCreating branch and committing changes...")
	if err := wt.CreateBranch(branch); err != nil {
		return attempt, err
	}
	if err := wt.CommitPaths(changed, commitMessage(changed)); err != nil {
		return attempt, err
	}
	if err := wt.Push(ctx, branch); err != nil {
		return attempt, err
	}
	fmt.Printf("Pushed branch: %s\n", branch)

	// Step 6: pull request from the fork branch to upstream.
	fmt.Println("Creating pull request from fork to upstream...")
	prURL, err := d.Forge.OpenPullRequest(ctx, org, repoName, github.PullRequestSpec{
		Title: prTitle,
		Body:  prBody(changed),
		Head:  fmt.Sprintf("%s:%s", forkOwner, branch),
		Base:  baseBranch,
	})
	if err != nil {
		return attempt, err
	}
	attempt.PullRequestURL = prURL
	fmt.Printf("Pull request created successfully: %s\n", prURL)

	return attempt, nil
}

// branchName derives the sync branch name from the current time with
// second resolution. Runs are sequential, so same-second collisions
// only arise across back-to-back process invocations.
func (d *Driver) branchName() string {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	return branchPrefix + now().Format("20060102150405")
}

func commitMessage(changed []string) string {
	var b strings.Builder
	b.WriteString("chore: sync repository standards\n\nUpdated files:\n")
	for i, f := range changed {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s", f)
	}
	return b.String()
}

func prBody(changed []string) string {
	var files strings.Builder
	for _, f := range changed {
		fmt.Fprintf(&files, "- `%s`\n", f)
	}

	return fmt.Sprintf(`This PR synchronizes repository standards from org-infra.

## Files Updated
%s
## Description
This is an automated PR to ensure repository files are consistent across the organization.

---
*This PR was automatically generated by the sync_org_repositories workflow.*
`, files.String())
}
