package sync

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/complytime/org-infra/pkg/config"
)

// SourceRepo is the source-of-truth repository, always excluded from
// processing so the tool never opens pull requests against itself.
const SourceRepo = "org-infra"

// RepositoryProcessor is the per-repository entry point the runner drives.
type RepositoryProcessor interface {
	ProcessRepository(ctx context.Context, org, repoName, forkOwner string, cfg *config.SyncConfig, dryRun bool) (*Attempt, error)
}

// Summary is the aggregate outcome of a batch run.
type Summary struct {
	Succeeded int
	Total     int
	Failures  map[string]error
}

// Runner iterates the repository list strictly sequentially and
// isolates per-repository failures: one failure never aborts the batch.
type Runner struct {
	Processor RepositoryProcessor
}

// FilterRepositories applies the optional explicit subset, then drops
// excluded repositories. When no exclusions are configured, the
// source-of-truth repository is still excluded.
func FilterRepositories(repos, only, exclude []string) []string {
	if len(only) > 0 {
		keep := make(map[string]bool, len(only))
		for _, name := range only {
			keep[name] = true
		}
		var subset []string
		for _, name := range repos {
			if keep[name] {
				subset = append(subset, name)
			}
		}
		repos = subset
		fmt.Printf("Filtering to %d specified repository(ies)\n", len(repos))
	}

	if len(exclude) == 0 {
		exclude = []string{SourceRepo}
	}
	excluded := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		excluded[name] = true
	}

	var filtered []string
	for _, name := range repos {
		if !excluded[name] {
			filtered = append(filtered, name)
		}
	}
	return filtered
}

// Run processes every repository in order and returns the tally. Errors
// and panics are contained per repository; the loop always completes.
func (r *Runner) Run(ctx context.Context, org string, repos []string, forkOwner string, cfg *config.SyncConfig, dryRun bool) Summary {
	summary := Summary{
		Total:    len(repos),
		Failures: make(map[string]error),
	}

	for _, repoName := range repos {
		if err := r.processOne(ctx, org, repoName, forkOwner, cfg, dryRun); err != nil {
			fmt.Printf("Failed to process %s: %v\n", repoName, err)
			summary.Failures[repoName] = err
		} else {
			summary.Succeeded++
		}
	}

	rule := strings.Repeat("=", 60)
	fmt.Printf("\n%s\nSummary: Successfully processed %d/%d repositories\n%s\n",
		rule, summary.Succeeded, summary.Total, rule)

	return summary
}

// processOne converts anything escaping the driver, panics included,
// into a per-repository failure.
func (r *Runner) processOne(ctx context.Context, org, repoName, forkOwner string, cfg *config.SyncConfig, dryRun bool) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("unexpected error processing %s: %v\n%s", repoName, rec, debug.Stack())
		}
	}()

	_, err = r.Processor.ProcessRepository(ctx, org, repoName, forkOwner, cfg, dryRun)
	return err
}
