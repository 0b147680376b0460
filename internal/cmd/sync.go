package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/complytime/org-infra/pkg/config"
	"github.com/complytime/org-infra/pkg/github"
	"github.com/complytime/org-infra/pkg/gitops"
	"github.com/complytime/org-infra/pkg/sync"
)

var (
	syncOrg        string
	syncConfigPath string
	syncDryRun     bool
	syncRepos      []string
	syncSourceRoot string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Open pull requests syncing canonical files into organization repositories",
	Long: `Sync repository standards across all repositories listed in the
organization's peribolos manifest.

For each repository the tool forks it (if not already forked), clones the
fork, resets it to upstream, copies the configured canonical files, and
opens a pull request with whatever changed. Repositories that are already
up to date are left alone.

Examples:
  # Preview what would change, organization-wide
  org-infra sync --org my-org --dry-run

  # Sync two specific repositories
  org-infra sync --org my-org --repos service-a,service-b`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncOrg, "org", "", "GitHub organization name")
	_ = syncCmd.MarkFlagRequired("org")
	syncCmd.Flags().StringVar(&syncConfigPath, "config", config.DefaultConfigFile, "Path to sync configuration file")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Show what would be done without making changes")
	syncCmd.Flags().StringSliceVar(&syncRepos, "repos", nil, "Specific repositories to sync (default: all from peribolos.yaml)")
	syncCmd.Flags().StringVar(&syncSourceRoot, "source-root", ".", "Directory holding the canonical source files")
}

// resolveToken reads the credential from the environment. Absence is
// fatal for the whole run.
func resolveToken() (string, error) {
	for _, name := range []string{"GITHUB_TOKEN", "GITHUB_PAT"} {
		if token := strings.TrimSpace(os.Getenv(name)); token != "" {
			return token, nil
		}
	}
	return "", fmt.Errorf("GITHUB_TOKEN or GITHUB_PAT environment variable not set")
}

func runSync(_ *cobra.Command, _ []string) error {
	token, err := resolveToken()
	if err != nil {
		return err
	}

	cfg, err := config.LoadFromPath(syncConfigPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	forge := github.NewOps(github.NewGateway(token))

	forkOwner, err := forge.CurrentLogin(ctx)
	if err != nil {
		return fmt.Errorf("could not determine authenticated user: %w", err)
	}
	fmt.Printf("Authenticated as: %s\n", forkOwner)

	gitClient := gitops.NewClient(token)

	manifest, err := sync.FetchManifest(ctx, gitClient, syncOrg)
	if err != nil {
		return err
	}

	repos := sync.ExtractRepositories(manifest, syncOrg)
	fmt.Printf("Found %d repositories in peribolos configuration for %s\n", len(repos), syncOrg)
	if len(repos) == 0 {
		fmt.Println("No repositories found in peribolos configuration")
		return nil
	}

	repos = sync.FilterRepositories(repos, syncRepos, cfg.ExcludeRepos)

	if syncDryRun {
		rule := strings.Repeat("=", 60)
		fmt.Printf("\n%s\nDRY RUN MODE - No changes will be made\n%s\n", rule, rule)
	}
	fmt.Printf("\nWill process %d repository(ies)\n", len(repos))

	runner := &sync.Runner{
		Processor: &sync.Driver{
			Forge:      forge,
			Git:        gitClient,
			Reconciler: &sync.Reconciler{SourceRoot: syncSourceRoot},
		},
	}

	summary := runner.Run(ctx, syncOrg, repos, forkOwner, cfg, syncDryRun)
	if len(summary.Failures) > 0 {
		return fmt.Errorf("%d of %d repositories failed to sync", len(summary.Failures), summary.Total)
	}
	return nil
}
