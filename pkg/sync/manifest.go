package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/complytime/org-infra/pkg/gitops"
)

const (
	manifestRepo = ".github"
	manifestFile = "peribolos.yaml"
)

// Manifest is the peribolos document enumerating the organization's
// repositories. It is only ever read; per-repo settings are opaque to
// the sync engine.
type Manifest struct {
	Orgs map[string]OrgEntry `yaml:"orgs"`
}

// OrgEntry holds one organization's repositories. The repos mapping is
// kept as a raw node so the document's own key order is preserved.
type OrgEntry struct {
	Repos yaml.Node `yaml:"repos"`
}

// FetchManifest clones the organization's .github repository into an
// ephemeral directory and parses the peribolos manifest from it. Any
// failure here is fatal for the whole run.
func FetchManifest(ctx context.Context, client *gitops.Client, org string) (*Manifest, error) {
	url := client.RemoteURL(org, manifestRepo)
	fmt.Printf("Fetching peribolos configuration from %s\n", url)

	tmpdir, err := os.MkdirTemp("", "org-infra-manifest-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpdir)

	if _, err := client.Clone(ctx, url, tmpdir); err != nil {
		return nil, fmt.Errorf("failed to clone %s repository: %w", manifestRepo, err)
	}

	data, err := os.ReadFile(filepath.Join(tmpdir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("%s not found in %s repository: %w", manifestFile, manifestRepo, err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", manifestFile, err)
	}
	return &manifest, nil
}

// ExtractRepositories returns the repository names configured for org,
// in the order the manifest lists them. A missing org or repos key
// yields an empty list, not an error.
func ExtractRepositories(manifest *Manifest, org string) []string {
	if manifest == nil {
		return nil
	}
	entry, ok := manifest.Orgs[org]
	if !ok || entry.Repos.Kind != yaml.MappingNode {
		return nil
	}

	var repos []string
	content := entry.Repos.Content
	for i := 0; i+1 < len(content); i += 2 {
		repos = append(repos, content[i].Value)
	}
	return repos
}
