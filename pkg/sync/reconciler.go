package sync

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/complytime/org-infra/pkg/config"
)

// Reconciler compares canonical files against a cloned working tree
// and copies the ones that are missing or stale. Dry-run mode computes
// the exact same classification without touching the filesystem, so
// its output is a faithful preview of a real run.
type Reconciler struct {
	// SourceRoot is the directory the rules' source paths resolve under.
	SourceRoot string
}

// Reconcile applies every rule, in order, against repoPath and returns
// the destination paths that changed (or would change in dry-run).
// A missing source file or an excluded repository skips the rule; it
// never fails the repository.
func (r *Reconciler) Reconcile(rules []config.FileRule, repoPath, repoName string, dryRun bool) ([]string, error) {
	var changed []string

	for _, rule := range rules {
		dest := rule.DestinationPath()
		sourcePath := filepath.Join(r.SourceRoot, rule.Source)
		destPath := filepath.Join(repoPath, dest)

		if _, err := os.Stat(sourcePath); err != nil {
			fmt.Printf("Source file not found: %s\n", rule.Source)
			continue
		}
		if rule.Excludes(repoName) {
			fmt.Printf("%s excluded for this repo\n", rule.Source)
			continue
		}

		exists := true
		if _, err := os.Stat(destPath); err != nil {
			exists = false
		}

		if exists {
			same, err := identicalContents(sourcePath, destPath)
			if err != nil {
				return nil, err
			}
			if same {
				fmt.Printf("%s is up to date\n", dest)
				continue
			}
		}

		if dryRun {
			if exists {
				fmt.Printf("[DRY RUN] Would update: %s\n", dest)
			} else {
				fmt.Printf("[DRY RUN] Would add: %s\n", dest)
			}
		} else {
			if exists {
				fmt.Printf("%s needs update\n", dest)
			} else {
				fmt.Printf("%s is missing\n", dest)
			}
			if err := copyFile(sourcePath, destPath); err != nil {
				return nil, fmt.Errorf("failed to sync %s: %w", dest, err)
			}
		}
		changed = append(changed, dest)
	}

	return changed, nil
}

// identicalContents compares two files byte for byte. Size or mtime
// heuristics would misclassify same-length edits.
func identicalContents(a, b string) (bool, error) {
	dataA, err := os.ReadFile(a)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", a, err)
	}
	dataB, err := os.ReadFile(b)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", b, err)
	}
	return bytes.Equal(dataA, dataB), nil
}

// copyFile copies src over dst, creating parent directories and
// carrying over the source's permissions and timestamps.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, info.Mode().Perm()); err != nil {
		return err
	}
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
