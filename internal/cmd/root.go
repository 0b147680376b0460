package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "org-infra",
	Short: "Propagate canonical repository files across a GitHub organization",
	Long: `org-infra keeps policy documents, workflow definitions and templates
consistent across every repository in an organization. It uses a fork-based
workflow: changes are pushed to a fork owned by the authenticated actor and
proposed upstream as pull requests, so no write access to target
repositories is required.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
