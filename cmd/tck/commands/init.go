package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"tckvault/pkg/config"

	"github.com/spf13/cobra"
)

const defaultConfig = `# tckvault configuration
storage:
  type: disk
alias:
  immutable: [TCK, TOPLEVEL]
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a tckvault repository",
	Long:  `Create an empty tckvault repository (.tck) with a default config.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		return initRepo(cmd, filepath.Join(wd, config.RepoDir))
	},
}

func initRepo(cmd *cobra.Command, repoPath string) error {
	out := cmd.OutOrStdout()
	if _, err := os.Stat(repoPath); err == nil {
		fmt.Fprintf(out, "⚠️  tckvault repository already exists in %s\n", repoPath)
		return nil
	}

	for _, dir := range []string{"objects", "aliases"} {
		if err := os.MkdirAll(filepath.Join(repoPath, dir), 0755); err != nil {
			return fmt.Errorf("failed to create repo directory: %w", err)
		}
	}
	if err := os.WriteFile(filepath.Join(repoPath, "config.yaml"), []byte(defaultConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(out, "✅ Initialized empty tckvault repository in %s\n", repoPath)
	return nil
}

func init() {
	rootCmd.AddCommand(initCmd)
}
