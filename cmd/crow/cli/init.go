package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drugcrow/crow/cmd/crow/cli/config"
	"github.com/drugcrow/crow/cmd/crow/cli/db"
)

const gitignoreEntry = ".crow/"

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a crow workspace in the current directory",
		Long: "Creates .crow/ with the local store and a config template. Running init again\n" +
			"resets the workspace but keeps an edited config.yaml.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			root, err := os.Getwd()
			if err != nil {
				return fail(cmd, fmt.Errorf("get working directory: %w", err))
			}
			if err := runInit(root); err != nil {
				return fail(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Crow initialized.")
			return nil
		},
	}
}

func runInit(root string) error {
	crowDir := CrowDir(root)

	// Re-run = clean + reinit, keeping the user's config.
	cfgData, err := os.ReadFile(ConfigPath(root))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read config: %w", err)
	}
	if err := runClean(root); err != nil {
		return err
	}

	if err := os.MkdirAll(crowDir, 0o755); err != nil {
		return fmt.Errorf("create .crow/: %w", err)
	}

	dataDB, err := db.OpenData(root)
	if err != nil {
		return fmt.Errorf("create data DB: %w", err)
	}
	if err := db.InitDataSchema(dataDB); err != nil {
		dataDB.Close()
		return fmt.Errorf("init data schema: %w", err)
	}
	dataDB.Close()

	if cfgData == nil {
		cfgData = []byte(config.Template)
	}
	if err := os.WriteFile(ConfigPath(root), cfgData, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	if err := ensureGitignore(root); err != nil {
		return fmt.Errorf("update .gitignore: %w", err)
	}
	return nil
}

// ensureGitignore adds .crow/ to .gitignore when root is a git checkout
// or already has a .gitignore.
func ensureGitignore(root string) error {
	gitignorePath := filepath.Join(root, ".gitignore")

	data, err := os.ReadFile(gitignorePath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if os.IsNotExist(err) {
		if _, gerr := os.Stat(filepath.Join(root, ".git")); gerr != nil {
			return nil
		}
	}

	content := string(data)
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == gitignoreEntry {
			return nil
		}
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	_, err = f.WriteString(gitignoreEntry + "\n")
	return err
}
