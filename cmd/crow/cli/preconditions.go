package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var errNotInitialized = errors.New("crow not initialized; run 'crow init' first")

// FindRoot walks up from the working directory to the nearest directory
// containing .crow/.
func FindRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	for {
		if info, err := os.Stat(CrowDir(dir)); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errNotInitialized
		}
		dir = parent
	}
}

// EnsureInitDone checks that root holds an initialized .crow/ with its
// local store.
func EnsureInitDone(root string) error {
	info, err := os.Stat(CrowDir(root))
	if err != nil || !info.IsDir() {
		return errNotInitialized
	}
	if _, err := os.Stat(filepath.Join(CrowDir(root), "data.db")); err != nil {
		return errNotInitialized
	}
	return nil
}

// CrowDir returns the path to .crow/ within root.
func CrowDir(root string) string {
	return filepath.Join(root, ".crow")
}

// ConfigPath returns the workspace config file.
func ConfigPath(root string) string {
	return filepath.Join(CrowDir(root), "config.yaml")
}

// SchemaPath returns where `crow parse` writes the parsed schema.
func SchemaPath(root string) string {
	return filepath.Join(CrowDir(root), "schema.json")
}

// GraphPath returns where `crow graph` writes the serialized graph.
func GraphPath(root string) string {
	return filepath.Join(CrowDir(root), "graph.bin")
}

// workspace resolves and checks the workspace for cmd, printing the
// failure when there is none.
func workspace(cmd *cobra.Command) (string, error) {
	root, err := FindRoot()
	if err != nil {
		return "", fail(cmd, err)
	}
	if err := EnsureInitDone(root); err != nil {
		return "", fail(cmd, err)
	}
	return root, nil
}
