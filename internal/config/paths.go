package config

import (
	"os"
	"path/filepath"

	"github.com/grovekit/grove/internal/constants"
)

// GroveHomeDir returns the grove home directory (~/.grove).
func GroveHomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, constants.GroveHome), nil
}

// GlobalConfigPath returns the global config file path
// (~/.grove/config.yaml).
func GlobalConfigPath() (string, error) {
	dir, err := GroveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultScratchRoot returns where workspaces and outputs live when no
// scratch root is configured.
func DefaultScratchRoot() string {
	dir, err := GroveHomeDir()
	if err != nil {
		// No resolvable home directory; fall back to the system temp dir.
		return filepath.Join(os.TempDir(), "grove")
	}
	return dir
}

// DefaultLogDir returns the directory for rotating log files.
func DefaultLogDir() string {
	return filepath.Join(DefaultScratchRoot(), constants.LogsDir)
}
