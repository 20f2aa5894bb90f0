package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.ctxforge/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ctxforge", "logs")
	}
	return filepath.Join(home, ".ctxforge", "logs")
}

// DefaultLogPath returns the default ctxforge log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "ctxforge.log")
}

// EnsureLogDir creates the log directory if it doesn't already exist.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}
