package env

import (
	"os"
	"path/filepath"
)

var Verbose bool = false

// (default: %USERPROFILE%/.ccs on Windows, $HOME/.ccs on Linux)
var CcsDir string = GetCcsDir()

/**
 * Get ccs runtime directory path
 * @returns {string} Returns ccs directory path
 * @description
 * - Honors the CCS_DIR environment variable when set
 * - Falls back to ~/.ccs otherwise
 */
func GetCcsDir() string {
	if dir := os.Getenv("CCS_DIR"); dir != "" {
		return dir
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".ccs")
}

// BinDir returns the directory holding installed executables.
func BinDir() string {
	return filepath.Join(CcsDir, "bin")
}

// PackageDir returns the directory caching downloaded release archives.
func PackageDir() string {
	return filepath.Join(CcsDir, "package")
}

// RunDir returns the directory holding cross-process coordination state
// (session ledgers and startup lock markers).
func RunDir() string {
	return filepath.Join(CcsDir, "run")
}

// LogDir returns the directory for log files.
func LogDir() string {
	return filepath.Join(CcsDir, "logs")
}
