package platform

import (
	"fmt"
	"runtime"
)

// ArchiveFormat names the packaging of a release artifact.
type ArchiveFormat string

const (
	FormatTarGz ArchiveFormat = "tar.gz"
	FormatZip   ArchiveFormat = "zip"
)

/**
 * Target describes the host platform a proxy artifact is built for
 * @property {string} OS - Operating system name (linux/darwin/windows)
 * @property {string} Arch - CPU architecture (amd64/arm64)
 * @property {ArchiveFormat} Format - Archive format the release ships for this OS
 * @description
 * - Derived once from the host environment, immutable afterwards
 * - Determines the expected artifact filename
 */
type Target struct {
	OS     string
	Arch   string
	Format ArchiveFormat
}

// Detect resolves the host platform. Unsupported OS/arch combinations
// fail here, before any network call is made.
func Detect() (Target, error) {
	return detect(runtime.GOOS, runtime.GOARCH)
}

func detect(goos, goarch string) (Target, error) {
	switch goarch {
	case "amd64", "arm64":
	default:
		return Target{}, fmt.Errorf("unsupported architecture: %s", goarch)
	}

	switch goos {
	case "linux", "darwin":
		return Target{OS: goos, Arch: goarch, Format: FormatTarGz}, nil
	case "windows":
		return Target{OS: goos, Arch: goarch, Format: FormatZip}, nil
	default:
		return Target{}, fmt.Errorf("unsupported operating system: %s", goos)
	}
}

// ArchiveName returns the release artifact filename for a package.
func (t Target) ArchiveName(packageName string) string {
	return fmt.Sprintf("%s-%s-%s.%s", packageName, t.OS, t.Arch, t.Format)
}

// ExecutableName returns the platform-specific executable filename.
func (t Target) ExecutableName(packageName string) string {
	if t.OS == "windows" {
		return packageName + ".exe"
	}
	return packageName
}
