package acquire

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"ccs-host/internal/archive"
	"ccs-host/internal/download"
	"ccs-host/internal/env"
	"ccs-host/internal/logger"
	"ccs-host/internal/platform"
)

// IntegrityError reports a checksum mismatch between the downloaded
// archive and the release manifest. The archive is deleted before this
// error surfaces.
type IntegrityError struct {
	Artifact  string
	Expected  string
	Actual    string
	ManualURL string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("checksum mismatch for '%s': expected %s, got %s; "+
		"download it manually from %s and place it under %s",
		e.Artifact, e.Expected, e.Actual, e.ManualURL, env.BinDir())
}

/**
 * Acquirer guarantees the shared proxy executable is installed and genuine
 * @property {string} BaseUrl - Release artifact server base URL
 * @property {string} PackageName - Distributed package name
 * @description
 * - ensure() is the cheap happy path: an existing executable is trusted
 *   without re-verifying its checksum
 * - a fresh download is verified against the release checksum manifest
 *   before it is unpacked; a mismatching archive never reaches disk as
 *   an executable
 */
type Acquirer struct {
	BaseUrl     string
	PackageName string
	client      *download.Client
	target      platform.Target
	installDir  string
	packageDir  string
}

// NewAcquirer creates an acquirer for the configured release endpoint.
// Platform detection failures surface here, before any network call.
func NewAcquirer(baseUrl, packageName string) (*Acquirer, error) {
	target, err := platform.Detect()
	if err != nil {
		return nil, err
	}
	return &Acquirer{
		BaseUrl:     strings.TrimSuffix(baseUrl, "/"),
		PackageName: packageName,
		client:      download.NewClient(),
		target:      target,
		installDir:  env.BinDir(),
		packageDir:  env.PackageDir(),
	}, nil
}

// ExecutablePath returns the install path of the proxy executable.
func (a *Acquirer) ExecutablePath() string {
	return filepath.Join(a.installDir, a.target.ExecutableName(a.PackageName))
}

func (a *Acquirer) versionSegment(version string) string {
	if version == "" {
		return "latest"
	}
	return version
}

func (a *Acquirer) archiveURL(version string) string {
	return fmt.Sprintf("%s/%s/%s", a.BaseUrl, a.versionSegment(version), a.target.ArchiveName(a.PackageName))
}

func (a *Acquirer) checksumURL(version string) string {
	return fmt.Sprintf("%s/%s/checksums.txt", a.BaseUrl, a.versionSegment(version))
}

/**
 * Ensure the proxy executable is present, acquiring it when missing
 * @param {string} version - Release version, empty for latest
 * @returns {string} Path of the installed executable
 * @description
 * - Existing executable short-circuits with zero network requests
 * - Otherwise: download archive, verify sha256 against checksums.txt,
 *   extract the executable member, delete the archive, chmod 0755
 * - A mismatching archive is deleted and the failure includes both
 *   digests plus the manual download URL
 */
func (a *Acquirer) Ensure(ctx context.Context, version string) (string, error) {
	execPath := a.ExecutablePath()
	if info, err := os.Stat(execPath); err == nil && !info.IsDir() {
		logger.Debugf("Proxy executable already installed at '%s'", execPath)
		return execPath, nil
	}
	return a.install(ctx, version)
}

// ForceUpgrade re-acquires the executable even when one is installed.
func (a *Acquirer) ForceUpgrade(ctx context.Context, version string) (string, error) {
	return a.install(ctx, version)
}

func (a *Acquirer) install(ctx context.Context, version string) (string, error) {
	archiveName := a.target.ArchiveName(a.PackageName)
	archiveURL := a.archiveURL(version)
	archivePath := filepath.Join(a.packageDir, archiveName)

	logger.Infof("Downloading %s from '%s'", archiveName, archiveURL)
	outcome := a.client.FetchFile(ctx, archiveURL, archivePath)
	if !outcome.Success {
		return "", fmt.Errorf("download proxy archive (after %d attempts): %s",
			outcome.AttemptsUsed, outcome.ErrorMessage)
	}

	if err := a.verify(ctx, version, archiveName, archivePath, archiveURL); err != nil {
		os.Remove(archivePath)
		return "", err
	}

	execPath := a.ExecutablePath()
	memberName := a.target.ExecutableName(a.PackageName)
	if err := archive.ExtractFile(archivePath, a.target.Format, memberName, execPath); err != nil {
		os.Remove(archivePath)
		return "", fmt.Errorf("unpack proxy archive: %w", err)
	}
	os.Remove(archivePath)

	if runtime.GOOS != "windows" {
		if err := os.Chmod(execPath, 0755); err != nil {
			return "", fmt.Errorf("make '%s' executable: %w", execPath, err)
		}
	}

	logger.Infof("Proxy executable installed at '%s'", execPath)
	return execPath, nil
}

func (a *Acquirer) verify(ctx context.Context, version, archiveName, archivePath, archiveURL string) error {
	manifest, err := a.client.FetchText(ctx, a.checksumURL(version))
	if err != nil {
		return fmt.Errorf("fetch checksum manifest: %w", err)
	}

	sums := ParseChecksumManifest(manifest)
	expected, ok := sums[archiveName]
	if !ok {
		return fmt.Errorf("checksum manifest has no entry for '%s'", archiveName)
	}

	actual, err := FileSha256(archivePath)
	if err != nil {
		return err
	}
	if !strings.EqualFold(actual, expected) {
		return &IntegrityError{
			Artifact:  archiveName,
			Expected:  expected,
			Actual:    actual,
			ManualURL: archiveURL,
		}
	}
	return nil
}
