package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"ccs-host/internal/platform"
)

// ErrMemberNotFound is returned when the expected executable member is
// absent from the archive.
var ErrMemberNotFound = fmt.Errorf("archive member not found")

/**
 * Extract one named member from an archive stream
 * @param {io.Reader} r - Archive content
 * @param {ArchiveFormat} format - tar.gz or zip
 * @param {string} memberName - Base name of the member to extract
 * @returns {[]byte} Raw bytes of the matching member
 * @description
 * - Members other than the match are skipped without being buffered
 * - A match may sit below a leading directory (name is matched on base)
 */
func Extract(r io.Reader, format platform.ArchiveFormat, memberName string) ([]byte, error) {
	switch format {
	case platform.FormatTarGz:
		return extractTarGz(r, memberName)
	case platform.FormatZip:
		return extractZip(r, memberName)
	default:
		return nil, fmt.Errorf("unsupported archive format: %s", format)
	}
}

/**
 * Extract a member from an archive file and install it as an executable
 * @param {string} archivePath - Path of the downloaded archive
 * @param {ArchiveFormat} format - Archive format
 * @param {string} memberName - Member to extract
 * @param {string} destPath - Destination path for the executable
 * @description
 * - Writes to a temporary sibling first, then renames atomically
 * - Destination mode is 0755 (callers re-chmod on Windows as needed)
 */
func ExtractFile(archivePath string, format platform.ArchiveFormat, memberName, destPath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive '%s': %w", archivePath, err)
	}
	defer f.Close()

	data, err := Extract(f, format, memberName)
	if err != nil {
		return fmt.Errorf("extract '%s' from '%s': %w", memberName, archivePath, err)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create install directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".extract-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write executable: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", closeErr)
	}
	if err := os.Chmod(tmpPath, 0755); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod executable: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename executable: %w", err)
	}
	return nil
}

func matches(entryName, memberName string) bool {
	return path.Base(entryName) == memberName
}

func extractTarGz(r io.Reader, memberName string) ([]byte, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if !matches(hdr.Name, memberName) {
			// Skipped members are never buffered; the tar reader
			// advances past them on the next Next() call.
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("tar member '%s': %w", hdr.Name, err)
		}
		if int64(len(data)) != hdr.Size {
			return nil, fmt.Errorf("tar member '%s': short read, expected %d bytes, got %d", hdr.Name, hdr.Size, len(data))
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: '%s'", ErrMemberNotFound, memberName)
}

func extractZip(r io.Reader, memberName string) ([]byte, error) {
	// zip requires random access; the central directory sits at the end.
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("zip: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("zip: %w", err)
	}

	for _, file := range zr.File {
		if file.FileInfo().IsDir() {
			continue
		}
		if !matches(file.Name, memberName) {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("zip member '%s': %w", file.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("zip member '%s': %w", file.Name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: '%s'", ErrMemberNotFound, memberName)
}
