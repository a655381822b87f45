package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ccs-host/internal/platform"
)

func buildTarGz(t *testing.T, members map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, data := range members {
		hdr := &tar.Header{
			Name:     name,
			Mode:     0755,
			Size:     int64(len(data)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write tar header: %v", err)
		}
		if _, err := tw.Write(data); err != nil {
			t.Fatalf("write tar member: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

func buildZip(t *testing.T, members map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip member: %v", err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write zip member: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

/**
 * TestExtractTarGz verifies member extraction from tar.gz archives
 * @description
 * - The matching member's bytes come back unmodified
 * - Non-matching members are skipped
 * - Members below a leading directory are found by base name
 */
func TestExtractTarGz(t *testing.T) {
	want := []byte("#!/bin/sh\necho proxy\n")
	raw := buildTarGz(t, map[string][]byte{
		"ccs-proxy-1.2.0/README.md": []byte("readme"),
		"ccs-proxy-1.2.0/ccs-proxy": want,
	})

	got, err := Extract(bytes.NewReader(raw), platform.FormatTarGz, "ccs-proxy")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("member bytes differ: expected %q, got %q", want, got)
	}
}

/**
 * TestExtractZip verifies member extraction from zip archives
 */
func TestExtractZip(t *testing.T) {
	want := []byte("MZ fake windows executable")
	raw := buildZip(t, map[string][]byte{
		"checksums.txt": []byte("irrelevant"),
		"ccs-proxy.exe": want,
	})

	got, err := Extract(bytes.NewReader(raw), platform.FormatZip, "ccs-proxy.exe")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("member bytes differ: expected %q, got %q", want, got)
	}
}

/**
 * TestExtractMissingMember verifies the sentinel error for absent members
 */
func TestExtractMissingMember(t *testing.T) {
	raw := buildTarGz(t, map[string][]byte{"other": []byte("x")})
	_, err := Extract(bytes.NewReader(raw), platform.FormatTarGz, "ccs-proxy")
	if !errors.Is(err, ErrMemberNotFound) {
		t.Errorf("expected ErrMemberNotFound, got %v", err)
	}
}

/**
 * TestExtractFile verifies installation writes exactly one executable file
 * @description
 * - The destination holds the member's raw bytes
 * - Mode is 0755
 * - No temp files are left behind
 */
func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	want := []byte("binary payload")
	raw := buildTarGz(t, map[string][]byte{"ccs-proxy": want})

	archivePath := filepath.Join(dir, "ccs-proxy-linux-amd64.tar.gz")
	if err := os.WriteFile(archivePath, raw, 0644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(dir, "bin", "ccs-proxy")
	if err := ExtractFile(archivePath, platform.FormatTarGz, "ccs-proxy", dest); err != nil {
		t.Fatalf("ExtractFile failed: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("destination bytes differ")
	}
	info, err := os.Stat(dest)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0755 {
		t.Errorf("expected mode 0755, got %v", info.Mode().Perm())
	}

	entries, err := os.ReadDir(filepath.Join(dir, "bin"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly one output file, got %d", len(entries))
	}
}
