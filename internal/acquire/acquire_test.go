package acquire

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"

	"ccs-host/internal/env"
)

func buildProxyArchive(t *testing.T, memberName string, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	hdr := &tar.Header{Name: memberName, Mode: 0755, Size: int64(len(payload)), Typeflag: tar.TypeReg}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(payload); err != nil {
		t.Fatal(err)
	}
	tw.Close()
	gz.Close()
	return buf.Bytes()
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type releaseServer struct {
	srv      *httptest.Server
	requests int32
}

func newReleaseServer(t *testing.T, archiveName string, archiveData []byte, manifest string) *releaseServer {
	rs := &releaseServer{}
	rs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&rs.requests, 1)
		switch r.URL.Path {
		case "/latest/" + archiveName:
			w.Write(archiveData)
		case "/latest/checksums.txt":
			fmt.Fprint(w, manifest)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(rs.srv.Close)
	return rs
}

func setupAcquirer(t *testing.T, baseUrl string) *Acquirer {
	t.Helper()
	oldDir := env.CcsDir
	env.CcsDir = t.TempDir()
	t.Cleanup(func() { env.CcsDir = oldDir })

	a, err := NewAcquirer(baseUrl, "ccs-proxy")
	if err != nil {
		t.Fatalf("NewAcquirer failed: %v", err)
	}
	return a
}

/**
 * TestEnsureHappyPath verifies download, verify, unpack, cleanup
 * @description
 * - The installed executable holds the member's raw bytes
 * - The downloaded archive is deleted after extraction
 */
func TestEnsureHappyPath(t *testing.T) {
	payload := []byte("#!/bin/sh\necho proxy\n")
	a := setupAcquirer(t, "http://placeholder")
	memberName := a.target.ExecutableName("ccs-proxy")
	archiveName := a.target.ArchiveName("ccs-proxy")
	archiveData := buildProxyArchive(t, memberName, payload)
	manifest := fmt.Sprintf("%s  %s\n", sha256Hex(archiveData), archiveName)

	rs := newReleaseServer(t, archiveName, archiveData, manifest)
	a.BaseUrl = rs.srv.URL

	path, err := a.Ensure(context.Background(), "")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("installed executable differs from archive member")
	}
	if runtime.GOOS != "windows" {
		info, _ := os.Stat(path)
		if info.Mode().Perm()&0100 == 0 {
			t.Error("executable bit not set")
		}
	}
	if _, err := os.Stat(filepath.Join(env.PackageDir(), archiveName)); !os.IsNotExist(err) {
		t.Error("archive should be deleted after extraction")
	}
}

/**
 * TestEnsureIdempotent verifies the second call makes zero network requests
 */
func TestEnsureIdempotent(t *testing.T) {
	payload := []byte("proxy")
	a := setupAcquirer(t, "http://placeholder")
	memberName := a.target.ExecutableName("ccs-proxy")
	archiveName := a.target.ArchiveName("ccs-proxy")
	archiveData := buildProxyArchive(t, memberName, payload)
	manifest := fmt.Sprintf("%s  %s\n", sha256Hex(archiveData), archiveName)

	rs := newReleaseServer(t, archiveName, archiveData, manifest)
	a.BaseUrl = rs.srv.URL

	if _, err := a.Ensure(context.Background(), ""); err != nil {
		t.Fatalf("first Ensure failed: %v", err)
	}
	before := atomic.LoadInt32(&rs.requests)

	if _, err := a.Ensure(context.Background(), ""); err != nil {
		t.Fatalf("second Ensure failed: %v", err)
	}
	if after := atomic.LoadInt32(&rs.requests); after != before {
		t.Errorf("second Ensure made %d network requests", after-before)
	}
}

/**
 * TestEnsureChecksumMismatch verifies the fail-closed integrity path
 * @description
 * - Ensure fails with an IntegrityError naming both digests
 * - The mismatching archive does not remain on disk
 */
func TestEnsureChecksumMismatch(t *testing.T) {
	a := setupAcquirer(t, "http://placeholder")
	memberName := a.target.ExecutableName("ccs-proxy")
	archiveName := a.target.ArchiveName("ccs-proxy")
	archiveData := buildProxyArchive(t, memberName, []byte("tampered"))
	manifest := fmt.Sprintf("%064x  %s\n", 0xdead, archiveName)

	rs := newReleaseServer(t, archiveName, archiveData, manifest)
	a.BaseUrl = rs.srv.URL

	_, err := a.Ensure(context.Background(), "")
	var ie *IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if ie.Expected == "" || ie.Actual == "" || ie.ManualURL == "" {
		t.Errorf("integrity error missing diagnostics: %+v", ie)
	}
	if _, statErr := os.Stat(filepath.Join(env.PackageDir(), archiveName)); !os.IsNotExist(statErr) {
		t.Error("mismatching archive must not remain on disk")
	}
}

/**
 * TestParseChecksumManifest verifies manifest parsing rules
 */
func TestParseChecksumManifest(t *testing.T) {
	digest := sha256Hex([]byte("x"))
	text := fmt.Sprintf("# release 1.2.0\n%s  ccs-proxy-linux-amd64.tar.gz\n%s *ccs-proxy-windows-amd64.zip\nbadline\nzz  short\n",
		digest, digest)
	sums := ParseChecksumManifest(text)
	if len(sums) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(sums), sums)
	}
	if sums["ccs-proxy-linux-amd64.tar.gz"] != digest {
		t.Error("plain entry not parsed")
	}
	if sums["ccs-proxy-windows-amd64.zip"] != digest {
		t.Error("binary-mode entry not parsed")
	}
}
