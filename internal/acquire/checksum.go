package acquire

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

/**
 * Parse a checksum manifest into filename -> digest pairs
 * @param {string} text - Manifest body, one "<sha256-hex>  <filename>" per line
 * @returns {map[string]string} Lowercased hex digest keyed by exact filename
 * @description
 * - Blank lines and comment lines are skipped
 * - Filenames are matched exactly, digests case-insensitively
 */
func ParseChecksumManifest(text string) map[string]string {
	sums := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		digest := strings.ToLower(fields[0])
		if len(digest) != sha256.Size*2 {
			continue
		}
		if _, err := hex.DecodeString(digest); err != nil {
			continue
		}
		// sha256sum marks binary-mode files with a leading '*'
		name := strings.TrimPrefix(fields[1], "*")
		sums[name] = digest
	}
	return sums
}

// FileSha256 computes the hex sha256 digest of a file.
func FileSha256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open '%s': %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash '%s': %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
