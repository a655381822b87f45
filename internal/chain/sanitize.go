package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"ccs-host/internal/config"
	"ccs-host/internal/logger"
)

const (
	digestSuffixLen = 8
	// smallest ceiling that still fits a digest-tagged name
	minNameLength = 16
)

/**
 * SanitizerLink shortens tool names that exceed the provider's ceiling
 * @description
 * - Repeated path segments are deduplicated first; if the name still
 *   exceeds the ceiling it is truncated and tagged with an 8-hex digest
 *   of the original so distinct names never collide
 * - The sanitized-to-original mapping is kept in memory and applied in
 *   reverse to response bodies, so the downstream CLI only ever sees
 *   the names it sent
 */
type SanitizerLink struct {
	baseLink
	cfg      config.SanitizerConfig
	upstream *url.URL

	mutex    sync.Mutex
	original map[string]string // sanitized -> original
}

// NewSanitizerLink creates the identifier-length link in front of upstream.
func NewSanitizerLink(cfg config.SanitizerConfig, upstreamBase string) (*SanitizerLink, error) {
	upstream, err := url.Parse(upstreamBase)
	if err != nil {
		return nil, fmt.Errorf("parse sanitizer upstream '%s': %w", upstreamBase, err)
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 64
	} else if cfg.MaxLength < minNameLength {
		logger.Warnf("Sanitizer max length %d cannot fit a digest-tagged name, raising it to %d",
			cfg.MaxLength, minNameLength)
		cfg.MaxLength = minNameLength
	}
	return &SanitizerLink{
		baseLink: baseLink{name: "sanitizer"},
		cfg:      cfg,
		upstream: upstream,
		original: make(map[string]string),
	}, nil
}

func isSegmentSeparator(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-')
}

/**
 * Shorten a tool name to the configured ceiling
 * @returns {string} A valid identifier of at most MaxLength characters
 * @description
 * - Segments are split on every non-identifier character; the first
 *   occurrence of each segment survives, repeats are dropped
 * - A digest suffix keeps the result unique per original name
 */
func (l *SanitizerLink) sanitizeName(name string) string {
	seen := make(map[string]bool)
	var segments []string
	for _, seg := range strings.FieldsFunc(name, isSegmentSeparator) {
		if seen[seg] {
			continue
		}
		seen[seg] = true
		segments = append(segments, seg)
	}
	deduped := strings.Join(segments, "_")
	if len(deduped) <= l.cfg.MaxLength {
		return deduped
	}

	sum := sha256.Sum256([]byte(name))
	digest := hex.EncodeToString(sum[:])[:digestSuffixLen]
	keep := l.cfg.MaxLength - digestSuffixLen - 1
	return strings.TrimRight(deduped[:keep], "_-") + "_" + digest
}

// sanitize returns the replacement for a tool name, remembering the
// mapping, or the name itself when it already fits.
func (l *SanitizerLink) sanitize(name string) string {
	if len(name) <= l.cfg.MaxLength {
		return name
	}
	short := l.sanitizeName(name)

	l.mutex.Lock()
	l.original[short] = name
	l.mutex.Unlock()
	return short
}

// Resolve maps a sanitized name back to the original, or returns the
// input unchanged when it was never rewritten.
func (l *SanitizerLink) Resolve(name string) string {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if original, ok := l.original[name]; ok {
		return original
	}
	return name
}

// rewriteNames walks a JSON value and rewrites every "name" string
// field through fn.
func rewriteNames(value interface{}, fn func(string) string) bool {
	changed := false
	switch v := value.(type) {
	case map[string]interface{}:
		for key, child := range v {
			if key == "name" {
				if name, ok := child.(string); ok {
					if replaced := fn(name); replaced != name {
						v[key] = replaced
						changed = true
					}
					continue
				}
			}
			if rewriteNames(child, fn) {
				changed = true
			}
		}
	case []interface{}:
		for _, child := range v {
			if rewriteNames(child, fn) {
				changed = true
			}
		}
	}
	return changed
}

func (l *SanitizerLink) rewriteRequest(path string, body map[string]interface{}) bool {
	return rewriteNames(body, l.sanitize)
}

func (l *SanitizerLink) rewriteResponse(path string, body map[string]interface{}) bool {
	return rewriteNames(body, l.Resolve)
}

func (l *SanitizerLink) Start(ctx context.Context) (int, error) {
	fwd := newForwarder(l.upstream, http.DefaultTransport)
	fwd.rewriteRequest = l.rewriteRequest
	fwd.rewriteResponse = l.rewriteResponse

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.NoRoute(fwd.handle)
	return l.start(engine)
}
