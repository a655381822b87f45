package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"ccs-host/internal/config"
	"ccs-host/internal/models"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.ReleaseMode)
	m.Run()
}

// captureUpstream records the last request it received and answers with
// a fixed body.
type captureUpstream struct {
	srv      *httptest.Server
	lastBody []byte
	lastReq  *http.Request
	respond  func(w http.ResponseWriter, r *http.Request)
}

func newCaptureUpstream(t *testing.T) *captureUpstream {
	t.Helper()
	u := &captureUpstream{}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.lastReq = r
		u.lastBody, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(u.lastBody))
		if u.respond != nil {
			u.respond(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func startLink(t *testing.T, l Link) int {
	t.Helper()
	port, err := l.Start(context.Background())
	if err != nil {
		t.Fatalf("start %s link: %v", l.Name(), err)
	}
	t.Cleanup(l.Stop)
	return port
}

func postJSON(t *testing.T, port int, path string, body map[string]interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	rsp, err := http.Post(fmt.Sprintf("http://127.0.0.1:%d%s", port, path),
		"application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { rsp.Body.Close() })
	return rsp
}

/**
 * TestReasoningSuffixRewrite verifies suffix extraction
 * @description
 * - "gpt-5.2-codex-xhigh" forwards as model "gpt-5.2-codex" with
 *   reasoning.effort "xhigh"
 */
func TestReasoningSuffixRewrite(t *testing.T) {
	upstream := newCaptureUpstream(t)
	link, err := NewReasoningLink(config.ReasoningConfig{DefaultEffort: "xhigh"}, upstream.srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port := startLink(t, link)

	postJSON(t, port, "/v1/responses", map[string]interface{}{
		"model": "gpt-5.2-codex-xhigh",
		"input": "hello",
	})

	var forwarded map[string]interface{}
	if err := json.Unmarshal(upstream.lastBody, &forwarded); err != nil {
		t.Fatalf("forwarded body is not JSON: %v", err)
	}
	if forwarded["model"] != "gpt-5.2-codex" {
		t.Errorf("expected bare model, got %v", forwarded["model"])
	}
	reasoning, _ := forwarded["reasoning"].(map[string]interface{})
	if reasoning == nil || reasoning["effort"] != "xhigh" {
		t.Errorf("expected reasoning.effort xhigh, got %v", forwarded["reasoning"])
	}
	if forwarded["input"] != "hello" {
		t.Error("unrelated fields must pass through")
	}
}

/**
 * TestReasoningTierFallback verifies tier mapping without a suffix
 * @description
 * - A secondary-tier model with no override maps to effort "high"
 * - A per-model override beats the tier mapping
 */
func TestReasoningTierFallback(t *testing.T) {
	upstream := newCaptureUpstream(t)
	link, err := NewReasoningLink(config.ReasoningConfig{
		DefaultEffort: "xhigh",
		SecondaryTier: []string{"gpt-5.2"},
		TertiaryTier:  []string{"gpt-5-mini"},
		ModelEfforts:  map[string]string{"gpt-5-mini": "medium"},
	}, upstream.srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port := startLink(t, link)

	effortFor := func(model string) string {
		postJSON(t, port, "/v1/responses", map[string]interface{}{"model": model})
		var forwarded map[string]interface{}
		if err := json.Unmarshal(upstream.lastBody, &forwarded); err != nil {
			t.Fatal(err)
		}
		reasoning, _ := forwarded["reasoning"].(map[string]interface{})
		if reasoning == nil {
			t.Fatalf("no reasoning field for %s", model)
		}
		effort, _ := reasoning["effort"].(string)
		return effort
	}

	if effort := effortFor("gpt-5.2"); effort != "high" {
		t.Errorf("secondary tier: expected high, got %q", effort)
	}
	if effort := effortFor("gpt-5-mini"); effort != "medium" {
		t.Errorf("override must beat tier: expected medium, got %q", effort)
	}
	if effort := effortFor("gpt-5.2-codex"); effort != "xhigh" {
		t.Errorf("default tier: expected xhigh, got %q", effort)
	}
}

/**
 * TestReasoningStatusEndpoint verifies the side channel
 */
func TestReasoningStatusEndpoint(t *testing.T) {
	upstream := newCaptureUpstream(t)
	link, err := NewReasoningLink(config.ReasoningConfig{DefaultEffort: "xhigh"}, upstream.srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port := startLink(t, link)

	postJSON(t, port, "/v1/responses", map[string]interface{}{"model": "gpt-5.2-codex-low"})
	postJSON(t, port, "/v1/responses", map[string]interface{}{"model": "gpt-5.2-codex-low"})

	rsp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/__ccs/reasoning", port))
	if err != nil {
		t.Fatal(err)
	}
	defer rsp.Body.Close()

	var status models.ReasoningStatus
	if err := json.NewDecoder(rsp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Counts["low"] != 2 {
		t.Errorf("expected 2 low rewrites, got %v", status.Counts)
	}
	if len(status.Recent) != 2 {
		t.Errorf("expected 2 recent records, got %d", len(status.Recent))
	}
	if status.Recent[0].ModelIn != "gpt-5.2-codex-low" || status.Recent[0].ModelOut != "gpt-5.2-codex" {
		t.Errorf("record lost detail: %+v", status.Recent[0])
	}
	if status.DefaultEffort != "xhigh" {
		t.Errorf("expected default effort in status, got %q", status.DefaultEffort)
	}
}

/**
 * TestPassthrough verifies non-mutating and non-JSON traffic is piped
 * @description
 * - GET requests reach upstream with path and query intact
 * - A POST without a JSON content type streams through byte-for-byte
 */
func TestPassthrough(t *testing.T) {
	upstream := newCaptureUpstream(t)
	link, err := NewReasoningLink(config.ReasoningConfig{DefaultEffort: "xhigh"}, upstream.srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port := startLink(t, link)

	rsp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/v1/models?limit=3", port))
	if err != nil {
		t.Fatal(err)
	}
	rsp.Body.Close()
	if upstream.lastReq.URL.Path != "/v1/models" || upstream.lastReq.URL.RawQuery != "limit=3" {
		t.Errorf("path/query mangled: %v", upstream.lastReq.URL)
	}

	raw := []byte("model=gpt-5.2-codex-xhigh&stream=true")
	rsp, err = http.Post(fmt.Sprintf("http://127.0.0.1:%d/v1/legacy", port),
		"application/x-www-form-urlencoded", bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	rsp.Body.Close()
	if !bytes.Equal(upstream.lastBody, raw) {
		t.Errorf("non-JSON body must stream through untouched, got %q", upstream.lastBody)
	}
}

/**
 * TestUpstreamStatusPassthrough verifies status and headers survive
 */
func TestUpstreamStatusPassthrough(t *testing.T) {
	upstream := newCaptureUpstream(t)
	upstream.respond = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req-42")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}
	link, err := NewReasoningLink(config.ReasoningConfig{DefaultEffort: "xhigh"}, upstream.srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port := startLink(t, link)

	rsp := postJSON(t, port, "/v1/responses", map[string]interface{}{"model": "gpt-5.2"})
	if rsp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429 passthrough, got %d", rsp.StatusCode)
	}
	if rsp.Header.Get("X-Request-Id") != "req-42" {
		t.Error("upstream headers must pass through")
	}
}

/**
 * TestSanitizerRoundTrip verifies shortening and reverse mapping
 * @description
 * - A 90-char tool name with duplicated path segments shrinks to at
 *   most 64 chars and stays a valid identifier
 * - A response referencing the short name is rewritten back to the
 *   original
 */
func TestSanitizerRoundTrip(t *testing.T) {
	longName := "mcp__filesystem_server__filesystem_server__read_text_file__read_text_file__with_options"
	if len(longName) < 80 {
		t.Fatalf("test name too short to exercise the ceiling: %d", len(longName))
	}

	var short string
	upstream := newCaptureUpstream(t)
	upstream.respond = func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &body)
		tools := body["tools"].([]interface{})
		short = tools[0].(map[string]interface{})["name"].(string)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"tool_calls":[{"name":%q,"arguments":"{}"}]}`, short)
	}

	link, err := NewSanitizerLink(config.SanitizerConfig{MaxLength: 64}, upstream.srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port := startLink(t, link)

	rsp := postJSON(t, port, "/v1/responses", map[string]interface{}{
		"model": "gpt-5.2",
		"tools": []interface{}{
			map[string]interface{}{"name": longName, "description": "reads a file"},
		},
	})

	if short == longName || short == "" {
		t.Fatalf("tool name was not sanitized: %q", short)
	}
	if len(short) > 64 {
		t.Errorf("sanitized name exceeds ceiling: %d chars", len(short))
	}
	if !regexp.MustCompile(`^[A-Za-z0-9_-]+$`).MatchString(short) {
		t.Errorf("sanitized name is not a valid identifier: %q", short)
	}
	if strings.Count(short, "filesystem") > 1 {
		t.Errorf("duplicated segments should be deduplicated: %q", short)
	}

	var reply map[string]interface{}
	if err := json.NewDecoder(rsp.Body).Decode(&reply); err != nil {
		t.Fatal(err)
	}
	calls := reply["tool_calls"].([]interface{})
	if name := calls[0].(map[string]interface{})["name"]; name != longName {
		t.Errorf("response must carry the original name, got %v", name)
	}
}

/**
 * TestSanitizerShortNamesUntouched verifies names under the ceiling pass
 */
func TestSanitizerShortNamesUntouched(t *testing.T) {
	upstream := newCaptureUpstream(t)
	link, err := NewSanitizerLink(config.SanitizerConfig{MaxLength: 64}, upstream.srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port := startLink(t, link)

	postJSON(t, port, "/v1/responses", map[string]interface{}{
		"tools": []interface{}{map[string]interface{}{"name": "read_file"}},
	})

	var forwarded map[string]interface{}
	if err := json.Unmarshal(upstream.lastBody, &forwarded); err != nil {
		t.Fatal(err)
	}
	name := forwarded["tools"].([]interface{})[0].(map[string]interface{})["name"]
	if name != "read_file" {
		t.Errorf("short names must pass through, got %v", name)
	}
}

/**
 * TestSanitizerDistinctNamesNeverCollide verifies the digest suffix
 */
func TestSanitizerDistinctNamesNeverCollide(t *testing.T) {
	link, err := NewSanitizerLink(config.SanitizerConfig{MaxLength: 64}, "http://127.0.0.1:1")
	if err != nil {
		t.Fatal(err)
	}
	// every segment unique, so deduplication cannot shrink below the
	// ceiling and truncation cuts off the differing tail
	prefix := "alpha_bravo_charlie_delta_echo_foxtrot_golf_hotel_india_juliett_kilo_lima"
	a := link.sanitize(prefix + "_one")
	b := link.sanitize(prefix + "_two")
	if a == b {
		t.Errorf("distinct originals collided on %q", a)
	}
	if len(a) > 64 || len(b) > 64 {
		t.Errorf("sanitized names exceed ceiling: %d, %d", len(a), len(b))
	}
}

/**
 * TestSanitizerTinyCeiling verifies a too-small ceiling cannot panic
 * @description
 * - A configured max length below what a digest-tagged name needs is
 *   raised to the floor instead of producing a negative slice bound
 */
func TestSanitizerTinyCeiling(t *testing.T) {
	link, err := NewSanitizerLink(config.SanitizerConfig{MaxLength: 4}, "http://127.0.0.1:1")
	if err != nil {
		t.Fatal(err)
	}

	long := "alpha_bravo_charlie_delta_echo_foxtrot"
	short := link.sanitize(long)
	if len(short) > 16 {
		t.Errorf("sanitized name exceeds the raised floor: %q", short)
	}
	if link.Resolve(short) != long {
		t.Errorf("round trip lost the original name: %q", short)
	}
}

/**
 * TestUpstreamBasePathPreserved verifies a path prefix on the upstream
 * base URL survives forwarding
 */
func TestUpstreamBasePathPreserved(t *testing.T) {
	upstream := newCaptureUpstream(t)
	link, err := NewSanitizerLink(config.SanitizerConfig{MaxLength: 64}, upstream.srv.URL+"/api")
	if err != nil {
		t.Fatal(err)
	}
	port := startLink(t, link)

	rsp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/v1/models", port))
	if err != nil {
		t.Fatal(err)
	}
	rsp.Body.Close()
	if upstream.lastReq.URL.Path != "/api/v1/models" {
		t.Errorf("base path dropped: %q", upstream.lastReq.URL.Path)
	}
}

/**
 * TestTunnelBridgesTLS verifies plaintext-to-TLS re-origination
 * @description
 * - The local listener speaks plain HTTP; the upstream only TLS with a
 *   self-signed certificate accepted via insecure mode
 */
func TestTunnelBridgesTLS(t *testing.T) {
	var gotPath string
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("secure pong"))
	}))
	t.Cleanup(upstream.Close)

	link, err := NewTunnelLink(config.TunnelConfig{
		RemoteAddr: upstream.URL,
		Insecure:   true,
	})
	if err != nil {
		t.Fatal(err)
	}
	port := startLink(t, link)

	rsp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/v1/ping", port))
	if err != nil {
		t.Fatal(err)
	}
	defer rsp.Body.Close()

	body, _ := io.ReadAll(rsp.Body)
	if string(body) != "secure pong" {
		t.Errorf("unexpected body %q", body)
	}
	if gotPath != "/v1/ping" {
		t.Errorf("path lost in bridging: %q", gotPath)
	}
}

/**
 * TestTunnelRejectsPlainRemote verifies the remote must be https
 */
func TestTunnelRejectsPlainRemote(t *testing.T) {
	if _, err := NewTunnelLink(config.TunnelConfig{RemoteAddr: "http://example.com"}); err == nil {
		t.Error("plain http remote must be rejected")
	}
	if _, err := NewTunnelLink(config.TunnelConfig{}); err == nil {
		t.Error("empty remote must be rejected")
	}
}

/**
 * TestUnreachableUpstream verifies the link answers 502 on its own
 */
func TestUnreachableUpstream(t *testing.T) {
	link, err := NewReasoningLink(config.ReasoningConfig{DefaultEffort: "xhigh"}, "http://127.0.0.1:1")
	if err != nil {
		t.Fatal(err)
	}
	port := startLink(t, link)

	rsp := postJSON(t, port, "/v1/responses", map[string]interface{}{"model": "gpt-5.2"})
	if rsp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rsp.StatusCode)
	}
}
