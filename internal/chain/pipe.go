package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"ccs-host/internal/logger"
	"ccs-host/internal/models"
)

// JSON bodies beyond this are forwarded untransformed to bound memory.
const maxJSONBody = 10 << 20

// bodyTransform mutates a parsed JSON body in place and reports whether
// anything changed.
type bodyTransform func(path string, body map[string]interface{}) bool

/**
 * forwarder is the piping core shared by every link
 * @property {*url.URL} upstream - Base URL requests are forwarded to
 * @description
 * - Non-JSON and non-mutating requests stream through byte-for-byte
 * - JSON bodies on POST/PUT/PATCH are buffered up to 10 MB, handed to
 *   the request transform, and re-serialized; oversize bodies fall back
 *   to streaming untouched
 * - Upstream status and headers pass through unmodified unless a
 *   response transform rewrites a JSON body
 */
type forwarder struct {
	upstream        *url.URL
	client          *http.Client
	rewriteRequest  bodyTransform
	rewriteResponse bodyTransform
}

func newForwarder(upstream *url.URL, transport http.RoundTripper) *forwarder {
	return &forwarder{
		upstream: upstream,
		client: &http.Client{
			Transport: transport,
			// redirects belong to the downstream client, not the link
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// joinURLPath keeps any path prefix carried by the upstream base URL.
func joinURLPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return strings.TrimSuffix(base, "/") + p
}

func isMutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

func isJSONContent(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}

var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Proxy-Connection", "Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, v := range values {
			dst.Add(key, v)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}

/**
 * Buffer a body up to the JSON cap
 * @returns {bool} true when the body exceeded the cap (data holds the prefix)
 */
func bufferBody(r io.Reader) ([]byte, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxJSONBody+1))
	if err != nil {
		return nil, false, err
	}
	if len(data) > maxJSONBody {
		return data, true, nil
	}
	return data, false, nil
}

func (f *forwarder) handle(c *gin.Context) {
	req := c.Request

	outURL := *f.upstream
	outURL.Path = joinURLPath(f.upstream.Path, req.URL.Path)
	outURL.RawQuery = req.URL.RawQuery

	var body io.Reader = req.Body
	contentLength := req.ContentLength

	if f.rewriteRequest != nil && isMutating(req.Method) && isJSONContent(req.Header.Get("Content-Type")) {
		data, oversize, err := bufferBody(req.Body)
		if err != nil {
			c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: fmt.Sprintf("read request body: %v", err)})
			return
		}
		if oversize {
			body = io.MultiReader(bytes.NewReader(data), req.Body)
			contentLength = -1
		} else {
			var parsed map[string]interface{}
			if json.Unmarshal(data, &parsed) == nil {
				if f.rewriteRequest(req.URL.Path, parsed) {
					if rewritten, err := json.Marshal(parsed); err == nil {
						data = rewritten
					}
				}
			}
			body = bytes.NewReader(data)
			contentLength = int64(len(data))
		}
	}

	out, err := http.NewRequestWithContext(req.Context(), req.Method, outURL.String(), body)
	if err != nil {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: fmt.Sprintf("build upstream request: %v", err)})
		return
	}
	copyHeaders(out.Header, req.Header)
	out.Header.Del("Content-Length")
	out.ContentLength = contentLength
	out.Host = f.upstream.Host

	rsp, err := f.client.Do(out)
	if err != nil {
		logger.Debugf("Forwarding %s %s upstream failed: %v", req.Method, req.URL.Path, err)
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: fmt.Sprintf("upstream unreachable: %v", err)})
		return
	}
	defer rsp.Body.Close()

	if f.rewriteResponse != nil && isJSONContent(rsp.Header.Get("Content-Type")) {
		data, oversize, err := bufferBody(rsp.Body)
		if err != nil {
			c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: fmt.Sprintf("read upstream response: %v", err)})
			return
		}
		if !oversize {
			var parsed map[string]interface{}
			if json.Unmarshal(data, &parsed) == nil {
				if f.rewriteResponse(req.URL.Path, parsed) {
					if rewritten, err := json.Marshal(parsed); err == nil {
						data = rewritten
					}
				}
			}
			copyHeaders(c.Writer.Header(), rsp.Header)
			c.Writer.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
			c.Writer.WriteHeader(rsp.StatusCode)
			c.Writer.Write(data)
			return
		}
		// oversize response: stream the prefix we read plus the rest
		copyHeaders(c.Writer.Header(), rsp.Header)
		c.Writer.WriteHeader(rsp.StatusCode)
		c.Writer.Write(data)
		io.Copy(c.Writer, rsp.Body)
		return
	}

	copyHeaders(c.Writer.Header(), rsp.Header)
	c.Writer.WriteHeader(rsp.StatusCode)
	io.Copy(c.Writer, rsp.Body)
}
