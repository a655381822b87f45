package download

import (
	"net/http"
	"net/url"
	"os"
	"strings"
)

/**
 * Read a proxy setting from the environment
 * @param {string} name - Lowercase variable name (e.g. "http_proxy")
 * @returns {string} Value, preferring the lowercase variant
 */
func getProxyEnv(name string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return os.Getenv(strings.ToUpper(name))
}

/**
 * Check whether a host is excluded from proxying by no_proxy
 * @param {string} host - Request host (without port)
 * @param {string} noProxy - Comma-separated no_proxy value
 * @returns {bool} True when the host must bypass the proxy
 * @description
 * - "*" disables proxying entirely
 * - ".example.com" matches any subdomain of example.com
 * - "example.com" matches the host and its subdomains
 */
func matchNoProxy(host, noProxy string) bool {
	if noProxy == "" {
		return false
	}
	host = strings.ToLower(host)
	for _, entry := range strings.Split(noProxy, ",") {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if entry == "*" {
			return true
		}
		if h, _, ok := strings.Cut(entry, ":"); ok && h != "" {
			entry = h
		}
		if strings.HasPrefix(entry, ".") {
			if strings.HasSuffix(host, entry) || host == entry[1:] {
				return true
			}
			continue
		}
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

/**
 * Resolve the proxy URL for a request from environment variables
 * @description
 * - https_proxy/all_proxy/http_proxy are consulted in scheme order,
 *   each with its uppercase variant
 * - no_proxy/NO_PROXY bypasses matching hosts
 */
func proxyFromEnvironment(req *http.Request) (*url.URL, error) {
	host := req.URL.Hostname()
	if matchNoProxy(host, getProxyEnv("no_proxy")) {
		return nil, nil
	}

	var raw string
	if req.URL.Scheme == "https" {
		raw = getProxyEnv("https_proxy")
	} else {
		raw = getProxyEnv("http_proxy")
	}
	if raw == "" {
		raw = getProxyEnv("all_proxy")
	}
	if raw == "" {
		return nil, nil
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	return url.Parse(raw)
}
