package chain

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"ccs-host/internal/config"
	"ccs-host/internal/logger"
)

/**
 * TunnelLink bridges a local plaintext listener to a TLS remote
 * @description
 * - The downstream CLI speaks plain HTTP to the loopback port; every
 *   request is re-originated as HTTPS to the configured remote
 * - Bodies stream through untouched in both directions
 * - Insecure mode accepts self-signed upstream certificates for
 *   self-hosted deployments
 */
type TunnelLink struct {
	baseLink
	cfg      config.TunnelConfig
	upstream *url.URL
}

// NewTunnelLink creates the TLS-bridging link toward the remote target.
func NewTunnelLink(cfg config.TunnelConfig) (*TunnelLink, error) {
	addr := cfg.RemoteAddr
	if addr == "" {
		return nil, fmt.Errorf("tunnel remote address is not configured")
	}
	if !strings.Contains(addr, "://") {
		addr = "https://" + addr
	}
	upstream, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse tunnel remote '%s': %w", cfg.RemoteAddr, err)
	}
	if upstream.Scheme != "https" {
		return nil, fmt.Errorf("tunnel remote '%s' must be https", cfg.RemoteAddr)
	}
	return &TunnelLink{
		baseLink: baseLink{name: "tunnel"},
		cfg:      cfg,
		upstream: upstream,
	}, nil
}

func (l *TunnelLink) Start(ctx context.Context) (int, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if l.cfg.Insecure {
		logger.Warnf("Tunnel to '%s' accepts any certificate (insecure mode)", l.upstream.Host)
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	fwd := newForwarder(l.upstream, transport)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.NoRoute(fwd.handle)
	return l.start(engine)
}
