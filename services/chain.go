package services

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"ccs-host/internal/chain"
	"ccs-host/internal/config"
	"ccs-host/internal/logger"
)

/**
 * ChainService assembles the transformation links in front of the proxy
 * @description
 * - Build order is innermost first: tunnel, then sanitizer, then
 *   reasoning; each started link's port becomes the next link's
 *   upstream, so the downstream CLI talks to the outermost port
 * - A link that fails to start is skipped and the chain degrades to
 *   forwarding directly to the next stage; only verbose logging records
 *   the skip
 */
type ChainService struct {
	cfg     config.ChainConfig
	started []chain.Link
}

// NewChainService creates the assembler for the configured links.
func NewChainService(cfg config.ChainConfig) *ChainService {
	return &ChainService{cfg: cfg}
}

func (s *ChainService) startLink(ctx context.Context, l chain.Link, upstream string) string {
	port, err := l.Start(ctx)
	if err != nil {
		logger.Debugf("Link %s failed to start, skipping it: %v", l.Name(), err)
		recordLink(l.Name(), "skipped")
		return upstream
	}
	s.started = append(s.started, l)
	recordLink(l.Name(), "started")
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

/**
 * Assemble the chain and return the effective endpoint
 * @param {string} proxyEndpoint - The shared proxy's real endpoint
 * @returns {string} What the downstream CLI should talk to
 */
func (s *ChainService) Assemble(ctx context.Context, proxyEndpoint string) string {
	upstream := proxyEndpoint

	if s.cfg.Tunnel.Enabled {
		link, err := chain.NewTunnelLink(s.cfg.Tunnel)
		if err != nil {
			logger.Debugf("Tunnel link misconfigured, skipping it: %v", err)
			recordLink("tunnel", "skipped")
		} else {
			upstream = s.startLink(ctx, link, upstream)
		}
	}

	if s.cfg.Sanitizer.Enabled {
		link, err := chain.NewSanitizerLink(s.cfg.Sanitizer, upstream)
		if err != nil {
			logger.Debugf("Sanitizer link misconfigured, skipping it: %v", err)
			recordLink("sanitizer", "skipped")
		} else {
			upstream = s.startLink(ctx, link, upstream)
		}
	}

	if s.cfg.Reasoning.Enabled {
		link, err := chain.NewReasoningLink(s.cfg.Reasoning, upstream)
		if err != nil {
			logger.Debugf("Reasoning link misconfigured, skipping it: %v", err)
			recordLink("reasoning", "skipped")
		} else {
			link.ExtraRoutes = func(engine *gin.Engine) {
				engine.GET("/__ccs/metrics", MetricsHandler())
			}
			upstream = s.startLink(ctx, link, upstream)
		}
	}

	return upstream
}

// Teardown stops every started link, outermost first.
func (s *ChainService) Teardown() {
	for i := len(s.started) - 1; i >= 0; i-- {
		s.started[i].Stop()
	}
	s.started = nil
}
