package chain

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"ccs-host/internal/logger"
)

/**
 * Link is one local HTTP intermediary in the transformation chain
 * @description
 * - Start binds an ephemeral loopback port and publishes it; the caller
 *   wires that port as the next link's upstream
 * - A link owns nothing but its own listener; Stop tears down only that
 */
type Link interface {
	Name() string
	Start(ctx context.Context) (int, error)
	Stop()
}

// baseLink owns the listener plumbing shared by every link.
type baseLink struct {
	name string
	srv  *http.Server
	port int
}

func (b *baseLink) Name() string { return b.name }

// Port returns the bound listening port, 0 before Start.
func (b *baseLink) Port() int { return b.port }

/**
 * Bind an ephemeral loopback port and serve the handler on it
 * @returns {int} Bound port
 */
func (b *baseLink) start(handler http.Handler) (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("bind %s link listener: %w", b.name, err)
	}
	b.port = ln.Addr().(*net.TCPAddr).Port
	b.srv = &http.Server{Handler: handler}
	go func() {
		if err := b.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Warnf("Link %s listener stopped: %v", b.name, err)
		}
	}()
	logger.Debugf("Link %s listening on 127.0.0.1:%d", b.name, b.port)
	return b.port, nil
}

// Stop shuts the listener down, draining in-flight requests briefly.
func (b *baseLink) Stop() {
	if b.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.srv.Shutdown(ctx); err != nil {
		b.srv.Close()
	}
	b.srv = nil
}
