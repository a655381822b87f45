package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ccs-host/internal/logger"
	"ccs-host/internal/models"
	"ccs-host/internal/session"
	"ccs-host/internal/utils"
)

const (
	probeTimeout = 1 * time.Second
	pollInterval = 250 * time.Millisecond
	// probe bodies larger than this are not version payloads
	maxProbeBody = 4096
)

/**
 * Detector classifies what is listening on a proxy port
 * @property {string} ProcessName - Executable name our proxy runs under
 * @property {string} HealthPath - Path the proxy answers health probes on
 * @description
 * - Detection layers, most to least trustworthy: HTTP probe, ledger pid
 *   liveness, OS port-owner lookup
 * - A successful probe always wins; a ledger or port owner can only add
 *   detail, never contradict a live answer
 */
type Detector struct {
	ProcessName string
	HealthPath  string
	client      *http.Client
}

// NewDetector creates a detector for the configured proxy identity.
func NewDetector(processName, healthPath string) *Detector {
	if healthPath == "" {
		healthPath = "/"
	}
	return &Detector{
		ProcessName: processName,
		HealthPath:  healthPath,
		client:      &http.Client{Timeout: probeTimeout},
	}
}

// probeResponse is the payload a healthy proxy answers probes with.
type probeResponse struct {
	Version string `json:"version"`
}

/**
 * Probe the proxy over HTTP
 * @returns {string} Version reported by the proxy, empty when unknown
 * @returns {bool} Whether anything answered the probe at all
 * @description
 * - Any HTTP response counts as alive; only transport errors mean absent
 */
func (d *Detector) probe(ctx context.Context, port int) (string, bool) {
	url := fmt.Sprintf("http://127.0.0.1:%d%s", port, d.HealthPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false
	}
	rsp, err := d.client.Do(req)
	if err != nil {
		return "", false
	}
	defer rsp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(rsp.Body, maxProbeBody))
	if err != nil {
		return "", true
	}
	var pr probeResponse
	if json.Unmarshal(body, &pr) == nil {
		return pr.Version, true
	}
	return "", true
}

// ProbeAlive reports whether anything answers an HTTP probe on the port.
func (d *Detector) ProbeAlive(ctx context.Context, port int) bool {
	_, answered := d.probe(ctx, port)
	return answered
}

/**
 * Classify the state of a proxy port
 * @returns {models.ProxyStatus} Derived status, never persisted
 * @description
 * - Orphaned ledgers (dead recorded pid) are cleaned up first
 * - Probe success verifies the proxy regardless of ledger state
 * - Without a probe answer, a live ledger pid on a connectable port
 *   counts as running but unverified
 * - A connectable port with neither is attributed via the OS port-owner
 *   lookup: our process name means an unledgered proxy, anything else
 *   means the port is blocked by a foreign process
 */
func (d *Detector) Detect(ctx context.Context, port int) models.ProxyStatus {
	tracker := session.GetTracker()
	if _, err := tracker.CleanupOrphaned(port); err != nil {
		logger.Warnf("Orphan cleanup on port %d failed: %v", port, err)
	}

	lock, err := tracker.Read(port)
	if err != nil {
		logger.Warnf("Reading session ledger for port %d failed: %v", port, err)
	}
	lockAlive := false
	if lock != nil && lock.Pid > 0 {
		lockAlive, _ = utils.IsProcessRunning(lock.Pid)
	}

	if version, answered := d.probe(ctx, port); answered {
		status := models.ProxyStatus{
			Running:  true,
			Verified: true,
			Method:   models.MethodProbe,
			Version:  version,
		}
		if lockAlive {
			status.Pid = lock.Pid
			if status.Version == "" {
				status.Version = lock.Version
			}
		}
		return status
	}

	connectable := utils.CheckPortConnectable(port)

	if lockAlive && connectable {
		return models.ProxyStatus{
			Running:  true,
			Verified: false,
			Method:   models.MethodLockFile,
			Pid:      lock.Pid,
			Version:  lock.Version,
		}
	}

	if connectable {
		owner, err := utils.PortOwner(port)
		if err != nil {
			logger.Debugf("Port-owner lookup on port %d failed: %v", port, err)
		}
		if owner != nil {
			if owner.Name == d.ProcessName {
				return models.ProxyStatus{
					Running:  true,
					Verified: false,
					Method:   models.MethodPortOwner,
					Pid:      owner.Pid,
				}
			}
			return models.ProxyStatus{
				Method:  models.MethodPortOwner,
				Blocked: true,
				Blocker: fmt.Sprintf("%s (pid %d)", owner.Name, owner.Pid),
			}
		}
		// Occupied but unattributable; treat as blocked by an unknown
		// process rather than spawning into a busy port.
		return models.ProxyStatus{
			Method:  models.MethodPortOwner,
			Blocked: true,
			Blocker: "unknown process",
		}
	}

	return models.ProxyStatus{Method: models.MethodNone}
}

/**
 * Wait until the proxy on a port answers HTTP probes
 * @param {time.Duration} timeout - Hard ceiling on the wait
 * @description
 * - Polls at a fixed interval; returns on first answer
 */
func (d *Detector) WaitForHealthy(ctx context.Context, port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if _, answered := d.probe(ctx, port); answered {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("proxy on port %d did not become healthy within %v", port, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

/**
 * Reclaim an unledgered proxy by registering a session against it
 * @returns {string} Session id recorded, empty when reclaim failed
 * @returns {bool} Whether the proxy is now monitored
 * @description
 * - A caller without a pid gets one resolved via the OS port-owner
 *   lookup; the ledger must never record a pid that cannot be checked
 *   for liveness, or the next orphan sweep would delete it under a
 *   live proxy
 * - Failure is not fatal: the proxy stays usable, merely unmonitored,
 *   so the caller proceeds without a session id
 */
func (d *Detector) Reclaim(port, pid int, version, backend string) (string, bool) {
	if pid <= 0 {
		owner, err := utils.PortOwner(port)
		if err != nil || owner == nil {
			logger.Warnf("Proxy on port %d cannot be attributed to a pid, continuing unmonitored", port)
			return "", false
		}
		pid = owner.Pid
	}

	sessionId, err := session.NewSessionID()
	if err != nil {
		logger.Warnf("Reclaim of proxy on port %d failed to generate a session id: %v", port, err)
		return "", false
	}
	if err := session.GetTracker().Register(port, pid, sessionId, version, backend); err != nil {
		logger.Warnf("Reclaim of proxy on port %d failed, continuing unmonitored: %v", port, err)
		return "", false
	}
	return sessionId, true
}
