package services

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	goversion "github.com/hashicorp/go-version"

	"ccs-host/internal/config"
	"ccs-host/internal/detect"
	"ccs-host/internal/env"
	"ccs-host/internal/logger"
	"ccs-host/internal/models"
	"ccs-host/internal/session"
	"ccs-host/internal/utils"
)

// SpawnFunc launches the proxy executable and returns its pid.
// Replaceable so lifecycle decisions are testable without a real binary.
type SpawnFunc func(execPath string, port int) (int, error)

/**
 * LifecycleResult is the endpoint handed to the chain assembler
 * @property {models.Ownership} Ownership - Whether this invocation may kill the proxy
 * @property {string} SessionId - Ledger membership token, empty when unmonitored
 */
type LifecycleResult struct {
	Port      int
	Pid       int
	SessionId string
	Ownership models.Ownership
	Endpoint  string
}

/**
 * LifecycleManager decides how this invocation obtains a live proxy
 * @description
 * - The whole decision runs under the startup lock: detect, then join,
 *   wait, reclaim, kill-and-respawn or spawn fresh
 * - A version mismatch between the ledger and the installed binary
 *   stops the stale proxy before detection, so no invocation ever binds
 *   to an outdated binary
 * - Ownership is tri-state: only the invocation that spawned the proxy
 *   may later decide to kill it
 */
type LifecycleManager struct {
	cfg      config.ProxyConfig
	detector *detect.Detector
	execPath string
	version  string
	spawn    SpawnFunc
}

// NewLifecycleManager wires the manager for the installed executable.
func NewLifecycleManager(cfg config.ProxyConfig, execPath, installedVersion string) *LifecycleManager {
	m := &LifecycleManager{
		cfg:      cfg,
		detector: detect.NewDetector(cfg.ProcessName, cfg.HealthPath),
		execPath: execPath,
		version:  installedVersion,
	}
	m.spawn = m.spawnDetached
	return m
}

func (m *LifecycleManager) startupTimeout() time.Duration {
	return time.Duration(m.cfg.StartupTimeout) * time.Second
}

/**
 * Obtain a live proxy endpoint, spawning or joining as needed
 * @returns {*LifecycleResult} Endpoint, pid, session id and ownership
 */
func (m *LifecycleManager) Obtain(ctx context.Context) (*LifecycleResult, error) {
	var result *LifecycleResult
	err := session.WithLock(m.cfg.Port, 0, func() error {
		r, err := m.obtainLocked(ctx)
		result = r
		return err
	})
	return result, err
}

func (m *LifecycleManager) obtainLocked(ctx context.Context) (*LifecycleResult, error) {
	m.restartOnVersionMismatch(ctx)

	status := m.detector.Detect(ctx, m.cfg.Port)

	switch {
	case status.Running && status.Verified:
		return m.join(status.Pid), nil

	case status.Running && !status.Verified:
		logger.Infof("Proxy on port %d is present but not answering yet, waiting", m.cfg.Port)
		if err := m.detector.WaitForHealthy(ctx, m.cfg.Port, m.startupTimeout()); err == nil {
			return m.join(status.Pid), nil
		}
		logger.Warnf("Proxy pid %d never became healthy, replacing it", status.Pid)
		m.stopRecordedProxy(status.Pid)
		return m.spawnFresh(ctx)

	case status.Blocked:
		// The port-owner heuristic can miss a renamed proxy binary.
		// One last probe decides before declaring the port foreign.
		if m.detector.ProbeAlive(ctx, m.cfg.Port) {
			return m.join(0), nil
		}
		recordLifecycle("blocked")
		return nil, fmt.Errorf("port %d is in use by %s, which does not look like the proxy; "+
			"stop it or pick another port in %s/config.yaml (inspect the port with 'lsof -i :%d')",
			m.cfg.Port, status.Blocker, env.CcsDir, m.cfg.Port)

	default:
		return m.spawnFresh(ctx)
	}
}

/**
 * Stop a verified proxy whose version differs from the installed binary
 * @description
 * - Runs before detection on every invocation; the subsequent Detect
 *   then sees a free port and spawns the current binary
 */
func (m *LifecycleManager) restartOnVersionMismatch(ctx context.Context) {
	if m.version == "" {
		return
	}
	lock, err := session.GetTracker().Read(m.cfg.Port)
	if err != nil || lock == nil || lock.Version == "" {
		return
	}
	if !versionsDiffer(lock.Version, m.version) {
		return
	}

	status := m.detector.Detect(ctx, m.cfg.Port)
	if !status.Running || !status.Verified {
		return
	}
	logger.Infof("Proxy on port %d runs version %s but %s is installed, restarting it",
		m.cfg.Port, lock.Version, m.version)
	recordLifecycle("version_restart")
	m.stopRecordedProxy(lock.Pid)
}

// versionsDiffer compares semantic versions, falling back to string
// inequality when either side does not parse.
func versionsDiffer(a, b string) bool {
	va, errA := goversion.NewVersion(a)
	vb, errB := goversion.NewVersion(b)
	if errA != nil || errB != nil {
		return a != b
	}
	return !va.Equal(vb)
}

// stopRecordedProxy kills a pid the ledger attributes to our proxy and
// drops the ledger. The name check prevents killing a recycled pid.
func (m *LifecycleManager) stopRecordedProxy(pid int) {
	if pid > 0 {
		if err := utils.KillProcess(m.cfg.ProcessName, pid); err != nil {
			logger.Warnf("Could not stop proxy pid %d: %v", pid, err)
		}
	}
	if err := session.GetTracker().Remove(m.cfg.Port); err != nil {
		logger.Warnf("Could not drop session ledger for port %d: %v", m.cfg.Port, err)
	}
}

func (m *LifecycleManager) endpoint() string {
	return fmt.Sprintf("http://127.0.0.1:%d", m.cfg.Port)
}

/**
 * Join a proxy some other invocation is responsible for
 * @description
 * - Reclaim failure downgrades to a warning: the proxy stays usable,
 *   merely unmonitored, and the result carries no session id
 */
func (m *LifecycleManager) join(pid int) *LifecycleResult {
	sessionId, ok := m.detector.Reclaim(m.cfg.Port, pid, m.version, m.cfg.Backend)
	if ok {
		recordLifecycle("join")
	} else {
		recordLifecycle("reclaim_failed")
	}
	return &LifecycleResult{
		Port:      m.cfg.Port,
		Pid:       pid,
		SessionId: sessionId,
		Ownership: models.OwnershipJoined,
		Endpoint:  m.endpoint(),
	}
}

func (m *LifecycleManager) spawnFresh(ctx context.Context) (*LifecycleResult, error) {
	pid, err := m.spawn(m.execPath, m.cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("launch proxy '%s': %w", m.execPath, err)
	}
	logger.Infof("Spawned proxy pid %d on port %d", pid, m.cfg.Port)

	if err := m.detector.WaitForHealthy(ctx, m.cfg.Port, m.startupTimeout()); err != nil {
		logger.Warnf("Spawned proxy pid %d never became healthy, killing it", pid)
		if killErr := utils.KillProcessGracefully(pid, m.cfg.ProcessName); killErr != nil {
			logger.Warnf("Could not kill unhealthy proxy pid %d: %v", pid, killErr)
		}
		return nil, fmt.Errorf("proxy did not answer on port %d within %v; likely causes: "+
			"the port is blocked by a firewall, the binary is incompatible with this machine, "+
			"or the configuration is invalid; inspect the port with 'lsof -i :%d', review %s/config.yaml, "+
			"and re-run with --verbose for detailed diagnostics",
			m.cfg.Port, m.startupTimeout(), m.cfg.Port, env.CcsDir)
	}

	sessionId, err := session.NewSessionID()
	if err != nil {
		return nil, err
	}
	if err := session.GetTracker().Register(m.cfg.Port, pid, sessionId, m.version, m.cfg.Backend); err != nil {
		return nil, fmt.Errorf("register spawned proxy session: %w", err)
	}
	recordLifecycle("spawn")
	return &LifecycleResult{
		Port:      m.cfg.Port,
		Pid:       pid,
		SessionId: sessionId,
		Ownership: models.OwnershipSpawned,
		Endpoint:  m.endpoint(),
	}, nil
}

/**
 * Launch the proxy detached from this invocation's lifetime
 * @returns {int} Pid of the launched process
 * @description
 * - Own process group, discarded stdio, CCS_RUNTIME_DIR in the
 *   environment; the proxy must outlive the CLI that spawned it
 */
func (m *LifecycleManager) spawnDetached(execPath string, port int) (int, error) {
	command, args, err := utils.GetCommandLine(execPath,
		[]string{"--port", "{{.Port}}", "--config", "{{.ConfigPath}}"},
		map[string]interface{}{
			"Port":       port,
			"ConfigPath": env.CcsDir + "/config.yaml",
		})
	if err != nil {
		return 0, err
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd := exec.Command(command, args...)
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.Stdin = nil
	cmd.Env = append(os.Environ(), "CCS_RUNTIME_DIR="+env.CcsDir)
	utils.SetNewPG(cmd)

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	// Release the handle; the detached child reaps via its own group.
	if err := cmd.Process.Release(); err != nil {
		logger.Debugf("Release of spawned proxy handle failed: %v", err)
	}
	return pid, nil
}

/**
 * Stop the shared proxy on the configured port
 * @param {bool} force - Tear down even while sessions remain registered
 * @description
 * - Refuses to kill while other sessions depend on the proxy unless
 *   forced, and never kills a process whose name is not the proxy's
 */
func (m *LifecycleManager) StopProxy(force bool) error {
	return session.WithLock(m.cfg.Port, 0, func() error {
		tracker := session.GetTracker()
		lock, err := tracker.Read(m.cfg.Port)
		if err != nil {
			return err
		}
		if lock == nil {
			logger.Infof("No proxy recorded on port %d", m.cfg.Port)
			return nil
		}
		if len(lock.SessionIds) > 0 && !force {
			return fmt.Errorf("%d session(s) still depend on the proxy on port %d; "+
				"re-run with --force to stop it anyway", len(lock.SessionIds), m.cfg.Port)
		}
		if lock.Pid > 0 {
			if err := utils.KillProcess(m.cfg.ProcessName, lock.Pid); err != nil {
				return fmt.Errorf("stop proxy pid %d: %w", lock.Pid, err)
			}
			logger.Infof("Stopped proxy pid %d on port %d", lock.Pid, m.cfg.Port)
		}
		return tracker.Remove(m.cfg.Port)
	})
}

// Unregister releases this invocation's claim on the shared proxy.
// Called from the exit path; best effort.
func (m *LifecycleManager) Unregister(sessionId string) {
	if sessionId == "" {
		return
	}
	remaining, err := session.GetTracker().Unregister(m.cfg.Port, sessionId)
	if err != nil {
		logger.Warnf("Unregister session on port %d failed: %v", m.cfg.Port, err)
		return
	}
	logger.Debugf("Unregistered session, %d remaining on port %d", remaining, m.cfg.Port)
}
