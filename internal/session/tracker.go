package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ccs-host/internal/env"
	"ccs-host/internal/logger"
	"ccs-host/internal/models"
	"ccs-host/internal/utils"
)

var trackerInstance *Tracker
var trackerOnce sync.Once

/**
 * Tracker maintains the cross-process session ledger for shared proxies
 * @description
 * - One ledger file per port at run/sessions-<port>.json, mode 0600
 * - The ledger is authoritative for membership and intent only; the
 *   recorded pid must be re-verified against the OS before it is trusted
 * - All mutations go through read-modify-write under a process-local
 *   mutex; cross-process exclusion is the caller's job (startup lock)
 */
type Tracker struct {
	mutex sync.Mutex
}

// GetTracker returns the singleton session tracker.
func GetTracker() *Tracker {
	trackerOnce.Do(func() {
		trackerInstance = &Tracker{}
	})
	return trackerInstance
}

/**
 * Generate an opaque session identifier
 * @returns {string} 32 hex characters from a CSPRNG
 */
func NewSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func ledgerPath(port int) string {
	return filepath.Join(env.RunDir(), fmt.Sprintf("sessions-%d.json", port))
}

/**
 * Read the ledger for a port
 * @returns {*models.SessionLock} nil when no ledger exists
 * @description
 * - A corrupt ledger is logged, deleted and reported as absent; a
 *   damaged file must never wedge every future invocation
 */
func (t *Tracker) Read(port int) (*models.SessionLock, error) {
	data, err := os.ReadFile(ledgerPath(port))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session ledger: %w", err)
	}

	var lock models.SessionLock
	if err := json.Unmarshal(data, &lock); err != nil {
		logger.Warnf("Session ledger for port %d is corrupt, discarding it: %v", port, err)
		os.Remove(ledgerPath(port))
		return nil, nil
	}
	return &lock, nil
}

func (t *Tracker) write(lock *models.SessionLock) error {
	if err := os.MkdirAll(env.RunDir(), 0755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session ledger: %w", err)
	}

	// Write-then-rename so a concurrent reader never sees a torn file.
	path := ledgerPath(lock.Port)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write session ledger: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit session ledger: %w", err)
	}
	return nil
}

/**
 * Register a session against the proxy on a port
 * @param {int} pid - Proxy process id the ledger should record
 * @param {string} sessionId - Opaque token of this CLI invocation
 * @description
 * - Creates the ledger when absent, otherwise appends to it
 * - Registering an already-present session id is a no-op
 * - A pid/version recorded earlier is overwritten when the caller knows
 *   better (it just spawned or re-verified the proxy)
 */
func (t *Tracker) Register(port, pid int, sessionId, version, backend string) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	lock, err := t.Read(port)
	if err != nil {
		return err
	}
	if lock == nil {
		lock = &models.SessionLock{
			Port:      port,
			StartedAt: time.Now(),
		}
	}
	lock.Pid = pid
	if version != "" {
		lock.Version = version
	}
	if backend != "" {
		lock.Backend = backend
	}
	for _, id := range lock.SessionIds {
		if id == sessionId {
			return t.write(lock)
		}
	}
	lock.SessionIds = append(lock.SessionIds, sessionId)
	return t.write(lock)
}

/**
 * Unregister a session from the port's ledger
 * @returns {int} Number of sessions remaining after removal
 * @description
 * - Unknown session ids and absent ledgers are tolerated; teardown paths
 *   run on best effort and must not fail a shutdown
 * - The ledger file is deleted when the last session leaves, signalling
 *   that whoever owns the process handle may tear the proxy down
 */
func (t *Tracker) Unregister(port int, sessionId string) (int, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	lock, err := t.Read(port)
	if err != nil {
		return 0, err
	}
	if lock == nil {
		return 0, nil
	}

	kept := lock.SessionIds[:0]
	for _, id := range lock.SessionIds {
		if id != sessionId {
			kept = append(kept, id)
		}
	}
	lock.SessionIds = kept
	if len(kept) == 0 {
		return 0, t.Remove(port)
	}
	if err := t.write(lock); err != nil {
		return len(kept), err
	}
	return len(kept), nil
}

// HasActiveSessions reports whether any session is registered on the port.
func (t *Tracker) HasActiveSessions(port int) (bool, error) {
	lock, err := t.Read(port)
	if err != nil {
		return false, err
	}
	return lock != nil && len(lock.SessionIds) > 0, nil
}

// Remove deletes the port's ledger file entirely.
func (t *Tracker) Remove(port int) error {
	err := os.Remove(ledgerPath(port))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session ledger: %w", err)
	}
	return nil
}

/**
 * Drop a ledger whose recorded proxy process is no longer alive
 * @returns {bool} true when an orphaned ledger was removed
 * @description
 * - A ledger left behind by a crashed proxy would make every later
 *   invocation believe a proxy exists; liveness always wins over records
 */
func (t *Tracker) CleanupOrphaned(port int) (bool, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	lock, err := t.Read(port)
	if err != nil {
		return false, err
	}
	if lock == nil {
		return false, nil
	}
	if lock.Pid > 0 {
		if alive, _ := utils.IsProcessRunning(lock.Pid); alive {
			return false, nil
		}
	}
	logger.Infof("Session ledger for port %d records dead pid %d, cleaning it up", port, lock.Pid)
	if err := t.Remove(port); err != nil {
		return false, err
	}
	return true, nil
}
