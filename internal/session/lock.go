package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ccs-host/internal/env"
	"ccs-host/internal/logger"
	"ccs-host/internal/utils"
)

const (
	// how long an invocation waits for another invocation's startup
	// sequence before giving up
	defaultLockWait = 45 * time.Second
	lockPollPeriod  = 100 * time.Millisecond
)

func lockPath(port int) string {
	return filepath.Join(env.RunDir(), fmt.Sprintf("startup-%d.lock", port))
}

/**
 * Run fn while holding the exclusive startup lock for a port
 * @description
 * - The lock is an O_CREATE|O_EXCL marker file containing the holder pid
 * - Acquisition polls until the marker disappears or the wait expires
 * - A marker whose recorded pid is dead is taken over immediately; a
 *   crashed invocation must not block the port forever
 * - The marker is removed on return, success or not
 */
func WithLock(port int, wait time.Duration, fn func() error) error {
	if wait <= 0 {
		wait = defaultLockWait
	}
	if err := acquireLock(port, wait); err != nil {
		return err
	}
	defer ReleaseLock(port)
	return fn()
}

func acquireLock(port int, wait time.Duration) error {
	if err := os.MkdirAll(env.RunDir(), 0755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}

	deadline := time.Now().Add(wait)
	for {
		f, err := os.OpenFile(lockPath(port), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			_, writeErr := fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			if writeErr != nil {
				os.Remove(lockPath(port))
				return fmt.Errorf("write startup lock: %w", writeErr)
			}
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("create startup lock: %w", err)
		}

		if takeOverStaleLock(port) {
			continue
		}
		if time.Now().After(deadline) {
			holder, _ := lockHolder(port)
			return fmt.Errorf("timed out after %v waiting for the startup lock on port %d (held by pid %d)",
				wait, port, holder)
		}
		time.Sleep(lockPollPeriod)
	}
}

// lockHolder reads the pid recorded in the lock marker, 0 when unreadable.
func lockHolder(port int) (int, error) {
	return readPidFile(lockPath(port))
}

func readPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse startup lock content: %w", err)
	}
	return pid, nil
}

/**
 * Remove a lock marker left behind by a dead holder
 * @returns {bool} true when the marker was removed and acquisition may retry
 * @description
 * - The marker is claimed by rename before removal; rename is atomic,
 *   so when several waiters chase the same dead holder only one wins
 *   and the losers can never delete a fresh marker the winner has
 *   already created in its place
 */
func takeOverStaleLock(port int) bool {
	pid, err := lockHolder(port)
	if err != nil {
		// Unreadable or mid-write marker; let the poll loop retry.
		return false
	}
	if pid > 0 {
		if alive, _ := utils.IsProcessRunning(pid); alive {
			return false
		}
	}

	claimed := fmt.Sprintf("%s.reap-%d", lockPath(port), os.Getpid())
	if err := os.Rename(lockPath(port), claimed); err != nil {
		return false
	}
	if holder, err := readPidFile(claimed); err != nil || holder != pid {
		// The marker changed hands between inspection and claim; this
		// is somebody's live lock, hand it back.
		if os.Rename(claimed, lockPath(port)) != nil {
			os.Remove(claimed)
		}
		return false
	}
	logger.Warnf("Startup lock on port %d held by dead pid %d, taking it over", port, pid)
	os.Remove(claimed)
	return true
}

// ReleaseLock removes the startup lock marker for a port. Safe to call
// when the marker is already gone.
func ReleaseLock(port int) {
	if err := os.Remove(lockPath(port)); err != nil && !os.IsNotExist(err) {
		logger.Warnf("Failed to release startup lock on port %d: %v", port, err)
	}
}
