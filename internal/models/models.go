package models

import "time"

// Ownership records who may legitimately kill a shared proxy process.
// Only the invocation that spawned it owns the process handle; an
// invocation that joined a proxy someone else spawned never does.
type Ownership string

const (
	OwnershipSpawned Ownership = "spawned"
	OwnershipJoined  Ownership = "joined"
	OwnershipUnknown Ownership = "unknown"
)

// DetectMethod names the strategy that confirmed (or failed to confirm)
// a proxy on a port.
type DetectMethod string

const (
	MethodProbe     DetectMethod = "http-probe"
	MethodLockFile  DetectMethod = "lock-file"
	MethodPortOwner DetectMethod = "port-owner"
	MethodNone      DetectMethod = "none"
)

/**
 * SessionLock is the persisted ledger shared across OS processes
 * @property {int} port - Port of the shared proxy this lock describes
 * @property {int} pid - Recorded proxy process id (must be re-verified before trust)
 * @property {[]string} sessionIds - Opaque tokens of dependent CLI invocations
 * @description
 * - Exists iff a proxy believed alive has dependent sessions or is mid-startup
 * - Authoritative for intent and membership only, never for liveness
 */
type SessionLock struct {
	Port       int       `json:"port"`
	Pid        int       `json:"pid"`
	SessionIds []string  `json:"sessionIds"`
	StartedAt  time.Time `json:"startedAt"`
	Version    string    `json:"version,omitempty"`
	Backend    string    `json:"backend,omitempty"`
}

// ProxyStatus is the derived, never-persisted classification of a port.
// Verified means the HTTP probe itself answered; Blocked means the port
// is occupied by a process that does not look like our proxy.
type ProxyStatus struct {
	Running  bool         `json:"running"`
	Verified bool         `json:"verified"`
	Method   DetectMethod `json:"method"`
	Pid      int          `json:"pid,omitempty"`
	Version  string       `json:"version,omitempty"`
	Blocked  bool         `json:"blocked"`
	Blocker  string       `json:"blocker,omitempty"`
}

// DownloadOutcome is the terminal result of a retry loop.
type DownloadOutcome struct {
	Success      bool   `json:"success"`
	FilePath     string `json:"filePath,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	AttemptsUsed int    `json:"attemptsUsed"`
}

// RewriteRecord is one reasoning-injector decision, kept for the
// side-channel status endpoint. Bodies are never recorded.
type RewriteRecord struct {
	ModelIn  string    `json:"modelIn"`
	ModelOut string    `json:"modelOut"`
	Effort   string    `json:"effort"`
	Path     string    `json:"path"`
	Time     time.Time `json:"time"`
}

// ReasoningStatus is the payload of GET /__ccs/reasoning.
type ReasoningStatus struct {
	Counts        map[string]int64  `json:"counts"`
	Recent        []RewriteRecord   `json:"recent"`
	ModelMap      map[string]string `json:"modelMap"`
	DefaultEffort string            `json:"defaultEffort"`
}

// ErrorResponse defines API error response format
type ErrorResponse struct {
	Error string `json:"error"`
}
