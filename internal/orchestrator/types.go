package orchestrator

import "time"

// Status values used across BootstrapResult and PhaseResult.
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusInProgress = "in-progress"
	StatusSkipped    = "skipped"
)

// State is a step of the bootstrap state machine. States are reached in
// declaration order; any failure jumps to StateAborted.
type State string

const (
	StateStart              State = "start"
	StateVersionChecked     State = "version-checked"
	StateLockHeld           State = "lock-held"
	StateExtensionActivated State = "extension-activated"
	StateExtensionVerified  State = "extension-verified"
	StateReindexChecked     State = "reindex-checked"
	StateMigrationsDecided  State = "migrations-decided"
	StateDone               State = "done"
	StateAborted            State = "aborted"
)

// LockKind names a cross-process advisory lock domain. The values are the
// advisory lock keys and must stay stable across releases.
type LockKind int64

const (
	LockSystemConfig    LockKind = 69
	LockMigrations      LockKind = 200
	LockStorageTemplate LockKind = 420
	LockVersionHistory  LockKind = 500
	LockClipDimSize     LockKind = 512
	LockLibraryWatch    LockKind = 1337
)

func (k LockKind) String() string {
	switch k {
	case LockSystemConfig:
		return "system-config"
	case LockMigrations:
		return "migrations"
	case LockStorageTemplate:
		return "storage-template"
	case LockVersionHistory:
		return "version-history"
	case LockClipDimSize:
		return "clip-dim-size"
	case LockLibraryWatch:
		return "library-watch"
	default:
		return "unknown"
	}
}

// UpdateResult is returned by a successful extension update.
type UpdateResult struct {
	RestartRequired bool
}

// BootstrapResult is the outcome of a single bootstrap attempt.
type BootstrapResult struct {
	RunID            string        `json:"runId"`
	Status           string        `json:"status"` // "ok", "error", "in-progress"
	State            State         `json:"state"`
	EngineVersion    string        `json:"engineVersion,omitempty"`
	Extension        string        `json:"extension,omitempty"`
	ExtensionVersion string        `json:"extensionVersion,omitempty"`
	MigrationsRun    bool          `json:"migrationsRun"`
	Phases           []PhaseResult `json:"phases"`
	FailedPhase      State         `json:"failedPhase,omitempty"`
	Error            string        `json:"error,omitempty"`
	Hint             string        `json:"hint,omitempty"`
	StartedAt        time.Time     `json:"startedAt"`
	DurationMs       int64         `json:"durationMs"`
}

// PhaseResult represents the outcome of a single state transition.
type PhaseResult struct {
	Name       string `json:"name"`
	Status     string `json:"status"` // "ok", "error", "skipped"
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// ProbeResult is returned by RunDeepHealth for each dependency.
type ProbeResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}
