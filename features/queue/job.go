// Package queue models the database-resident work queue and its
// stored-procedure adapter. The database is the only cross-process shared
// resource; all mutual exclusion over a job is delegated to it.
package queue

import (
	"encoding/json"
	"time"
)

// Job statuses. The search family terminates in done/dead; the publish
// family reuses the same lifecycle with published/failed as its terminal
// pair. Transitions are strictly monotonic: no terminal status ever moves.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusRetry      = "retry"
	StatusDone       = "done"
	StatusDead       = "dead"
	StatusPublished  = "published"
	StatusFailed     = "failed"
)

// IsTerminal reports whether a status permits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusDone, StatusDead, StatusPublished, StatusFailed:
		return true
	}
	return false
}

// Job is one unit of deferred work. Rows are created by external producers;
// workers only claim and mutate them.
type Job struct {
	ID            int64           `json:"job_id"`
	Type          string          `json:"job_type"`
	Payload       json.RawMessage `json:"payload_json"`
	Status        string          `json:"status"`
	Attempts      int             `json:"attempts"`
	MaxAttempts   int             `json:"max_attempts"`
	LockedBy      string          `json:"locked_by,omitempty"`
	LockExpiresAt *time.Time      `json:"lock_expires_at,omitempty"`
	NotBefore     *time.Time      `json:"not_before,omitempty"`
	LastError     json.RawMessage `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// JobError is the structured last_error document retained for diagnostics.
type JobError struct {
	Class      string `json:"class"`
	Msg        string `json:"msg"`
	HTTPStatus int    `json:"http_status,omitempty"`
}

func (e *JobError) JSON() json.RawMessage {
	raw, err := json.Marshal(e)
	if err != nil {
		return json.RawMessage(`{"class":"internal","msg":"marshal last_error failed"}`)
	}
	return raw
}

// JobUpdate is one status transition written back through the store.
type JobUpdate struct {
	JobID  int64
	Status string
	// Unlock releases the lease along with the status write.
	Unlock bool
	// Attempts is the new attempt count; the runner increments it exactly
	// once per claimed attempt that reaches an outcome.
	Attempts int
	// NotBefore gates re-dequeue of retry jobs. Nil leaves the column as-is.
	NotBefore *time.Time
	// PayloadPatch is merged into the stored payload (pagination cursors
	// and similar handler-driven adjustments). Nil patches nothing.
	PayloadPatch json.RawMessage
	// LastError replaces the diagnostic error document; it is cleared on
	// success transitions.
	LastError *JobError
}
