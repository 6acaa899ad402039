package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable wraps store failures that survived the transient-retry
// wrapper. A runner cycle cannot proceed without the store, so this is the
// one error class that surfaces to the invoking scheduler.
var ErrUnavailable = errors.New("queue store unavailable")

// Store is the stored-procedure interface of the job queue. All three
// operations are atomic and durable on the database side; in particular
// DequeueAndLock never hands the same job to two live leases.
type Store interface {
	DequeueAndLock(ctx context.Context, jobType, workerID string, leaseSeconds int) (*Job, error)
	UpdateJob(ctx context.Context, u JobUpdate) error
	RecordResult(ctx context.Context, jobID int64, result json.RawMessage) error
}

const (
	dequeueProc = `SELECT sp_jobs_dequeue($1, $2, $3)`
	updateProc  = `SELECT sp_jobs_update($1)`
	resultProc  = `SELECT sp_jobs_record_result($1, $2)`

	storeMaxRetries = 3
	storeRetryDelay = time.Second
	storeRetryMax   = 30 * time.Second
)

// SQLStore talks to the queue procedures over database/sql. Each call is
// wrapped in a short transient-reconnection retry; that lower-level retry is
// unrelated to job-level retry scheduling.
type SQLStore struct {
	db         *sql.DB
	maxRetries int
	sleep      func(time.Duration)
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, maxRetries: storeMaxRetries, sleep: time.Sleep}
}

// NewSQLStoreWithSleep overrides the transient-retry sleep. Test hook.
func NewSQLStoreWithSleep(db *sql.DB, sleep func(time.Duration)) *SQLStore {
	return &SQLStore{db: db, maxRetries: storeMaxRetries, sleep: sleep}
}

func (s *SQLStore) DequeueAndLock(ctx context.Context, jobType, workerID string, leaseSeconds int) (*Job, error) {
	raw, err := s.queryProc(ctx, dequeueProc, jobType, workerID, leaseSeconds)
	if err != nil {
		return nil, err
	}

	rows, err := procRows(raw)
	if err != nil {
		return nil, fmt.Errorf("dequeue response: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var j Job
	if err := json.Unmarshal(rows[0], &j); err != nil {
		return nil, fmt.Errorf("decode dequeued job: %w", err)
	}
	if j.ID == 0 {
		return nil, nil
	}
	return &j, nil
}

func (s *SQLStore) UpdateJob(ctx context.Context, u JobUpdate) error {
	doc := map[string]any{
		"job_id":   u.JobID,
		"status":   u.Status,
		"unlock":   u.Unlock,
		"attempts": u.Attempts,
	}
	if u.NotBefore != nil {
		doc["not_before"] = u.NotBefore.UTC().Format(time.RFC3339)
	}
	if u.PayloadPatch != nil {
		doc["payload_patch"] = u.PayloadPatch
	}
	if u.LastError != nil {
		doc["last_error"] = u.LastError
	} else if IsTerminal(u.Status) && u.Status != StatusDead && u.Status != StatusFailed {
		// Success transitions clear the diagnostic error.
		doc["last_error"] = nil
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal job update: %w", err)
	}

	_, err = s.queryProc(ctx, updateProc, string(payload))
	return err
}

func (s *SQLStore) RecordResult(ctx context.Context, jobID int64, result json.RawMessage) error {
	if result == nil {
		result = json.RawMessage(`null`)
	}
	_, err := s.queryProc(ctx, resultProc, jobID, string(result))
	return err
}

// queryProc runs one stored-procedure call with transient retry. The proc
// returns a single json value (possibly SQL NULL).
func (s *SQLStore) queryProc(ctx context.Context, query string, args ...any) ([]byte, error) {
	var lastErr error
	delay := storeRetryDelay

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
			s.sleep(delay)
			delay *= 2
			if delay > storeRetryMax {
				delay = storeRetryMax
			}
		}

		var raw sql.NullString
		err := s.db.QueryRowContext(ctx, query, args...).Scan(&raw)
		if err == nil {
			if !raw.Valid {
				return nil, nil
			}
			return []byte(raw.String), nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %d attempts: %v", ErrUnavailable, s.maxRetries+1, lastErr)
}

// procRows flattens the shapes the procedures historically return: an object
// wrapping a "result" array, a bare array, a single object, or null. The
// caller always sees a plain slice of row documents.
func procRows(raw []byte) ([]json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}

	switch probe.(type) {
	case nil:
		return nil, nil
	case []any:
		var rows []json.RawMessage
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	case map[string]any:
		var wrapped struct {
			Result []json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, err
		}
		if wrapped.Result != nil {
			return wrapped.Result, nil
		}
		// A bare object is a single row.
		return []json.RawMessage{raw}, nil
	default:
		return nil, fmt.Errorf("unexpected procedure response shape")
	}
}
