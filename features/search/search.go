// Package search records the outcome of marketplace search jobs and adapts
// them to the queue runner.
package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run is one search execution, successful or not. Completed runs carry the
// result documents; failed runs carry the upstream error instead.
type Run struct {
	SiteID     string            `json:"site_id"`
	QueryText  string            `json:"query_text"`
	DomainID   string            `json:"domain_id,omitempty"`
	Status     string            `json:"status"`
	HTTPStatus int               `json:"http_status,omitempty"`
	Error      json.RawMessage   `json:"error_json,omitempty"`
	Results    []json.RawMessage `json:"results,omitempty"`
	RecordedAt time.Time         `json:"recorded_at"`
}

type Recorder interface {
	RecordRun(ctx context.Context, run Run) error
}

const procSearchRuns = `SELECT sp_search_runs($1)`

// SQLRecorder persists runs through the sp_search_runs stored procedure,
// which handles run insertion and result fan-out in one transaction.
type SQLRecorder struct {
	db *sql.DB
}

func NewSQLRecorder(db *sql.DB) *SQLRecorder {
	return &SQLRecorder{db: db}
}

func (r *SQLRecorder) RecordRun(ctx context.Context, run Run) error {
	doc, err := json.Marshal(map[string]any{"search_runs": []Run{run}})
	if err != nil {
		return fmt.Errorf("marshal search run: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, procSearchRuns, string(doc)); err != nil {
		return fmt.Errorf("sp_search_runs: %w", err)
	}
	return nil
}
