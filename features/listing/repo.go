package listing

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

type Repository interface {
	UpsertBatch(ctx context.Context, rows []SellListing) error
}

const procSellListings = `SELECT sp_selllistings($1)`

// SQLRepo writes listing batches through the sp_selllistings stored
// procedure, which upserts on (channel, channelItemId).
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo {
	return &SQLRepo{db: db}
}

func (r *SQLRepo) UpsertBatch(ctx context.Context, rows []SellListing) error {
	if len(rows) == 0 {
		return nil
	}
	doc, err := json.Marshal(map[string]any{"sellListings": rows})
	if err != nil {
		return fmt.Errorf("marshal sell listings: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, procSellListings, string(doc)); err != nil {
		return fmt.Errorf("sp_selllistings: %w", err)
	}
	return nil
}
