package stats

import (
	"context"
	"database/sql"
)

// SQLRepo serves the read-only aggregates behind the ops endpoint. It
// satisfies all three handler interfaces.
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo {
	return &SQLRepo{db: db}
}

func (r *SQLRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, count(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (r *SQLRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM search_runs").Scan(&n)
	return n, err
}

// ListingCounter carries the sell_listings count separately so Handler
// takes two distinct Count implementations off one connection pool.
type ListingCounter struct {
	db *sql.DB
}

func NewListingCounter(db *sql.DB) *ListingCounter {
	return &ListingCounter{db: db}
}

func (r *ListingCounter) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM sell_listings").Scan(&n)
	return n, err
}
