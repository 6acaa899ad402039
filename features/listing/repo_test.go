package listing

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRow() SellListing {
	return SellListing{
		Channel:           ChannelMercadoLibre,
		Market:            "MX",
		ChannelItemID:     "MLM123",
		Title:             "Laptop",
		SellPriceOriginal: 25000,
		CurrencyOriginal:  "MXN",
		SellPriceUSD:      1375,
		FxRateToUSD:       0.055,
		FxAsOfDate:        "2025-06-01",
		ListingTimestamp:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSQLRepo_UpsertBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`SELECT sp_selllistings($1)`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewSQLRepo(db)
	require.NoError(t, repo.UpsertBatch(context.Background(), []SellListing{sampleRow()}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepo_UpsertBatchEmptyIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSQLRepo(db)
	require.NoError(t, repo.UpsertBatch(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepo_UpsertBatchError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`SELECT sp_selllistings($1)`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(errors.New("constraint violation"))

	repo := NewSQLRepo(db)
	err = repo.UpsertBatch(context.Background(), []SellListing{sampleRow()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sp_selllistings")
}
