package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyLedger_Lookup(t *testing.T) {
	ctx := context.Background()

	t.Run("cache hit short-circuits the database", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		redisMock.ExpectGet("idem:user_1:k1").SetVal("tx-cached")

		ledger := NewIdempotencyLedger(db, redisClient)
		transactionID, found, err := ledger.Lookup(ctx, "user_1:k1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "tx-cached", transactionID)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("cache miss falls through to the ledger table", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		redisMock.ExpectGet("idem:user_1:k2").RedisNil()

		mock.ExpectQuery("SELECT id FROM ledger_transactions WHERE idempotency_key = \\$1").
			WithArgs("user_1:k2").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("tx-db"))

		ledger := NewIdempotencyLedger(db, redisClient)
		transactionID, found, err := ledger.Lookup(ctx, "user_1:k2")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "tx-db", transactionID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("absent key reports not found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT id FROM ledger_transactions WHERE idempotency_key = \\$1").
			WithArgs("user_1:k3").
			WillReturnError(sql.ErrNoRows)

		ledger := NewIdempotencyLedger(db, nil)
		_, found, err := ledger.Lookup(ctx, "user_1:k3")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestIdempotencyLedger_Remember(t *testing.T) {
	ctx := context.Background()

	t.Run("caches the committed mapping", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		redisMock.ExpectSet("idem:user_1:k1", "tx-1", 24*time.Hour).SetVal("OK")

		ledger := NewIdempotencyLedger(db, redisClient)
		ledger.Remember(ctx, "user_1:k1", "tx-1")
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("nil client is a no-op", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		ledger := NewIdempotencyLedger(db, nil)
		ledger.Remember(ctx, "user_1:k1", "tx-1")
	})
}
