package testhelpers

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"atelier/pkg/db"
)

var uniqueCounter int64

func nextSuffix() int64 {
	return atomic.AddInt64(&uniqueCounter, 1)
}

// SetupTestPool connects to DATABASE_URL_FOR_TEST and applies the schema, or skips the test.
// Package tests run from their own directory, so the schema is found one level up.
func SetupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL_FOR_TEST")
	if dsn == "" {
		t.Skip("DATABASE_URL_FOR_TEST not set; skipping repository tests")
	}

	ctx := context.Background()
	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))
	t.Cleanup(pool.Close)

	require.NoError(t, db.ApplySchema(ctx, pool, "../db/schema.sql"))
	return pool
}

// CreateTestUser inserts a user with an empty profile and returns its ID.
func CreateTestUser(t *testing.T, pool *pgxpool.Pool, role string) string {
	t.Helper()

	ctx := context.Background()
	email := fmt.Sprintf("test-user-%d-%d@example.com", time.Now().UnixNano(), nextSuffix())

	var id string
	err := pool.QueryRow(ctx, "INSERT INTO users (email, password_hash, role) VALUES ($1, $2, $3) RETURNING id", email, "hash", role).Scan(&id)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, "INSERT INTO profiles (id, role) VALUES ($1, $2)", id, role)
	require.NoError(t, err)
	return id
}

// CreateTestArtwork inserts a plain gallery artwork for the given owner and returns its ID.
func CreateTestArtwork(t *testing.T, pool *pgxpool.Pool, ownerID string, displayOrder *int) string {
	t.Helper()

	ctx := context.Background()
	title := fmt.Sprintf("test-artwork-%d", nextSuffix())

	var id string
	err := pool.QueryRow(ctx, `INSERT INTO artworks (owner_id, title, medium, image_url, display_order)
              VALUES ($1, $2, 'oil', 'http://localhost/storage/gallery/test.png', $3) RETURNING id`,
		ownerID, title, displayOrder).Scan(&id)
	require.NoError(t, err)
	return id
}

// CreateTestAuction marks the artwork as auctioned and opens its bid record.
func CreateTestAuction(t *testing.T, pool *pgxpool.Pool, artworkID, sellerID string, currentBid, increment int64, endTime *time.Time) {
	t.Helper()

	ctx := context.Background()
	bid := decimal.NewFromInt(currentBid)
	inc := decimal.NewFromInt(increment)

	_, err := pool.Exec(ctx, `UPDATE artworks SET is_auction = true, price = $2, bid_increment = $3, end_time = $4, current_bid = $2 WHERE id = $1`,
		artworkID, bid, inc, endTime)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `INSERT INTO auctions (artwork_id, seller_id, current_bid, bid_increment, end_time) VALUES ($1, $2, $3, $4, $5)`,
		artworkID, sellerID, bid, inc, endTime)
	require.NoError(t, err)
}
