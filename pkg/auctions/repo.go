package auctions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrAuctionClosed   = errors.New("auction has ended")
	ErrBidTooLow       = errors.New("bid is below the minimum increment")
	ErrBidSuperseded   = errors.New("bid superseded by a newer bid")
	ErrOwnAuction      = errors.New("sellers cannot bid on their own artwork")
	ErrMalformedRecord = errors.New("malformed auction record")
)

// AuctionRepository is the remote bid store. PlaceBid is a conditional update: it only
// succeeds while the stored current bid still equals the attempt's expected value. On
// rejection the returned record holds the store's current state.
type AuctionRepository interface {
	GetAuction(ctx context.Context, artworkID string) (BidRecord, error)
	PlaceBid(ctx context.Context, attempt BidAttempt) (BidRecord, error)
	ListBids(ctx context.Context, artworkID string, limit int) ([]Bid, error)
}

type postgresAuctionRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresAuctionRepository(pool *pgxpool.Pool) AuctionRepository {
	return &postgresAuctionRepository{pool: pool, now: time.Now}
}

const RecordColumns = `artwork_id, seller_id, current_bid, bid_increment, bid_count, highest_bidder_id, end_time, updated_at`

func ScanRecord(row pgx.Row) (BidRecord, error) {
	var rec BidRecord
	if err := row.Scan(&rec.ArtworkID, &rec.SellerID, &rec.CurrentBid, &rec.BidIncrement, &rec.BidCount, &rec.HighestBidderID, &rec.EndTime, &rec.UpdatedAt); err != nil {
		return BidRecord{}, err
	}
	if err := rec.Validate(); err != nil {
		return BidRecord{}, err
	}
	return rec, nil
}

func (r *postgresAuctionRepository) GetAuction(ctx context.Context, artworkID string) (BidRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rec, err := ScanRecord(r.pool.QueryRow(ctx, `SELECT `+RecordColumns+` FROM auctions WHERE artwork_id = $1`, artworkID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BidRecord{}, ErrAuctionNotFound
		}
		return BidRecord{}, err
	}
	return rec, nil
}

func (r *postgresAuctionRepository) PlaceBid(ctx context.Context, attempt BidAttempt) (BidRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return BidRecord{}, fmt.Errorf("begin bid tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `UPDATE auctions
              SET current_bid = $1, bid_count = bid_count + 1, highest_bidder_id = $2, updated_at = NOW()
              WHERE artwork_id = $3
                AND current_bid = $4
                AND $1 >= current_bid + bid_increment
                AND seller_id <> $2
                AND (end_time IS NULL OR end_time > NOW())
              RETURNING ` + RecordColumns

	rec, err := ScanRecord(tx.QueryRow(ctx, query, attempt.Amount, attempt.BidderID, attempt.ArtworkID, attempt.ExpectedCurrentBid))
	if errors.Is(err, pgx.ErrNoRows) {
		return r.classifyRejection(ctx, tx, attempt)
	}
	if err != nil {
		return BidRecord{}, err
	}

	if _, err := tx.Exec(ctx, `INSERT INTO bids (artwork_id, bidder_id, amount) VALUES ($1, $2, $3)`, rec.ArtworkID, attempt.BidderID, rec.CurrentBid); err != nil {
		return BidRecord{}, fmt.Errorf("record bid: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE artworks SET current_bid = $1, highest_bidder_id = $2, bid_count = $3 WHERE id = $4`, rec.CurrentBid, rec.HighestBidderID, rec.BidCount, rec.ArtworkID); err != nil {
		return BidRecord{}, fmt.Errorf("mirror bid onto artwork: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return BidRecord{}, fmt.Errorf("commit bid: %w", err)
	}
	return rec, nil
}

// classifyRejection explains why the conditional update matched no row.
func (r *postgresAuctionRepository) classifyRejection(ctx context.Context, tx pgx.Tx, attempt BidAttempt) (BidRecord, error) {
	current, err := ScanRecord(tx.QueryRow(ctx, `SELECT `+RecordColumns+` FROM auctions WHERE artwork_id = $1`, attempt.ArtworkID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BidRecord{}, ErrAuctionNotFound
		}
		return BidRecord{}, err
	}
	if reason := Classify(current, attempt, r.now()); reason != nil {
		return current, reason
	}
	// The database clock closed the auction or a bid landed in between.
	return current, ErrBidSuperseded
}

// Classify reports which precondition of a conditional bid does not hold against current.
// It returns nil when the attempt would be accepted.
func Classify(current BidRecord, attempt BidAttempt, now time.Time) error {
	switch {
	case current.ClosedAt(now):
		return ErrAuctionClosed
	case current.SellerID == attempt.BidderID:
		return ErrOwnAuction
	case !current.CurrentBid.Equal(attempt.ExpectedCurrentBid):
		return ErrBidSuperseded
	case attempt.Amount.LessThan(current.MinimumNextBid()):
		return ErrBidTooLow
	}
	return nil
}

func (r *postgresAuctionRepository) ListBids(ctx context.Context, artworkID string, limit int) ([]Bid, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT id, artwork_id, bidder_id, amount, created_at
              FROM bids
              WHERE artwork_id = $1
              ORDER BY created_at DESC
              LIMIT $2`, artworkID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bids := make([]Bid, 0)
	for rows.Next() {
		var b Bid
		if err := rows.Scan(&b.ID, &b.ArtworkID, &b.BidderID, &b.Amount, &b.CreatedAt); err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bids, nil
}
