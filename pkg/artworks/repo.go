package artworks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/pkg/auctions"
)

var (
	ErrArtworkNotFound = errors.New("artwork not found")
	ErrForbidden       = errors.New("artwork belongs to another artist")
	ErrMalformedRow    = errors.New("malformed artwork row")
)

// Writes that open or close an auction also return the auction rows they changed, so callers
// can publish them once the transaction has committed.
type ArtworkRepository interface {
	CreateArtwork(ctx context.Context, input Artwork) (Artwork, []auctions.BidRecord, error)
	GetArtwork(ctx context.Context, id string) (Artwork, error)
	ListGallery(ctx context.Context, ownerID, medium string) ([]Artwork, error)
	ListMedia(ctx context.Context, ownerID string) ([]string, error)
	SaveLayout(ctx context.Context, ownerID string, items []LayoutItem) ([]auctions.BidRecord, error)
	ListLiveAuctions(ctx context.Context, limit int) ([]Artwork, error)
	ListByHighestBidder(ctx context.Context, bidderID string) ([]Artwork, error)
	Stats(ctx context.Context, ownerID string) (StudioStats, error)
}

type postgresArtworkRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresArtworkRepository(pool *pgxpool.Pool) ArtworkRepository {
	return &postgresArtworkRepository{pool: pool}
}

const artworkColumns = `id, owner_id, title, medium, dimensions, description, image_url, display_order,
              is_auction, is_for_sale, price, bid_increment, end_time, current_bid, highest_bidder_id, bid_count, created_at`

func scanArtwork(row pgx.Row) (Artwork, error) {
	var a Artwork
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Title, &a.Medium, &a.Dimensions, &a.Description, &a.ImageURL, &a.DisplayOrder,
		&a.IsAuction, &a.IsForSale, &a.Price, &a.BidIncrement, &a.EndTime, &a.CurrentBid, &a.HighestBidderID, &a.BidCount, &a.CreatedAt); err != nil {
		return Artwork{}, err
	}
	if err := a.Validate(); err != nil {
		return Artwork{}, err
	}
	return a, nil
}

func collect(rows pgx.Rows) ([]Artwork, error) {
	defer rows.Close()

	items := make([]Artwork, 0)
	for rows.Next() {
		a, err := scanArtwork(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// openAuction creates the bid record of an auctioned artwork, starting at its price. A record
// that already exists keeps its bids and takes the artwork's end time.
func openAuction(ctx context.Context, tx pgx.Tx, artworkID string) (auctions.BidRecord, error) {
	rec, err := auctions.ScanRecord(tx.QueryRow(ctx, `INSERT INTO auctions (artwork_id, seller_id, current_bid, bid_increment, end_time)
              SELECT id, owner_id, price, bid_increment, end_time FROM artworks WHERE id = $1
              ON CONFLICT (artwork_id) DO UPDATE SET end_time = EXCLUDED.end_time, updated_at = NOW()
              RETURNING `+auctions.RecordColumns, artworkID))
	if err != nil {
		return auctions.BidRecord{}, fmt.Errorf("open auction: %w", err)
	}
	_, err = tx.Exec(ctx, `UPDATE artworks SET current_bid = COALESCE(current_bid, price) WHERE id = $1`, artworkID)
	return rec, err
}

// closeAuction ends bidding on an artwork taken out of auction. ok is false when the artwork
// never had a bid record.
func closeAuction(ctx context.Context, tx pgx.Tx, artworkID string) (rec auctions.BidRecord, ok bool, err error) {
	rec, err = auctions.ScanRecord(tx.QueryRow(ctx, `UPDATE auctions SET end_time = LEAST(COALESCE(end_time, NOW()), NOW()), updated_at = NOW()
              WHERE artwork_id = $1
              RETURNING `+auctions.RecordColumns, artworkID))
	if errors.Is(err, pgx.ErrNoRows) {
		return auctions.BidRecord{}, false, nil
	}
	if err != nil {
		return auctions.BidRecord{}, false, fmt.Errorf("close auction: %w", err)
	}
	return rec, true, nil
}

func (r *postgresArtworkRepository) CreateArtwork(ctx context.Context, input Artwork) (Artwork, []auctions.BidRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Artwork{}, nil, err
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO artworks (owner_id, title, medium, dimensions, description, image_url, display_order,
                                    is_auction, is_for_sale, price, bid_increment, end_time)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
              RETURNING ` + artworkColumns

	created, err := scanArtwork(tx.QueryRow(ctx, query, input.OwnerID, input.Title, input.Medium, input.Dimensions, input.Description,
		input.ImageURL, input.DisplayOrder, input.IsAuction, input.IsForSale, input.Price, input.BidIncrement, input.EndTime))
	if err != nil {
		return Artwork{}, nil, err
	}

	var changed []auctions.BidRecord
	if created.IsAuction {
		rec, err := openAuction(ctx, tx, created.ID)
		if err != nil {
			return Artwork{}, nil, err
		}
		changed = append(changed, rec)
		price := created.Price
		created.CurrentBid = &price
	}

	if err := tx.Commit(ctx); err != nil {
		return Artwork{}, nil, err
	}
	return created, changed, nil
}

func (r *postgresArtworkRepository) GetArtwork(ctx context.Context, id string) (Artwork, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	a, err := scanArtwork(r.pool.QueryRow(ctx, `SELECT `+artworkColumns+` FROM artworks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Artwork{}, ErrArtworkNotFound
		}
		return Artwork{}, err
	}
	return a, nil
}

// ListGallery orders by the saved layout. Artworks never placed in a layout follow, newest first,
// which is the whole ordering for an artist who never saved one.
func (r *postgresArtworkRepository) ListGallery(ctx context.Context, ownerID, medium string) ([]Artwork, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + artworkColumns + `
              FROM artworks
              WHERE owner_id = $1 AND ($2 = '' OR LOWER(medium) = LOWER($2))
              ORDER BY display_order ASC NULLS LAST, created_at DESC`

	rows, err := r.pool.Query(ctx, query, ownerID, medium)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *postgresArtworkRepository) ListMedia(ctx context.Context, ownerID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT DISTINCT medium FROM artworks WHERE owner_id = $1 AND medium <> '' ORDER BY medium`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	media := make([]string, 0)
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		media = append(media, m)
	}
	return media, rows.Err()
}

func (r *postgresArtworkRepository) SaveLayout(ctx context.Context, ownerID string, items []LayoutItem) ([]auctions.BidRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var changed []auctions.BidRecord
	for _, item := range items {
		var owner string
		var wasAuction bool
		err := tx.QueryRow(ctx, `SELECT owner_id, is_auction FROM artworks WHERE id = $1 FOR UPDATE`, item.ID).Scan(&owner, &wasAuction)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s", ErrArtworkNotFound, item.ID)
			}
			return nil, err
		}
		if owner != ownerID {
			return nil, fmt.Errorf("%w: %s", ErrForbidden, item.ID)
		}

		if _, err := tx.Exec(ctx, `UPDATE artworks SET display_order = $1, is_auction = $2, is_for_sale = $3 WHERE id = $4`,
			item.DisplayOrder, item.IsAuction, item.IsForSale, item.ID); err != nil {
			return nil, fmt.Errorf("update layout: %w", err)
		}

		switch {
		case item.IsAuction && !wasAuction:
			rec, err := openAuction(ctx, tx, item.ID)
			if err != nil {
				return nil, err
			}
			changed = append(changed, rec)
		case !item.IsAuction && wasAuction:
			rec, ok, err := closeAuction(ctx, tx, item.ID)
			if err != nil {
				return nil, err
			}
			if ok {
				changed = append(changed, rec)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return changed, nil
}

func (r *postgresArtworkRepository) ListLiveAuctions(ctx context.Context, limit int) ([]Artwork, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + artworkColumns + `
              FROM artworks
              WHERE is_auction = true
              ORDER BY end_time ASC NULLS LAST, created_at DESC
              LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *postgresArtworkRepository) ListByHighestBidder(ctx context.Context, bidderID string) ([]Artwork, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + artworkColumns + `
              FROM artworks
              WHERE is_auction = true AND highest_bidder_id = $1
              ORDER BY end_time ASC NULLS LAST`

	rows, err := r.pool.Query(ctx, query, bidderID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Stats counts every artwork the artist owns and those currently listed for auction.
func (r *postgresArtworkRepository) Stats(ctx context.Context, ownerID string) (StudioStats, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var stats StudioStats
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE is_auction)
              FROM artworks WHERE owner_id = $1`, ownerID).Scan(&stats.TotalArtworks, &stats.ActiveAuctions)
	if err != nil {
		return StudioStats{}, err
	}
	return stats, nil
}
