package auctions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"atelier/pkg/logger"
	"atelier/pkg/metrics"
)

var ErrInvalidBid = errors.New("invalid bid")

// BidPublisher announces accepted bids on the change feed.
type BidPublisher interface {
	PublishBid(ctx context.Context, rec BidRecord) error
}

type AuctionService interface {
	GetAuction(ctx context.Context, artworkID string) (BidRecord, error)
	PlaceBid(ctx context.Context, attempt BidAttempt) (BidRecord, error)
	ListBids(ctx context.Context, artworkID string, limit int) ([]Bid, error)
}

type auctionService struct {
	repo      AuctionRepository
	publisher BidPublisher
}

// NewAuctionService wires the store to the feed. publisher may be nil.
func NewAuctionService(repo AuctionRepository, publisher BidPublisher) AuctionService {
	return &auctionService{repo: repo, publisher: publisher}
}

func (s *auctionService) GetAuction(ctx context.Context, artworkID string) (BidRecord, error) {
	if _, err := uuid.Parse(artworkID); err != nil {
		return BidRecord{}, ErrAuctionNotFound
	}
	return s.repo.GetAuction(ctx, artworkID)
}

func (s *auctionService) PlaceBid(ctx context.Context, attempt BidAttempt) (BidRecord, error) {
	if _, err := uuid.Parse(attempt.ArtworkID); err != nil {
		return BidRecord{}, ErrAuctionNotFound
	}
	if _, err := uuid.Parse(attempt.BidderID); err != nil {
		return BidRecord{}, fmt.Errorf("%w: bidder id is required", ErrInvalidBid)
	}
	if !attempt.Amount.IsPositive() {
		return BidRecord{}, fmt.Errorf("%w: amount must be positive", ErrInvalidBid)
	}
	if attempt.ExpectedCurrentBid.IsNegative() {
		return BidRecord{}, fmt.Errorf("%w: expected current bid cannot be negative", ErrInvalidBid)
	}

	rec, err := s.repo.PlaceBid(ctx, attempt)
	if err != nil {
		metrics.BidsTotal.WithLabelValues(resultLabel(err)).Inc()
		return rec, err
	}
	metrics.BidsTotal.WithLabelValues("accepted").Inc()

	logger.Info("bid accepted", map[string]any{
		"artwork_id": rec.ArtworkID,
		"amount":     rec.CurrentBid.String(),
		"bid_count":  rec.BidCount,
	})

	if s.publisher != nil {
		if err := s.publisher.PublishBid(ctx, rec); err != nil {
			logger.Warn("failed to publish bid", map[string]any{"artwork_id": rec.ArtworkID, "error": err.Error()})
		}
	}
	return rec, nil
}

func (s *auctionService) ListBids(ctx context.Context, artworkID string, limit int) ([]Bid, error) {
	if _, err := uuid.Parse(artworkID); err != nil {
		return nil, ErrAuctionNotFound
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListBids(ctx, artworkID, limit)
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrBidSuperseded):
		return "superseded"
	case errors.Is(err, ErrBidTooLow):
		return "too_low"
	case errors.Is(err, ErrAuctionClosed):
		return "closed"
	case errors.Is(err, ErrAuctionNotFound):
		return "not_found"
	case errors.Is(err, ErrOwnAuction):
		return "own_auction"
	default:
		return "error"
	}
}
