package auctions

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BidRecord is the auction state of one artwork.
type BidRecord struct {
	ArtworkID       string          `json:"artwork_id"`
	SellerID        string          `json:"seller_id"`
	CurrentBid      decimal.Decimal `json:"current_bid"`
	BidIncrement    decimal.Decimal `json:"bid_increment"`
	BidCount        int             `json:"bid_count"`
	HighestBidderID *string         `json:"highest_bidder_id,omitempty"`
	EndTime         *time.Time      `json:"end_time,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// MinimumNextBid is the lowest amount the store will accept next.
func (r BidRecord) MinimumNextBid() decimal.Decimal {
	return r.CurrentBid.Add(r.BidIncrement)
}

func (r BidRecord) ClosedAt(now time.Time) bool {
	return r.EndTime != nil && !now.Before(*r.EndTime)
}

// Validate rejects records that cannot describe a real auction.
func (r BidRecord) Validate() error {
	switch {
	case r.ArtworkID == "":
		return fmt.Errorf("%w: missing artwork id", ErrMalformedRecord)
	case r.CurrentBid.IsNegative():
		return fmt.Errorf("%w: negative current bid", ErrMalformedRecord)
	case !r.BidIncrement.IsPositive():
		return fmt.Errorf("%w: non-positive increment", ErrMalformedRecord)
	case r.BidCount < 0:
		return fmt.Errorf("%w: negative bid count", ErrMalformedRecord)
	}
	return nil
}

// BidAttempt asks the store to move CurrentBid from ExpectedCurrentBid to Amount.
type BidAttempt struct {
	ArtworkID          string
	BidderID           string
	Amount             decimal.Decimal
	ExpectedCurrentBid decimal.Decimal
}

type Bid struct {
	ID        string          `json:"id"`
	ArtworkID string          `json:"artwork_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}
