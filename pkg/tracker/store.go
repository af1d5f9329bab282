// Package tracker keeps a local view of one artwork's auction consistent with the remote
// bid store and its change feed, and submits bids against it.
package tracker

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"atelier/pkg/auctions"
	"atelier/pkg/feed"
)

var (
	ErrInvalidAmount      = errors.New("bid amount must be positive")
	ErrBidTooLow          = errors.New("bid is below the minimum next bid")
	ErrBidSuperseded      = errors.New("bid superseded by a newer bid")
	ErrAuctionExpired     = errors.New("auction has ended")
	ErrAuctionNotFound    = errors.New("auction not found")
	ErrSubmissionInFlight = errors.New("a bid for this artwork is already pending")
	ErrSubmitTimeout      = errors.New("bid submission timed out")
	ErrViewClosed         = errors.New("auction view closed")
	ErrFeedDropped        = errors.New("live bid feed disconnected")
)

// BidStore is the remote arbiter of auction state.
type BidStore interface {
	Snapshot(ctx context.Context, artworkID string) (auctions.BidRecord, error)
	// PlaceBid sets the current bid to amount only if it still equals expected. On
	// ErrBidSuperseded or ErrBidTooLow the returned record, when its ArtworkID is set,
	// is the store's current state.
	PlaceBid(ctx context.Context, artworkID string, expected, amount decimal.Decimal) (auctions.BidRecord, error)
}

// Stream is an open feed subscription. C is closed when the stream ends.
type Stream interface {
	C() <-chan feed.Event
	Close() error
}

type Feed interface {
	Subscribe(ctx context.Context, artworkID string) (Stream, error)
}

// BrokerFeed reads from an in-process feed broker.
type BrokerFeed struct {
	Broker feed.Broker
}

func (f BrokerFeed) Subscribe(ctx context.Context, artworkID string) (Stream, error) {
	sub, err := f.Broker.Subscribe(ctx, artworkID)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// IsRetryable reports whether the caller should refresh and let the user try again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBidSuperseded) || errors.Is(err, ErrBidTooLow) || errors.Is(err, ErrSubmitTimeout)
}
