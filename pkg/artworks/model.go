package artworks

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"atelier/pkg/storage"
)

type Artwork struct {
	ID           string `json:"id"`
	OwnerID      string `json:"owner_id"`
	Title        string `json:"title"`
	Medium       string `json:"medium"`
	Dimensions   string `json:"dimensions"`
	Description  string `json:"description"`
	ImageURL     string `json:"image_url"`
	DisplayOrder *int   `json:"display_order"`

	IsAuction    bool            `json:"is_auction"`
	IsForSale    bool            `json:"is_for_sale"`
	Price        decimal.Decimal `json:"price"`
	BidIncrement decimal.Decimal `json:"bid_increment"`
	EndTime      *time.Time      `json:"end_time,omitempty"`

	CurrentBid      *decimal.Decimal `json:"current_bid,omitempty"`
	HighestBidderID *string          `json:"highest_bidder_id,omitempty"`
	BidCount        int              `json:"bid_count"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate rejects rows that cannot be shown in a gallery.
func (a Artwork) Validate() error {
	switch {
	case a.ID == "" || a.OwnerID == "":
		return fmt.Errorf("%w: missing id", ErrMalformedRow)
	case a.Price.IsNegative():
		return fmt.Errorf("%w: negative price", ErrMalformedRow)
	case !a.BidIncrement.IsPositive():
		return fmt.Errorf("%w: non-positive bid increment", ErrMalformedRow)
	case a.CurrentBid != nil && a.CurrentBid.IsNegative():
		return fmt.Errorf("%w: negative current bid", ErrMalformedRow)
	case a.BidCount < 0:
		return fmt.Errorf("%w: negative bid count", ErrMalformedRow)
	}
	return nil
}

type PublishInput struct {
	OwnerID      string
	Title        string
	Medium       string
	Dimensions   string
	Description  string
	IsAuction    bool
	IsForSale    bool
	Price        decimal.Decimal
	BidIncrement *decimal.Decimal
	EndTime      *time.Time
	Image        *storage.Image
}

// LayoutItem is one entry of a saved gallery arrangement.
type LayoutItem struct {
	ID           string `json:"id" binding:"required"`
	DisplayOrder int    `json:"display_order"`
	IsAuction    bool   `json:"is_auction"`
	IsForSale    bool   `json:"is_for_sale"`
}

// StudioStats summarises an artist's dashboard.
type StudioStats struct {
	TotalArtworks  int `json:"total_artworks"`
	ActiveAuctions int `json:"active_auctions"`
}
