package artworks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"atelier/pkg/auctions"
	"atelier/pkg/logger"
	"atelier/pkg/storage"
)

var ErrInvalidArtwork = errors.New("invalid artwork")

const liveAuctionLimit = 50

type ArtworkService interface {
	Publish(ctx context.Context, input PublishInput) (Artwork, error)
	GetArtwork(ctx context.Context, id string) (Artwork, error)
	ListGallery(ctx context.Context, ownerID, medium string) ([]Artwork, error)
	ListMedia(ctx context.Context, ownerID string) ([]string, error)
	SaveLayout(ctx context.Context, ownerID string, items []LayoutItem) ([]Artwork, error)
	ListLiveAuctions(ctx context.Context) ([]Artwork, error)
	ListCollectorBids(ctx context.Context, collectorID string) ([]Artwork, error)
	Stats(ctx context.Context, ownerID string) (StudioStats, error)
}

type artworkService struct {
	repo             ArtworkRepository
	store            storage.ObjectStore
	publisher        auctions.BidPublisher
	defaultIncrement decimal.Decimal
	now              func() time.Time
}

// NewArtworkService publishes auctions opened or closed by artwork writes. publisher may be nil.
func NewArtworkService(repo ArtworkRepository, store storage.ObjectStore, publisher auctions.BidPublisher, defaultIncrement decimal.Decimal) ArtworkService {
	if !defaultIncrement.IsPositive() {
		defaultIncrement = decimal.NewFromInt(10)
	}
	return &artworkService{repo: repo, store: store, publisher: publisher, defaultIncrement: defaultIncrement, now: time.Now}
}

func (s *artworkService) publish(ctx context.Context, changed []auctions.BidRecord) {
	if s.publisher == nil {
		return
	}
	for _, rec := range changed {
		if err := s.publisher.PublishBid(ctx, rec); err != nil {
			logger.Warn("failed to publish auction change", map[string]any{"artwork_id": rec.ArtworkID, "error": err.Error()})
		}
	}
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArtwork, reason)
}

func (s *artworkService) Publish(ctx context.Context, input PublishInput) (Artwork, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Artwork{}, invalid("title is required")
	}
	if input.Image == nil || input.Image.Reader == nil {
		return Artwork{}, invalid("image is required")
	}
	if input.Price.IsNegative() {
		return Artwork{}, invalid("price cannot be negative")
	}
	increment := s.defaultIncrement
	if input.BidIncrement != nil {
		if !input.BidIncrement.IsPositive() {
			return Artwork{}, invalid("bid increment must be positive")
		}
		increment = *input.BidIncrement
	}
	if input.IsAuction && input.EndTime != nil && !input.EndTime.After(s.now()) {
		return Artwork{}, invalid("auction end time must be in the future")
	}

	objectPath := "artworks/" + uuid.NewString() + input.Image.Extension
	obj, err := s.store.Put(ctx, storage.BucketGallery, objectPath, input.Image.Reader, input.Image.ContentType)
	if err != nil {
		return Artwork{}, fmt.Errorf("upload artwork image: %w", err)
	}

	created, changed, err := s.repo.CreateArtwork(ctx, Artwork{
		OwnerID:      input.OwnerID,
		Title:        title,
		Medium:       strings.TrimSpace(input.Medium),
		Dimensions:   strings.TrimSpace(input.Dimensions),
		Description:  input.Description,
		ImageURL:     obj.URL,
		IsAuction:    input.IsAuction,
		IsForSale:    input.IsForSale,
		Price:        input.Price,
		BidIncrement: increment,
		EndTime:      input.EndTime,
	})
	if err != nil {
		logger.Warn("artwork row not created after upload", map[string]any{"path": objectPath, "error": err.Error()})
		return Artwork{}, err
	}
	s.publish(ctx, changed)

	logger.Info("artwork published", map[string]any{"artwork_id": created.ID, "owner_id": created.OwnerID, "is_auction": created.IsAuction})
	return created, nil
}

func (s *artworkService) GetArtwork(ctx context.Context, id string) (Artwork, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Artwork{}, ErrArtworkNotFound
	}
	return s.repo.GetArtwork(ctx, id)
}

func (s *artworkService) ListGallery(ctx context.Context, ownerID, medium string) ([]Artwork, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return []Artwork{}, nil
	}
	return s.repo.ListGallery(ctx, ownerID, strings.TrimSpace(medium))
}

func (s *artworkService) ListMedia(ctx context.Context, ownerID string) ([]string, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return []string{}, nil
	}
	return s.repo.ListMedia(ctx, ownerID)
}

// SaveLayout applies every item or none and returns the owner's gallery in its new order.
func (s *artworkService) SaveLayout(ctx context.Context, ownerID string, items []LayoutItem) ([]Artwork, error) {
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if _, err := uuid.Parse(item.ID); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrArtworkNotFound, item.ID)
		}
		if seen[item.ID] {
			return nil, invalid("artwork listed twice: " + item.ID)
		}
		if item.DisplayOrder < 0 {
			return nil, invalid("display order cannot be negative")
		}
		seen[item.ID] = true
	}

	if len(items) > 0 {
		changed, err := s.repo.SaveLayout(ctx, ownerID, items)
		if err != nil {
			return nil, err
		}
		s.publish(ctx, changed)
		logger.Info("gallery layout saved", map[string]any{"owner_id": ownerID, "items": len(items), "auctions_changed": len(changed)})
	}
	return s.repo.ListGallery(ctx, ownerID, "")
}

func (s *artworkService) ListLiveAuctions(ctx context.Context) ([]Artwork, error) {
	return s.repo.ListLiveAuctions(ctx, liveAuctionLimit)
}

func (s *artworkService) ListCollectorBids(ctx context.Context, collectorID string) ([]Artwork, error) {
	return s.repo.ListByHighestBidder(ctx, collectorID)
}

func (s *artworkService) Stats(ctx context.Context, ownerID string) (StudioStats, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return StudioStats{}, nil
	}
	return s.repo.Stats(ctx, ownerID)
}
