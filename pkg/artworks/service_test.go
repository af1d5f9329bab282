package artworks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"atelier/pkg/auctions"
	"atelier/pkg/feed"
	"atelier/pkg/storage"
	"atelier/pkg/tracker"
)

const (
	ownerID   = "7c1d2e3f-4a5b-4c6d-8e9f-0a1b2c3d4e55"
	artworkA  = "5b0f6d1e-8f7a-4c38-9a57-0d7d4f0b2a11"
	artworkB  = "9a1c3e55-2b6d-49f0-8e2a-3f1d7c6b5e22"
	collector = "3f2a9c4e-1b7d-4e8a-9c5f-6d0e1a2b3c44"
)

// 1x1 transparent PNG.
var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

type mockArtworkRepo struct {
	mock.Mock
}

func (m *mockArtworkRepo) CreateArtwork(ctx context.Context, input Artwork) (Artwork, []auctions.BidRecord, error) {
	args := m.Called(ctx, input)
	changed, _ := args.Get(1).([]auctions.BidRecord)
	return args.Get(0).(Artwork), changed, args.Error(2)
}

func (m *mockArtworkRepo) GetArtwork(ctx context.Context, id string) (Artwork, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Artwork), args.Error(1)
}

func (m *mockArtworkRepo) ListGallery(ctx context.Context, owner, medium string) ([]Artwork, error) {
	args := m.Called(ctx, owner, medium)
	items, _ := args.Get(0).([]Artwork)
	return items, args.Error(1)
}

func (m *mockArtworkRepo) ListMedia(ctx context.Context, owner string) ([]string, error) {
	args := m.Called(ctx, owner)
	media, _ := args.Get(0).([]string)
	return media, args.Error(1)
}

func (m *mockArtworkRepo) SaveLayout(ctx context.Context, owner string, items []LayoutItem) ([]auctions.BidRecord, error) {
	args := m.Called(ctx, owner, items)
	changed, _ := args.Get(0).([]auctions.BidRecord)
	return changed, args.Error(1)
}

func (m *mockArtworkRepo) ListLiveAuctions(ctx context.Context, limit int) ([]Artwork, error) {
	args := m.Called(ctx, limit)
	items, _ := args.Get(0).([]Artwork)
	return items, args.Error(1)
}

func (m *mockArtworkRepo) ListByHighestBidder(ctx context.Context, bidderID string) ([]Artwork, error) {
	args := m.Called(ctx, bidderID)
	items, _ := args.Get(0).([]Artwork)
	return items, args.Error(1)
}

func (m *mockArtworkRepo) Stats(ctx context.Context, owner string) (StudioStats, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).(StudioStats), args.Error(1)
}

type recordingPublisher struct {
	mu   sync.Mutex
	recs []auctions.BidRecord
}

func (p *recordingPublisher) PublishBid(_ context.Context, rec auctions.BidRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
	return nil
}

func newTestService(t *testing.T, repo ArtworkRepository) (*artworkService, string) {
	t.Helper()
	return newPublishingService(t, repo, nil)
}

func newPublishingService(t *testing.T, repo ArtworkRepository, publisher auctions.BidPublisher) (*artworkService, string) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewLocalStore(root, "http://localhost:8080/storage")
	require.NoError(t, err)
	svc := NewArtworkService(repo, store, publisher, decimal.NewFromInt(10)).(*artworkService)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, root
}

func pngImage(t *testing.T) *storage.Image {
	t.Helper()
	img, err := storage.SniffImage(pngPixel)
	require.NoError(t, err)
	return &img
}

func TestArtworkService_Publish_StoresImageAndRow(t *testing.T) {
	repo := new(mockArtworkRepo)
	svc, root := newTestService(t, repo)

	repo.On("CreateArtwork", mock.Anything, mock.MatchedBy(func(a Artwork) bool {
		return a.OwnerID == ownerID && a.Title == "Dusk" && a.BidIncrement.Equal(decimal.NewFromInt(10)) &&
			strings.HasPrefix(a.ImageURL, "http://localhost:8080/storage/gallery/artworks/") && strings.HasSuffix(a.ImageURL, ".png")
	})).Return(Artwork{ID: artworkA, OwnerID: ownerID, Title: "Dusk"}, nil, nil)

	created, err := svc.Publish(context.Background(), PublishInput{OwnerID: ownerID, Title: "  Dusk ", Image: pngImage(t)})
	require.NoError(t, err)
	require.Equal(t, artworkA, created.ID)

	files, err := filepath.Glob(filepath.Join(root, storage.BucketGallery, "artworks", "*.png"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	content, err := os.ReadFile(files[0])
	require.NoError(t, err)
	require.Equal(t, pngPixel, content)
	repo.AssertExpectations(t)
}

func TestArtworkService_Publish_Validation(t *testing.T) {
	repo := new(mockArtworkRepo)
	svc, _ := newTestService(t, repo)
	past := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	zero := decimal.Zero

	tests := []struct {
		name  string
		input PublishInput
	}{
		{"missing title", PublishInput{OwnerID: ownerID, Title: " ", Image: pngImage(t)}},
		{"missing image", PublishInput{OwnerID: ownerID, Title: "Dusk"}},
		{"negative price", PublishInput{OwnerID: ownerID, Title: "Dusk", Price: decimal.NewFromInt(-1), Image: pngImage(t)}},
		{"zero increment", PublishInput{OwnerID: ownerID, Title: "Dusk", BidIncrement: &zero, Image: pngImage(t)}},
		{"ended auction", PublishInput{OwnerID: ownerID, Title: "Dusk", IsAuction: true, EndTime: &past, Image: pngImage(t)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Publish(context.Background(), tt.input)
			require.ErrorIs(t, err, ErrInvalidArtwork)
		})
	}
	repo.AssertNotCalled(t, "CreateArtwork", mock.Anything, mock.Anything)
}

func TestArtworkService_SaveLayout(t *testing.T) {
	repo := new(mockArtworkRepo)
	svc, _ := newTestService(t, repo)

	items := []LayoutItem{{ID: artworkA, DisplayOrder: 0, IsAuction: true}, {ID: artworkB, DisplayOrder: 1}}
	repo.On("SaveLayout", mock.Anything, ownerID, items).Return(nil, nil)
	repo.On("ListGallery", mock.Anything, ownerID, "").Return([]Artwork{{ID: artworkA}, {ID: artworkB}}, nil)

	gallery, err := svc.SaveLayout(context.Background(), ownerID, items)
	require.NoError(t, err)
	require.Len(t, gallery, 2)
	repo.AssertExpectations(t)
}

func TestArtworkService_SaveLayout_Rejections(t *testing.T) {
	repo := new(mockArtworkRepo)
	svc, _ := newTestService(t, repo)

	_, err := svc.SaveLayout(context.Background(), ownerID, []LayoutItem{{ID: artworkA}, {ID: artworkA, DisplayOrder: 1}})
	require.ErrorIs(t, err, ErrInvalidArtwork)

	_, err = svc.SaveLayout(context.Background(), ownerID, []LayoutItem{{ID: "not-a-uuid"}})
	require.ErrorIs(t, err, ErrArtworkNotFound)

	repo.On("SaveLayout", mock.Anything, ownerID, mock.Anything).Return(nil, ErrForbidden).Once()
	_, err = svc.SaveLayout(context.Background(), ownerID, []LayoutItem{{ID: artworkB}})
	require.ErrorIs(t, err, ErrForbidden)
	repo.AssertNotCalled(t, "ListGallery", mock.Anything, mock.Anything, mock.Anything)
}

func TestArtworkService_GetArtwork_InvalidID(t *testing.T) {
	repo := new(mockArtworkRepo)
	svc, _ := newTestService(t, repo)

	_, err := svc.GetArtwork(context.Background(), "42")
	require.ErrorIs(t, err, ErrArtworkNotFound)
	repo.AssertNotCalled(t, "GetArtwork", mock.Anything, mock.Anything)
}

func TestArtworkService_ListLiveAuctions(t *testing.T) {
	repo := new(mockArtworkRepo)
	svc, _ := newTestService(t, repo)

	repo.On("ListLiveAuctions", mock.Anything, liveAuctionLimit).Return(nil, errors.New("db down"))
	_, err := svc.ListLiveAuctions(context.Background())
	require.Error(t, err)
}

func TestArtwork_Validate(t *testing.T) {
	good := Artwork{ID: artworkA, OwnerID: ownerID, Price: decimal.NewFromInt(100), BidIncrement: decimal.NewFromInt(10)}
	require.NoError(t, good.Validate())

	negative := decimal.NewFromInt(-5)
	bad := good
	bad.CurrentBid = &negative
	require.ErrorIs(t, bad.Validate(), ErrMalformedRow)

	noOwner := good
	noOwner.OwnerID = ""
	require.ErrorIs(t, noOwner.Validate(), ErrMalformedRow)
}

func auctionRecord(end time.Time, updated time.Time) auctions.BidRecord {
	return auctions.BidRecord{
		ArtworkID:    artworkA,
		SellerID:     ownerID,
		CurrentBid:   decimal.NewFromInt(100),
		BidIncrement: decimal.NewFromInt(10),
		EndTime:      &end,
		UpdatedAt:    updated,
	}
}

func TestArtworkService_Publish_AnnouncesOpenedAuction(t *testing.T) {
	repo := new(mockArtworkRepo)
	publisher := &recordingPublisher{}
	svc, _ := newPublishingService(t, repo, publisher)

	opened := auctionRecord(time.Now().Add(time.Hour), time.Now())
	repo.On("CreateArtwork", mock.Anything, mock.Anything).
		Return(Artwork{ID: artworkA, OwnerID: ownerID, IsAuction: true}, []auctions.BidRecord{opened}, nil)

	_, err := svc.Publish(context.Background(), PublishInput{OwnerID: ownerID, Title: "Dusk", IsAuction: true, Image: pngImage(t)})
	require.NoError(t, err)
	require.Equal(t, []auctions.BidRecord{opened}, publisher.recs)
}

func TestArtworkService_SaveLayout_RepoErrorPublishesNothing(t *testing.T) {
	repo := new(mockArtworkRepo)
	publisher := &recordingPublisher{}
	svc, _ := newPublishingService(t, repo, publisher)

	repo.On("SaveLayout", mock.Anything, ownerID, mock.Anything).Return(nil, ErrForbidden)
	_, err := svc.SaveLayout(context.Background(), ownerID, []LayoutItem{{ID: artworkA}})
	require.ErrorIs(t, err, ErrForbidden)
	require.Empty(t, publisher.recs)
}

type snapshotStore struct {
	rec auctions.BidRecord
}

func (s snapshotStore) Snapshot(context.Context, string) (auctions.BidRecord, error) {
	return s.rec, nil
}

func (s snapshotStore) PlaceBid(context.Context, string, decimal.Decimal, decimal.Decimal) (auctions.BidRecord, error) {
	return s.rec, tracker.ErrBidSuperseded
}

func TestArtworkService_SaveLayout_ClosingAuctionExpiresOpenViews(t *testing.T) {
	broker := feed.NewMemoryBroker()
	defer broker.Close()

	repo := new(mockArtworkRepo)
	svc, _ := newPublishingService(t, repo, feed.NewBidPublisher(broker))

	started := time.Now()
	open := auctionRecord(started.Add(time.Hour), started)
	view, err := tracker.New(snapshotStore{rec: open}, tracker.BrokerFeed{Broker: broker}).Open(context.Background(), artworkA)
	require.NoError(t, err)
	defer view.Close()
	require.Equal(t, tracker.Running, view.Countdown().Status())
	require.Eventually(t, func() bool { return broker.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	closed := auctionRecord(started.Add(-time.Second), started.Add(time.Second))
	items := []LayoutItem{{ID: artworkA, DisplayOrder: 0}}
	repo.On("SaveLayout", mock.Anything, ownerID, items).Return([]auctions.BidRecord{closed}, nil)
	repo.On("ListGallery", mock.Anything, ownerID, "").Return([]Artwork{{ID: artworkA}}, nil)

	_, err = svc.SaveLayout(context.Background(), ownerID, items)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return view.Countdown().Status() == tracker.Expired
	}, 2*time.Second, 10*time.Millisecond)
	repo.AssertExpectations(t)
}

func TestArtworkService_Stats(t *testing.T) {
	repo := new(mockArtworkRepo)
	svc, _ := newTestService(t, repo)

	repo.On("Stats", mock.Anything, ownerID).Return(StudioStats{TotalArtworks: 4, ActiveAuctions: 1}, nil)
	stats, err := svc.Stats(context.Background(), ownerID)
	require.NoError(t, err)
	require.Equal(t, StudioStats{TotalArtworks: 4, ActiveAuctions: 1}, stats)

	stats, err = svc.Stats(context.Background(), "nobody")
	require.NoError(t, err)
	require.Zero(t, stats)
	repo.AssertNumberOfCalls(t, "Stats", 1)
}
