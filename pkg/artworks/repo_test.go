package artworks_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"atelier/pkg/artworks"
	"atelier/pkg/auctions"
	"atelier/pkg/testhelpers"
)

func intPtr(v int) *int { return &v }

func TestPostgresArtworkRepository_GalleryOrdering(t *testing.T) {
	pool := testhelpers.SetupTestPool(t)
	ctx := context.Background()
	repo := artworks.NewPostgresArtworkRepository(pool)

	owner := testhelpers.CreateTestUser(t, pool, "artist")
	first := testhelpers.CreateTestArtwork(t, pool, owner, nil)
	second := testhelpers.CreateTestArtwork(t, pool, owner, nil)

	gallery, err := repo.ListGallery(ctx, owner, "")
	require.NoError(t, err)
	require.Len(t, gallery, 2)
	require.Equal(t, second, gallery[0].ID, "without a layout the newest artwork comes first")

	changed, err := repo.SaveLayout(ctx, owner, []artworks.LayoutItem{
		{ID: first, DisplayOrder: 0},
		{ID: second, DisplayOrder: 1},
	})
	require.NoError(t, err)
	require.Empty(t, changed, "reordering alone touches no auction")
	gallery, err = repo.ListGallery(ctx, owner, "")
	require.NoError(t, err)
	require.Equal(t, first, gallery[0].ID)
	require.Equal(t, 0, *gallery[0].DisplayOrder)

	media, err := repo.ListMedia(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, []string{"oil"}, media)
}

func TestPostgresArtworkRepository_SaveLayoutOwnership(t *testing.T) {
	pool := testhelpers.SetupTestPool(t)
	ctx := context.Background()
	repo := artworks.NewPostgresArtworkRepository(pool)

	owner := testhelpers.CreateTestUser(t, pool, "artist")
	other := testhelpers.CreateTestUser(t, pool, "artist")
	mine := testhelpers.CreateTestArtwork(t, pool, owner, intPtr(0))
	theirs := testhelpers.CreateTestArtwork(t, pool, other, intPtr(0))

	_, err := repo.SaveLayout(ctx, owner, []artworks.LayoutItem{{ID: mine, DisplayOrder: 5}, {ID: theirs, DisplayOrder: 6}})
	require.ErrorIs(t, err, artworks.ErrForbidden)

	a, err := repo.GetArtwork(ctx, mine)
	require.NoError(t, err)
	require.Equal(t, 0, *a.DisplayOrder, "a rejected layout leaves every row untouched")

	_, err = repo.SaveLayout(ctx, owner, []artworks.LayoutItem{{ID: "00000000-0000-0000-0000-000000000000"}})
	require.ErrorIs(t, err, artworks.ErrArtworkNotFound)
}

func TestPostgresArtworkRepository_AuctionLifecycle(t *testing.T) {
	pool := testhelpers.SetupTestPool(t)
	ctx := context.Background()
	repo := artworks.NewPostgresArtworkRepository(pool)
	bids := auctions.NewPostgresAuctionRepository(pool)

	owner := testhelpers.CreateTestUser(t, pool, "artist")
	created, changed, err := repo.CreateArtwork(ctx, artworks.Artwork{
		OwnerID:      owner,
		Title:        "Harbour",
		ImageURL:     "http://localhost/storage/gallery/harbour.png",
		Price:        decimal.NewFromInt(300),
		BidIncrement: decimal.NewFromInt(25),
	})
	require.NoError(t, err)
	require.Nil(t, created.CurrentBid)
	require.Empty(t, changed)

	changed, err = repo.SaveLayout(ctx, owner, []artworks.LayoutItem{{ID: created.ID, IsAuction: true}})
	require.NoError(t, err)
	require.Len(t, changed, 1)
	require.Equal(t, created.ID, changed[0].ArtworkID)

	rec, err := bids.GetAuction(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(300).Equal(rec.CurrentBid))
	require.True(t, decimal.NewFromInt(325).Equal(rec.MinimumNextBid()))

	live, err := repo.ListLiveAuctions(ctx, 100)
	require.NoError(t, err)
	var found bool
	for _, a := range live {
		found = found || a.ID == created.ID
	}
	require.True(t, found)

	stats, err := repo.Stats(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, artworks.StudioStats{TotalArtworks: 1, ActiveAuctions: 1}, stats)

	changed, err = repo.SaveLayout(ctx, owner, []artworks.LayoutItem{{ID: created.ID}})
	require.NoError(t, err)
	require.Len(t, changed, 1)
	require.NotNil(t, changed[0].EndTime)
	require.False(t, changed[0].EndTime.After(time.Now()), "closing ends the auction now")
	bidder := testhelpers.CreateTestUser(t, pool, "collector")
	_, err = bids.PlaceBid(ctx, auctions.BidAttempt{ArtworkID: created.ID, BidderID: bidder, Amount: decimal.NewFromInt(400), ExpectedCurrentBid: decimal.NewFromInt(300)})
	require.ErrorIs(t, err, auctions.ErrAuctionClosed)
}
