package feed

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/pkg/auctions"
)

func update(artworkID string, bid int64) Event {
	return Event{
		Kind:  EventUpdate,
		Table: TableAuctions,
		New: auctions.BidRecord{
			ArtworkID:    artworkID,
			CurrentBid:   decimal.NewFromInt(bid),
			BidIncrement: decimal.NewFromInt(10),
			BidCount:     1,
		},
	}
}

func TestMemoryBroker_FiltersByArtwork(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	a, err := b.Subscribe(ctx, "art-a")
	require.NoError(t, err)
	all, err := b.Subscribe(ctx, "")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, update("art-b", 110)))
	require.NoError(t, b.Publish(ctx, update("art-a", 120)))

	got := <-a.C()
	require.Equal(t, "art-a", got.New.ArtworkID)
	assert.Len(t, a.C(), 0)

	first := <-all.C()
	second := <-all.C()
	require.Equal(t, "art-b", first.New.ArtworkID)
	require.Equal(t, "art-a", second.New.ArtworkID)
}

func TestMemoryBroker_CloseStopsDelivery(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	old, err := b.Subscribe(ctx, "art-a")
	require.NoError(t, err)
	require.NoError(t, old.Close())
	require.NoError(t, old.Close())
	require.Equal(t, 0, b.SubscriberCount())

	next, err := b.Subscribe(ctx, "art-b")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, update("art-a", 110)))
	require.NoError(t, b.Publish(ctx, update("art-b", 130)))

	_, open := <-old.C()
	require.False(t, open)

	got := <-next.C()
	require.Equal(t, "art-b", got.New.ArtworkID)
}

func TestSubscription_FullBufferKeepsLatest(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()
	sub, err := b.Subscribe(ctx, "art-a")
	require.NoError(t, err)

	for i := 0; i < subscriptionBuffer+5; i++ {
		require.NoError(t, b.Publish(ctx, update("art-a", int64(100+i*10))))
	}
	require.Len(t, sub.C(), subscriptionBuffer)

	var last Event
	for len(sub.C()) > 0 {
		last = <-sub.C()
	}
	require.True(t, decimal.NewFromInt(int64(100+(subscriptionBuffer+4)*10)).Equal(last.New.CurrentBid))
}

func TestMemoryBroker_Close(t *testing.T) {
	b := NewMemoryBroker()
	sub, err := b.Subscribe(context.Background(), "art-a")
	require.NoError(t, err)

	require.NoError(t, b.Close())

	select {
	case _, open := <-sub.C():
		require.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
	_, err = b.Subscribe(context.Background(), "art-a")
	require.ErrorIs(t, err, ErrBrokerClosed)
	require.ErrorIs(t, b.Publish(context.Background(), update("art-a", 1)), ErrBrokerClosed)
}

func TestBidPublisher(t *testing.T) {
	b := NewMemoryBroker()
	sub, err := b.Subscribe(context.Background(), "art-a")
	require.NoError(t, err)

	rec := auctions.BidRecord{ArtworkID: "art-a", CurrentBid: decimal.NewFromInt(150), BidIncrement: decimal.NewFromInt(10)}
	require.NoError(t, NewBidPublisher(b).PublishBid(context.Background(), rec))

	e := <-sub.C()
	require.Equal(t, EventUpdate, e.Kind)
	require.Equal(t, TableAuctions, e.Table)
	require.True(t, rec.CurrentBid.Equal(e.New.CurrentBid))
}
