package feed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisBroker(t *testing.T) (*RedisBroker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisBroker(rdb), mr
}

func TestRedisBroker_PublishSubscribe(t *testing.T) {
	b, _ := setupRedisBroker(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "art-a")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(ctx, update("art-a", 110)))

	select {
	case e := <-sub.C():
		require.Equal(t, "art-a", e.New.ArtworkID)
		require.Equal(t, "110", e.New.CurrentBid.String())
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestRedisBroker_PatternSubscription(t *testing.T) {
	b, _ := setupRedisBroker(t)
	ctx := context.Background()

	all, err := b.Subscribe(ctx, "")
	require.NoError(t, err)
	defer all.Close()

	require.NoError(t, b.Publish(ctx, update("art-a", 110)))
	require.NoError(t, b.Publish(ctx, update("art-b", 220)))

	var seen []string
	assert.Eventually(t, func() bool {
		for {
			select {
			case e := <-all.C():
				seen = append(seen, e.New.ArtworkID)
			default:
				return len(seen) == 2
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
	require.ElementsMatch(t, []string{"art-a", "art-b"}, seen)
}

func TestRedisBroker_UnsubscribeIsolation(t *testing.T) {
	b, mr := setupRedisBroker(t)
	ctx := context.Background()

	first, err := b.Subscribe(ctx, "art-a")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := b.Subscribe(ctx, "art-b")
	require.NoError(t, err)
	defer second.Close()

	assert.Eventually(t, func() bool {
		return len(mr.PubSubChannels("")) == 1
	}, time.Second, 10*time.Millisecond)

	mr.Publish(ChannelFor("art-a"), `{"event":"UPDATE","table":"auctions","new":{"artwork_id":"art-a","current_bid":"500","bid_increment":"10"}}`)
	require.NoError(t, b.Publish(ctx, update("art-b", 130)))

	e := <-second.C()
	require.Equal(t, "art-b", e.New.ArtworkID)
	assert.Never(t, func() bool { return len(second.C()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestRedisBroker_DropsMalformedPayload(t *testing.T) {
	b, mr := setupRedisBroker(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "art-a")
	require.NoError(t, err)
	defer sub.Close()

	mr.Publish(ChannelFor("art-a"), "not json")
	mr.Publish(ChannelFor("art-a"), `{"event":"UPDATE","table":"auctions","new":{"artwork_id":"art-a","current_bid":"-5","bid_increment":"10"}}`)
	require.NoError(t, b.Publish(ctx, update("art-a", 140)))

	e := <-sub.C()
	require.Equal(t, "140", e.New.CurrentBid.String())
}

func TestRedisBroker_NilClient(t *testing.T) {
	b := NewRedisBroker(nil)
	_, err := b.Subscribe(context.Background(), "art-a")
	require.ErrorIs(t, err, ErrFeedUnavailable)
	require.ErrorIs(t, b.Publish(context.Background(), update("art-a", 1)), ErrFeedUnavailable)
}
