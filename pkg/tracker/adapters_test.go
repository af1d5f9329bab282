package tracker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"atelier/pkg/feed"
	"atelier/pkg/response"
)

func setupAuctionServer(t *testing.T, place func(c *gin.Context)) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/auctions/:artwork_id", func(c *gin.Context) {
		if c.Param("artwork_id") != artworkID {
			response.SendAPIResponse(c, http.StatusNotFound, false, "auction not found", nil)
			return
		}
		response.SendAPIResponse(c, http.StatusOK, true, "auction", record(artworkID, 100, 2))
	})
	r.POST("/auctions/:artwork_id/bids", place)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPBidStore_Snapshot(t *testing.T) {
	srv := setupAuctionServer(t, func(c *gin.Context) {})
	store := NewHTTPBidStore(srv.URL+"/", "")

	rec, err := store.Snapshot(context.Background(), artworkID)
	require.NoError(t, err)
	require.Equal(t, artworkID, rec.ArtworkID)
	require.True(t, d(100).Equal(rec.CurrentBid))
	require.Equal(t, 2, rec.BidCount)

	_, err = store.Snapshot(context.Background(), "missing")
	require.ErrorIs(t, err, ErrAuctionNotFound)
}

func TestHTTPBidStore_PlaceBidAccepted(t *testing.T) {
	srv := setupAuctionServer(t, func(c *gin.Context) {
		require.Equal(t, "Bearer tok", c.GetHeader("Authorization"))
		var body placeBidRequest
		require.NoError(t, c.ShouldBindJSON(&body))
		require.True(t, d(100).Equal(body.ExpectedCurrentBid))
		require.True(t, d(110).Equal(body.Amount))

		response.SendAPIResponse(c, http.StatusCreated, true, "bid accepted", record(artworkID, 110, 3))
	})
	store := NewHTTPBidStore(srv.URL, "tok")

	rec, err := store.PlaceBid(context.Background(), artworkID, d(100), d(110))
	require.NoError(t, err)
	require.True(t, d(110).Equal(rec.CurrentBid))
}

func TestHTTPBidStore_RejectionMapping(t *testing.T) {
	tests := []struct {
		status  int
		want    error
		current bool
	}{
		{http.StatusConflict, ErrBidSuperseded, true},
		{http.StatusUnprocessableEntity, ErrBidTooLow, true},
		{http.StatusGone, ErrAuctionExpired, false},
		{http.StatusBadRequest, ErrInvalidAmount, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := setupAuctionServer(t, func(c *gin.Context) {
				var data any
				if tt.current {
					data = record(artworkID, 130, 4)
				}
				response.SendAPIResponse(c, tt.status, false, "rejected", data)
			})
			rec, err := NewHTTPBidStore(srv.URL, "tok").PlaceBid(context.Background(), artworkID, d(100), d(110))
			require.ErrorIs(t, err, tt.want)
			if tt.current {
				require.True(t, d(130).Equal(rec.CurrentBid))
			} else {
				require.Empty(t, rec.ArtworkID)
			}
		})
	}
}

func TestHTTPBidStore_ServerError(t *testing.T) {
	srv := setupAuctionServer(t, func(c *gin.Context) {
		response.SendAPIResponse(c, http.StatusInternalServerError, false, "internal error", nil)
	})
	_, err := NewHTTPBidStore(srv.URL, "").PlaceBid(context.Background(), artworkID, d(100), d(110))
	require.Error(t, err)
	require.False(t, IsRetryable(err))
}

func TestWSFeed_StreamsHubEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	broker := feed.NewMemoryBroker()
	hub := feed.NewHub(broker)
	r := gin.New()
	feed.NewHandler(hub, []string{"*"}).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	const id = "5b0f6d1e-8f7a-4c38-9a57-0d7d4f0b2a11"
	stream, err := NewWSFeed(srv.URL, "").Subscribe(context.Background(), id)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Rooms() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, broker.Publish(context.Background(), feed.Event{Kind: feed.EventUpdate, Table: feed.TableAuctions, New: record(id, 120, 2)}))

	select {
	case e := <-stream.C():
		require.Equal(t, id, e.New.ArtworkID)
		require.True(t, d(120).Equal(e.New.CurrentBid))
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}

	require.NoError(t, stream.Close())
	require.Eventually(t, func() bool { return hub.Rooms() == 0 && broker.SubscriberCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWSFeed_Endpoint(t *testing.T) {
	f := NewWSFeed("https://atelier.example/api/", "")
	got, err := f.endpoint("abc")
	require.NoError(t, err)
	require.Equal(t, "wss://atelier.example/api/ws/auctions/abc", got)

	got, err = f.endpoint("")
	require.NoError(t, err)
	require.Equal(t, "wss://atelier.example/api/ws/auctions", got)
}
