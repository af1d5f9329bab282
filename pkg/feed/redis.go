package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"atelier/pkg/logger"
)

const channelPrefix = "auctions:artwork:"

// ChannelFor is the Redis channel carrying changes for one artwork.
func ChannelFor(artworkID string) string {
	return channelPrefix + artworkID
}

// NewRedisClient parses a redis:// URL and verifies the server is reachable.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		// Accept bare host:port as well.
		if !strings.Contains(redisURL, "://") {
			opts = &redis.Options{Addr: redisURL}
		} else {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// RedisBroker publishes events on per-artwork channels so every server instance sees them.
type RedisBroker struct {
	rdb *redis.Client
}

func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb}
}

func (b *RedisBroker) Publish(ctx context.Context, e Event) error {
	if b.rdb == nil {
		return ErrFeedUnavailable
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return b.rdb.Publish(ctx, ChannelFor(e.New.ArtworkID), payload).Err()
}

// Subscribe returns once Redis has confirmed the subscription.
func (b *RedisBroker) Subscribe(ctx context.Context, artworkID string) (*Subscription, error) {
	if b.rdb == nil {
		return nil, ErrFeedUnavailable
	}

	var ps *redis.PubSub
	if artworkID == "" {
		ps = b.rdb.PSubscribe(ctx, channelPrefix+"*")
	} else {
		ps = b.rdb.Subscribe(ctx, ChannelFor(artworkID))
	}
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}

	done := make(chan struct{})
	sub := newSubscription(artworkID, func() {
		close(done)
		_ = ps.Close()
	})

	go func() {
		ch := ps.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					// Connection gone; closing tells the consumer to resubscribe.
					sub.Close()
					return
				}
				b.dispatch(sub, msg)
			}
		}
	}()

	return sub, nil
}

func (b *RedisBroker) dispatch(sub *Subscription, msg *redis.Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in feed subscriber", map[string]any{"panic": fmt.Sprint(r), "stack": string(debug.Stack())})
		}
	}()

	var e Event
	if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
		logger.Warn("dropping malformed feed event", map[string]any{"channel": msg.Channel, "error": err.Error()})
		return
	}
	if err := e.New.Validate(); err != nil {
		logger.Warn("dropping invalid feed event", map[string]any{"channel": msg.Channel, "error": err.Error()})
		return
	}
	sub.deliver(e)
}
