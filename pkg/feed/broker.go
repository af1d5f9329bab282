// Package feed fans auction changes out to subscribers, in process or across instances via Redis.
package feed

import (
	"context"
	"errors"
	"sync"

	"atelier/pkg/auctions"
)

const TableAuctions = "auctions"

type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
)

var (
	ErrFeedUnavailable = errors.New("change feed unavailable")
	ErrBrokerClosed    = errors.New("change feed closed")
)

// Event is one row change. New carries the full record after the change.
type Event struct {
	Kind  EventKind          `json:"event"`
	Table string             `json:"table"`
	New   auctions.BidRecord `json:"new"`
}

// Broker publishes events and opens filtered subscriptions. An empty artworkID subscribes
// to every auction. Delivery is at least once.
type Broker interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(ctx context.Context, artworkID string) (*Subscription, error)
}

const subscriptionBuffer = 16

// Subscription delivers events until Close. Once Close returns no further events are delivered
// and C is closed.
type Subscription struct {
	artworkID string
	mu        sync.Mutex
	ch        chan Event
	closed    bool
	onClose   func()
}

func newSubscription(artworkID string, onClose func()) *Subscription {
	return &Subscription{artworkID: artworkID, ch: make(chan Event, subscriptionBuffer), onClose: onClose}
}

func (s *Subscription) ArtworkID() string { return s.artworkID }

func (s *Subscription) C() <-chan Event { return s.ch }

func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	onClose := s.onClose
	s.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	return nil
}

// deliver never blocks. Events carry full state, so when the buffer is full the oldest
// pending event is replaced.
func (s *Subscription) deliver(e Event) bool {
	if s.artworkID != "" && e.New.ArtworkID != s.artworkID {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- e:
		return true
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- e:
		return true
	default:
		return false
	}
}

// MemoryBroker is a single-process Broker.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[*Subscription]struct{})}
}

func (b *MemoryBroker) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBrokerClosed
	}
	targets := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.deliver(e)
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, artworkID string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}

	var sub *Subscription
	sub = newSubscription(artworkID, func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
	})
	b.subs[sub] = struct{}{}
	return sub, nil
}

// SubscriberCount reports open subscriptions.
func (b *MemoryBroker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription and rejects further use.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for s := range subs {
		s.Close()
	}
	return nil
}

// BidPublisher adapts a Broker to the auctions service.
type BidPublisher struct {
	broker Broker
}

func NewBidPublisher(b Broker) *BidPublisher {
	return &BidPublisher{broker: b}
}

func (p *BidPublisher) PublishBid(ctx context.Context, rec auctions.BidRecord) error {
	return p.broker.Publish(ctx, Event{Kind: EventUpdate, Table: TableAuctions, New: rec})
}
