package feed

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"atelier/pkg/logger"
	"atelier/pkg/metrics"
)

const allRoom = ""

// Client is one websocket connection following a room.
type Client struct {
	ArtworkID string
	Conn      *websocket.Conn
	Send      chan Event    // events queued for this connection
	Done      chan struct{} // closed when the client leaves
	once      sync.Once
}

type room struct {
	sub     *Subscription
	clients map[*Client]struct{}
}

// Hub holds one broker subscription per watched artwork and fans it out to websocket clients.
// A room's subscription is released when its last client leaves.
type Hub struct {
	broker Broker
	mu     sync.Mutex
	rooms  map[string]*room
}

func NewHub(broker Broker) *Hub {
	return &Hub{broker: broker, rooms: make(map[string]*room)}
}

// Join registers conn under artworkID ("" for every auction), subscribing on first use.
// The broker is called without holding the hub lock; when two joins race to open the same
// room the loser's subscription is closed.
func (h *Hub) Join(ctx context.Context, artworkID string, conn *websocket.Conn) (*Client, error) {
	client := &Client{
		ArtworkID: artworkID,
		Conn:      conn,
		Send:      make(chan Event, 32),
		Done:      make(chan struct{}),
	}

	h.mu.Lock()
	if r, ok := h.rooms[artworkID]; ok {
		h.addLocked(r, client)
		h.mu.Unlock()
		return client, nil
	}
	h.mu.Unlock()

	sub, err := h.broker.Subscribe(ctx, artworkID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	r, ok := h.rooms[artworkID]
	if !ok {
		r = &room{sub: sub, clients: make(map[*Client]struct{})}
		h.rooms[artworkID] = r
		go h.pump(artworkID, r)
	}
	h.addLocked(r, client)
	h.mu.Unlock()

	if ok {
		sub.Close()
	}
	return client, nil
}

func (h *Hub) addLocked(r *room, c *Client) {
	r.clients[c] = struct{}{}
	metrics.FeedSubscribers.Inc()
}

// Leave unregisters the client. Safe to call more than once.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	var toClose *Subscription
	if r, ok := h.rooms[c.ArtworkID]; ok {
		if _, member := r.clients[c]; member {
			delete(r.clients, c)
			metrics.FeedSubscribers.Dec()
		}
		if len(r.clients) == 0 {
			delete(h.rooms, c.ArtworkID)
			toClose = r.sub
		}
	}
	h.mu.Unlock()

	c.once.Do(func() { close(c.Done) })
	if toClose != nil {
		toClose.Close()
	}
}

// Rooms reports the number of artworks currently subscribed.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

func (h *Hub) pump(artworkID string, r *room) {
	for e := range r.sub.C() {
		h.broadcast(r, e)
	}

	// Subscription ended. If the room is still registered the broker dropped it, so
	// disconnect its clients; they resubscribe on reconnect.
	h.mu.Lock()
	var orphans []*Client
	if h.rooms[artworkID] == r {
		delete(h.rooms, artworkID)
		for c := range r.clients {
			orphans = append(orphans, c)
			metrics.FeedSubscribers.Dec()
		}
		r.clients = map[*Client]struct{}{}
	}
	h.mu.Unlock()

	for _, c := range orphans {
		c.once.Do(func() { close(c.Done) })
	}
	if len(orphans) > 0 {
		logger.Warn("feed subscription dropped", map[string]any{"artwork_id": artworkID, "clients": len(orphans)})
	}
}

func (h *Hub) broadcast(r *room, e Event) {
	h.mu.Lock()
	targets := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		select {
		case c.Send <- e:
		case <-c.Done:
		default:
			metrics.FeedDrops.WithLabelValues("slow_client").Inc()
			logger.Warn("dropping slow feed client", map[string]any{"artwork_id": c.ArtworkID})
			h.Leave(c)
		}
	}
}
