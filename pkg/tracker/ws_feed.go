package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"atelier/pkg/feed"
)

const (
	wsPongWait   = 60 * time.Second
	wsWriteWait  = 10 * time.Second
	streamBuffer = 16
)

// WSFeed subscribes over the server's /ws/auctions endpoint.
type WSFeed struct {
	BaseURL string
	Token   string
	Dialer  *websocket.Dialer
}

func NewWSFeed(baseURL, token string) *WSFeed {
	return &WSFeed{BaseURL: strings.TrimRight(baseURL, "/"), Token: token, Dialer: websocket.DefaultDialer}
}

// endpoint turns http(s)://host into ws(s)://host/ws/auctions/<id>.
func (f *WSFeed) endpoint(artworkID string) (string, error) {
	u, err := url.Parse(f.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/auctions"
	if artworkID != "" {
		u.Path += "/" + url.PathEscape(artworkID)
	}
	return u.String(), nil
}

func (f *WSFeed) Subscribe(ctx context.Context, artworkID string) (Stream, error) {
	endpoint, err := f.endpoint(artworkID)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if f.Token != "" {
		header.Set("Authorization", "Bearer "+f.Token)
	}
	dialer := f.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	s := &wsStream{conn: conn, ch: make(chan feed.Event, streamBuffer), done: make(chan struct{})}
	go s.readLoop()
	return s, nil
}

type wsStream struct {
	conn *websocket.Conn
	ch   chan feed.Event
	done chan struct{}
	once sync.Once
}

func (s *wsStream) C() <-chan feed.Event { return s.ch }

func (s *wsStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
		err = s.conn.Close()
	})
	return err
}

func (s *wsStream) readLoop() {
	defer close(s.ch)

	s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPingHandler(func(data string) error {
		s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(wsWriteWait))
	})

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var e feed.Event
		if err := json.Unmarshal(msg, &e); err != nil || e.New.Validate() != nil {
			continue
		}
		select {
		case s.ch <- e:
		case <-s.done:
			return
		}
	}
}
