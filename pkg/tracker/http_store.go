package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"atelier/pkg/auctions"
)

// HTTPBidStore talks to the auction routes of an Atelier server.
type HTTPBidStore struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPBidStore(baseURL, token string) *HTTPBidStore {
	return &HTTPBidStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type placeBidRequest struct {
	Amount             decimal.Decimal `json:"amount"`
	ExpectedCurrentBid decimal.Decimal `json:"expected_current_bid"`
}

func (s *HTTPBidStore) Snapshot(ctx context.Context, artworkID string) (auctions.BidRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.auctionURL(artworkID), nil)
	if err != nil {
		return auctions.BidRecord{}, err
	}
	return s.do(req)
}

func (s *HTTPBidStore) PlaceBid(ctx context.Context, artworkID string, expected, amount decimal.Decimal) (auctions.BidRecord, error) {
	body, err := json.Marshal(placeBidRequest{Amount: amount, ExpectedCurrentBid: expected})
	if err != nil {
		return auctions.BidRecord{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.auctionURL(artworkID)+"/bids", bytes.NewReader(body))
	if err != nil {
		return auctions.BidRecord{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func (s *HTTPBidStore) auctionURL(artworkID string) string {
	return s.BaseURL + "/auctions/" + url.PathEscape(artworkID)
}

func (s *HTTPBidStore) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

func (s *HTTPBidStore) do(req *http.Request) (auctions.BidRecord, error) {
	req.Header.Set("Accept", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := s.client().Do(req)
	if err != nil {
		return auctions.BidRecord{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return auctions.BidRecord{}, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return auctions.BidRecord{}, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	var rec auctions.BidRecord
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &rec); err != nil {
			return auctions.BidRecord{}, fmt.Errorf("decode auction: %w", err)
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := rec.Validate(); err != nil {
			return auctions.BidRecord{}, err
		}
		return rec, nil
	}

	if sentinel := statusError(resp.StatusCode); sentinel != nil {
		return rec, fmt.Errorf("%w: %s", sentinel, env.Message)
	}
	return auctions.BidRecord{}, fmt.Errorf("auction request failed with status %d: %s", resp.StatusCode, env.Message)
}

func statusError(code int) error {
	switch code {
	case http.StatusConflict:
		return ErrBidSuperseded
	case http.StatusUnprocessableEntity:
		return ErrBidTooLow
	case http.StatusGone:
		return ErrAuctionExpired
	case http.StatusNotFound:
		return ErrAuctionNotFound
	case http.StatusBadRequest:
		return ErrInvalidAmount
	default:
		return nil
	}
}
