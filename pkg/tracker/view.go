package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"atelier/pkg/auctions"
)

const (
	defaultSubmitTimeout = 30 * time.Second
	defaultMinBackoff    = 500 * time.Millisecond
	defaultMaxBackoff    = 30 * time.Second
	errorBuffer          = 8
)

// State is what a bidding screen renders for one artwork.
type State struct {
	ArtworkID        string
	CurrentBid       decimal.Decimal
	Increment        decimal.Decimal
	SuggestedNextBid decimal.Decimal
	BidCount         int
	HighestBidderID  *string
	EndTime          *time.Time
	// Pending is true while a submission from this view is in flight.
	Pending bool
	// Live is false while the view runs on its last snapshot without a feed.
	Live bool
}

type Option func(*Tracker)

func WithSubmitTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.submitTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithBackoff bounds the delay between feed resubscription attempts.
func WithBackoff(lo, hi time.Duration) Option {
	return func(t *Tracker) {
		if lo > 0 {
			t.minBackoff = lo
		}
		if hi >= t.minBackoff {
			t.maxBackoff = hi
		}
	}
}

type Tracker struct {
	store         BidStore
	feed          Feed
	submitTimeout time.Duration
	now           func() time.Time
	minBackoff    time.Duration
	maxBackoff    time.Duration
}

func New(store BidStore, feed Feed, opts ...Option) *Tracker {
	t := &Tracker{
		store:         store,
		feed:          feed,
		submitTimeout: defaultSubmitTimeout,
		now:           time.Now,
		minBackoff:    defaultMinBackoff,
		maxBackoff:    defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// View tracks one artwork until Close or until the context passed to Open is done.
type View struct {
	t         *Tracker
	artworkID string

	mu        sync.Mutex
	rec       auctions.BidRecord
	pending   bool
	live      bool
	closed    bool
	countdown *Countdown
	updates   chan State
	errs      chan error

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Open fetches the current snapshot and starts listening for changes. A feed that cannot be
// reached is reported on Errors and retried in the background; the view still serves the
// snapshot meanwhile.
func (t *Tracker) Open(ctx context.Context, artworkID string) (*View, error) {
	rec, err := t.store.Snapshot(ctx, artworkID)
	if err != nil {
		return nil, fmt.Errorf("fetch auction %s: %w", artworkID, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	vctx, cancel := context.WithCancel(ctx)
	v := &View{
		t:         t,
		artworkID: artworkID,
		rec:       rec,
		countdown: NewCountdown(rec.EndTime, t.now),
		updates:   make(chan State, 1),
		errs:      make(chan error, errorBuffer),
		ctx:       vctx,
		cancel:    cancel,
	}

	stream, err := t.feed.Subscribe(vctx, artworkID)
	if err != nil {
		v.report(fmt.Errorf("%w: %v", ErrFeedDropped, err))
		stream = nil
	} else {
		v.live = true
	}
	v.emitLocked()

	v.wg.Add(1)
	go v.run(stream)
	return v, nil
}

func (v *View) ArtworkID() string { return v.artworkID }

// Updates delivers the latest State after every change. Intermediate states may be skipped
// when the reader falls behind. The channel is closed by Close.
func (v *View) Updates() <-chan State { return v.updates }

// Errors reports non-fatal feed and refresh failures. The channel is closed by Close.
func (v *View) Errors() <-chan error { return v.errs }

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

func (v *View) Countdown() *Countdown {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.countdown
}

// Close releases the subscription and waits for the background loop. After it returns the
// view no longer changes. Safe to call more than once.
func (v *View) Close() error {
	v.closeOnce.Do(func() {
		v.mu.Lock()
		v.closed = true
		v.mu.Unlock()

		v.cancel()
		v.wg.Wait()

		v.mu.Lock()
		close(v.updates)
		close(v.errs)
		v.mu.Unlock()
	})
	return nil
}

// Refresh replaces the held state with the store's snapshot when it is newer.
func (v *View) Refresh(ctx context.Context) error {
	rec, err := v.t.store.Snapshot(ctx, v.artworkID)
	if err != nil {
		return fmt.Errorf("refresh auction %s: %w", v.artworkID, err)
	}
	v.apply(rec, true)
	return nil
}

// Submit validates amount against the held state and, if it passes, asks the store to move
// the current bid from the held amount to amount.
func (v *View) Submit(ctx context.Context, amount decimal.Decimal) (State, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return State{}, ErrViewClosed
	}
	if v.countdown.Status() == Expired {
		s := v.stateLocked()
		v.mu.Unlock()
		return s, ErrAuctionExpired
	}
	if !amount.IsPositive() {
		s := v.stateLocked()
		v.mu.Unlock()
		return s, ErrInvalidAmount
	}
	if amount.LessThan(v.rec.MinimumNextBid()) {
		s := v.stateLocked()
		v.mu.Unlock()
		return s, fmt.Errorf("%w: minimum is %s", ErrBidTooLow, v.rec.MinimumNextBid().StringFixed(2))
	}
	if v.pending {
		s := v.stateLocked()
		v.mu.Unlock()
		return s, ErrSubmissionInFlight
	}
	expected := v.rec.CurrentBid
	v.pending = true
	v.emitLocked()
	v.mu.Unlock()

	sctx, cancel := context.WithTimeout(ctx, v.t.submitTimeout)
	rec, err := v.t.store.PlaceBid(sctx, v.artworkID, expected, amount)
	timedOut := errors.Is(sctx.Err(), context.DeadlineExceeded)
	cancel()

	v.mu.Lock()
	v.pending = false
	if v.closed {
		v.mu.Unlock()
		return State{}, ErrViewClosed
	}
	v.emitLocked()
	v.mu.Unlock()

	switch {
	case err == nil:
		v.apply(rec, true)
		return v.State(), nil
	case timedOut && ctx.Err() == nil:
		// The bid may still have landed.
		if rerr := v.Refresh(ctx); rerr != nil {
			v.report(rerr)
		}
		return v.State(), fmt.Errorf("%w after %s", ErrSubmitTimeout, v.t.submitTimeout)
	case errors.Is(err, ErrBidSuperseded), errors.Is(err, ErrBidTooLow), errors.Is(err, ErrAuctionExpired):
		if rec.ArtworkID != "" {
			v.apply(rec, true)
		} else if rerr := v.Refresh(ctx); rerr != nil {
			v.report(rerr)
		}
		return v.State(), err
	default:
		return v.State(), err
	}
}

func (v *View) run(stream Stream) {
	defer v.wg.Done()
	backoff := v.t.minBackoff

	for {
		if stream == nil {
			select {
			case <-v.ctx.Done():
				return
			case <-time.After(backoff):
			}

			s, err := v.t.feed.Subscribe(v.ctx, v.artworkID)
			if err != nil {
				if v.ctx.Err() != nil {
					return
				}
				v.report(fmt.Errorf("%w: %v", ErrFeedDropped, err))
				backoff = min(backoff*2, v.t.maxBackoff)
				continue
			}
			stream = s
			backoff = v.t.minBackoff
			v.setLive(true)

			// Changes made while disconnected never reach the new stream.
			if err := v.Refresh(v.ctx); err != nil && v.ctx.Err() == nil {
				v.report(err)
			}
		}

		dropped := v.consume(stream)
		_ = stream.Close()
		stream = nil
		if !dropped {
			return
		}
		v.setLive(false)
		v.report(ErrFeedDropped)
	}
}

// consume applies events until the stream ends (true) or the view is done (false).
func (v *View) consume(s Stream) bool {
	for {
		select {
		case <-v.ctx.Done():
			return false
		case e, ok := <-s.C():
			if !ok {
				return v.ctx.Err() == nil
			}
			v.apply(e.New, false)
		}
	}
}

// apply replaces the held record when rec is for this artwork and is not older than it. Feed
// events must carry a higher amount, or the same amount with a later UpdatedAt (an end time or
// increment change), so a duplicate or reordered event is a no-op. Records read from the store
// are authoritative and replace the held one at any amount that is not lower.
func (v *View) apply(rec auctions.BidRecord, fromStore bool) bool {
	if rec.ArtworkID != v.artworkID || rec.Validate() != nil {
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || rec.CurrentBid.LessThan(v.rec.CurrentBid) {
		return false
	}
	if rec.CurrentBid.Equal(v.rec.CurrentBid) {
		if !fromStore && !rec.UpdatedAt.After(v.rec.UpdatedAt) {
			return false
		}
		if sameRecord(rec, v.rec) {
			return false
		}
	}
	if !sameTime(rec.EndTime, v.rec.EndTime) {
		v.countdown = NewCountdown(rec.EndTime, v.t.now)
	}
	v.rec = rec
	v.emitLocked()
	return true
}

func (v *View) setLive(live bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.live == live {
		return
	}
	v.live = live
	v.emitLocked()
}

func (v *View) report(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	select {
	case v.errs <- err:
	default:
	}
}

func (v *View) stateLocked() State {
	return State{
		ArtworkID:        v.artworkID,
		CurrentBid:       v.rec.CurrentBid,
		Increment:        v.rec.BidIncrement,
		SuggestedNextBid: v.rec.MinimumNextBid(),
		BidCount:         v.rec.BidCount,
		HighestBidderID:  v.rec.HighestBidderID,
		EndTime:          v.rec.EndTime,
		Pending:          v.pending,
		Live:             v.live,
	}
}

// emitLocked publishes the current state, replacing any unread one. Caller holds v.mu.
func (v *View) emitLocked() {
	if v.closed {
		return
	}
	s := v.stateLocked()
	select {
	case v.updates <- s:
		return
	default:
	}
	select {
	case <-v.updates:
	default:
	}
	select {
	case v.updates <- s:
	default:
	}
}

func sameRecord(a, b auctions.BidRecord) bool {
	return a.CurrentBid.Equal(b.CurrentBid) &&
		a.BidIncrement.Equal(b.BidIncrement) &&
		a.BidCount == b.BidCount &&
		a.SellerID == b.SellerID &&
		sameBidder(a.HighestBidderID, b.HighestBidderID) &&
		sameTime(a.EndTime, b.EndTime)
}

func sameBidder(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
