package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type CountdownStatus int

const (
	NoExpiry CountdownStatus = iota
	Running
	Expired
)

func (s CountdownStatus) String() string {
	switch s {
	case NoExpiry:
		return "no expiry"
	case Running:
		return "running"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("CountdownStatus(%d)", int(s))
	}
}

type Tick struct {
	Remaining time.Duration
	Status    CountdownStatus
	Display   string
}

// Countdown derives remaining time from an end timestamp. Remaining never increases, even
// if the clock steps backwards, and once expired it stays expired. A nil end never expires.
type Countdown struct {
	end *time.Time
	now func() time.Time

	mu       sync.Mutex
	lowest   time.Duration
	observed bool
}

func NewCountdown(end *time.Time, now func() time.Time) *Countdown {
	if now == nil {
		now = time.Now
	}
	var e *time.Time
	if end != nil {
		t := *end
		e = &t
	}
	return &Countdown{end: e, now: now}
}

func (c *Countdown) Remaining() time.Duration {
	if c.end == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.end.Sub(c.now())
	if r < 0 {
		r = 0
	}
	if c.observed && r > c.lowest {
		r = c.lowest
	}
	c.lowest = r
	c.observed = true
	return r
}

func (c *Countdown) Status() CountdownStatus {
	if c.end == nil {
		return NoExpiry
	}
	if c.Remaining() == 0 {
		return Expired
	}
	return Running
}

func (c *Countdown) tick() Tick {
	if c.end == nil {
		return Tick{Status: NoExpiry, Display: "no expiry"}
	}
	r := c.Remaining()
	status := Running
	if r == 0 {
		status = Expired
	}
	return Tick{Remaining: r, Status: status, Display: FormatRemaining(r)}
}

// Display renders the remaining time as "HHh : MMm : SSs".
func (c *Countdown) Display() string {
	return c.tick().Display
}

func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	return fmt.Sprintf("%02dh : %02dm : %02ds", h, m, s)
}

// Start emits a tick immediately and then every interval. The channel closes after the
// first expired tick, after a single no-expiry tick, or when ctx is done. Each call starts
// an independent ticker.
func (c *Countdown) Start(ctx context.Context, interval time.Duration) <-chan Tick {
	if interval <= 0 {
		interval = time.Second
	}
	out := make(chan Tick, 1)

	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			t := c.tick()
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
			if t.Status != Running {
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
