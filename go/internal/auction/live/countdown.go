package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Countdown derives a human-readable remaining time and an expiry flag from
// the auction end time and a locally ticking clock. It issues no network
// calls, and local expiry is read-only UI state: it never feeds back into
// AuctionState, since only the authoritative auction_ended event may set the
// terminal status.
type Countdown struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	endTime time.Time
	ended   bool
}

// NewCountdown creates a countdown on the given clock
func NewCountdown(clock clockwork.Clock) *Countdown {
	return &Countdown{clock: clock}
}

// Observe picks up end time and terminal status from a reduced state.
// A terminal status pins the countdown to expired regardless of wall clock.
func (c *Countdown) Observe(state AuctionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endTime = state.EndTime
	if state.Status.Terminal() {
		c.ended = true
	}
}

// Remaining returns the display string and whether the countdown has expired
func (c *Countdown) Remaining() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ended {
		return "Ended", true
	}
	if c.endTime.IsZero() {
		return "—", false
	}
	left := c.endTime.Sub(c.clock.Now())
	if left <= 0 {
		return "Ended", true
	}
	return formatRemaining(left), false
}

// Run ticks once per second and invokes onChange whenever the display string
// or the expiry flag changes. It returns when the context is cancelled.
func (c *Countdown) Run(ctx context.Context, onChange func(text string, expired bool)) {
	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()

	lastText, lastExpired := c.Remaining()
	onChange(lastText, lastExpired)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			text, expired := c.Remaining()
			if text != lastText || expired != lastExpired {
				lastText, lastExpired = text, expired
				onChange(text, expired)
			}
		}
	}
}

func formatRemaining(d time.Duration) string {
	d = d.Round(time.Second)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
