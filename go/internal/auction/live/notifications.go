package live

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Tone classifies a notification for presentation
type Tone string

const (
	ToneInfo    Tone = "info"
	ToneWarn    Tone = "warn"
	ToneSuccess Tone = "success"
)

// Notification is one human-facing message
type Notification struct {
	ID      string
	Message string
	Tone    Tone
	Time    time.Time
}

// Aggregator keeps the capped, newest-first notification list for one view.
// Pure append and truncate; it holds no business logic of its own.
type Aggregator struct {
	mu    sync.Mutex
	clock clockwork.Clock
	items []Notification
}

// NewAggregator creates an empty aggregator
func NewAggregator(clock clockwork.Clock) *Aggregator {
	return &Aggregator{clock: clock}
}

// Push prepends a notification, dropping the oldest past the cap
func (a *Aggregator) Push(tone Tone, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	items := make([]Notification, 0, len(a.items)+1)
	items = append(items, Notification{
		ID:      uuid.New().String(),
		Message: message,
		Tone:    tone,
		Time:    a.clock.Now(),
	})
	items = append(items, a.items...)
	if len(items) > NotificationCap {
		items = items[:NotificationCap]
	}
	a.items = items
}

// Notifications returns a copy of the retained list, newest first
func (a *Aggregator) Notifications() []Notification {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Notification, len(a.items))
	copy(out, a.items)
	return out
}
