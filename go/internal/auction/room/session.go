package room

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/otobid/otobid/go/internal/auction/events"
	"github.com/otobid/otobid/go/internal/auction/live"
)

// Session is one live view of one auction. A single goroutine consumes the
// inbound events in arrival order and is the only writer to the store, which
// makes the final state deterministic regardless of minor reordering.
type Session struct {
	auctionID string
	transport Transport

	store     *live.Store
	agg       *live.Aggregator
	countdown *live.Countdown
	submitter *live.Submitter

	events chan events.Envelope
	conns  chan ConnState

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(ctx context.Context, auctionID string, transport Transport, clock clockwork.Clock, cfg Config) *Session {
	ctx, cancel := context.WithCancel(ctx)

	store := live.NewStore(auctionID)
	agg := live.NewAggregator(clock)

	s := &Session{
		auctionID: auctionID,
		transport: transport,
		store:     store,
		agg:       agg,
		countdown: live.NewCountdown(clock),
		events:    make(chan events.Envelope, 64),
		conns:     make(chan ConnState, 4),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.submitter = live.NewSubmitter(live.SubmitterConfig{
		AuctionID:     auctionID,
		Store:         store,
		Sender:        transport,
		Clock:         clock,
		Timeout:       cfg.BidTimeout,
		Authenticated: cfg.Authenticated,
		OnUnconfirmed: func() {
			agg.Push(live.ToneWarn, "No confirmation received for your bid — it may or may not have been applied")
		},
	})
	return s
}

// AuctionID returns the auction this session is subscribed to
func (s *Session) AuctionID() string { return s.auctionID }

// State returns a copy of the last-known auction state
func (s *Session) State() live.AuctionState { return s.store.State() }

// Bids returns a copy of the retained bid history, newest first
func (s *Session) Bids() []live.BidRecord { return s.store.Bids() }

// Notifications returns the retained notification list, newest first
func (s *Session) Notifications() []live.Notification { return s.agg.Notifications() }

// Stale reports whether the displayed state may lag the server
func (s *Session) Stale() bool { return s.store.Stale() }

// Seeded reports whether the initial snapshot has arrived
func (s *Session) Seeded() bool { return s.store.Seeded() }

// Countdown exposes the session's local countdown clock
func (s *Session) Countdown() *live.Countdown { return s.countdown }

// PlaceBid validates and dispatches a bid for this auction
func (s *Session) PlaceBid(ctx context.Context, amount int64) error {
	return s.submitter.Place(ctx, amount)
}

// Done closes when the session stops applying events
func (s *Session) Done() <-chan struct{} { return s.done }

// run is the session event loop. Exactly one per session.
func (s *Session) run() {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			return
		case state := <-s.conns:
			s.handleConnState(state)
		case env := <-s.events:
			s.apply(env)
		}
	}
}

// handleConnState reacts to transport connectivity changes. A disconnect
// marks the view stale without discarding the last-known state; every
// successful connect re-runs the full join/snapshot handshake, which resolves
// whatever was missed during the gap.
func (s *Session) handleConnState(state ConnState) {
	switch state {
	case StateConnected:
		if s.store.Stale() {
			s.store.SetStale(false)
			s.agg.Push(live.ToneInfo, "Connection restored — live updates resumed")
		}
		if err := s.transport.Join(s.ctx, s.auctionID); err != nil {
			log.Warn().
				Err(err).
				Str("auction_id", s.auctionID).
				Msg("join request failed, waiting for next reconnect")
		}
	case StateDisconnected:
		if !s.store.Stale() {
			s.store.SetStale(true)
			s.agg.Push(live.ToneWarn, "Connection lost — showing last known state")
		}
	}
}

// apply feeds one inbound event through the reducer and carries out the
// derived side effects.
func (s *Session) apply(env events.Envelope) {
	next, eff, err := live.Apply(s.store.Snapshot(), env)
	if err != nil {
		log.Warn().
			Err(err).
			Str("auction_id", s.auctionID).
			Str("event", string(env.Event)).
			Msg("failed to apply event")
		return
	}

	s.store.Replace(next)
	s.countdown.Observe(next.State)

	for _, n := range eff.Notices {
		s.agg.Push(n.Tone, n.Message)
	}
	if eff.Resolution != nil {
		s.submitter.Resolve(eff.Resolution.Accepted)
	}
}

// stop synchronously stops applying events for this auction. Safe while a
// join or bid submission is in flight; a late resolution is dropped.
func (s *Session) stop() {
	s.cancel()
	<-s.done
}
