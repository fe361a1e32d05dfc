package room

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/otobid/otobid/go/internal/auction/events"
)

// Config holds configuration for a room manager
type Config struct {
	// BidTimeout bounds the wait for a bid confirmation
	BidTimeout time.Duration

	// Authenticated marks whether the viewer may place bids. Guests get a
	// read-only view, same as the auction server's own policy.
	Authenticated bool

	// Clock drives countdowns and submission timeouts. Defaults to the real
	// clock; tests inject a fake one.
	Clock clockwork.Clock
}

// DefaultConfig returns the default room manager configuration
func DefaultConfig() Config {
	return Config{
		BidTimeout:    10 * time.Second,
		Authenticated: true,
		Clock:         clockwork.NewRealClock(),
	}
}

// Manager owns at most one live session per auction id over an injected
// transport. It runs the transport demux loop: inbound events are routed to
// the session for their auction id, connectivity changes fan out to every
// session.
type Manager struct {
	transport Transport
	cfg       Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager on top of a connected transport
func NewManager(transport Transport, cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.BidTimeout <= 0 {
		cfg.BidTimeout = DefaultConfig().BidTimeout
	}
	return &Manager{
		transport: transport,
		cfg:       cfg,
		sessions:  make(map[string]*Session),
	}
}

// Start runs the demux loop until the context is cancelled
func (m *Manager) Start(ctx context.Context) {
	log.Info().Msg("room manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("room manager shutting down")
			m.closeAll()
			return
		case state, ok := <-m.transport.ConnStates():
			if !ok {
				return
			}
			m.fanOutConnState(state)
		case env, ok := <-m.transport.Events():
			if !ok {
				return
			}
			m.route(env)
		}
	}
}

// Open establishes the live subscription for an auction if one is not already
// running and returns its session handle. Idempotent: opening an already open
// auction returns the existing session.
func (m *Manager) Open(ctx context.Context, auctionID string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[auctionID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	s := newSession(ctx, auctionID, m.transport, m.cfg.Clock, m.cfg)
	m.sessions[auctionID] = s
	m.mu.Unlock()

	go s.run()

	if err := m.transport.Join(ctx, auctionID); err != nil {
		// The session stays registered: the transport's next successful
		// connect re-runs the handshake.
		log.Warn().
			Err(err).
			Str("auction_id", auctionID).
			Msg("initial join failed, waiting for reconnect")
	}

	log.Info().Str("auction_id", auctionID).Msg("auction room opened")
	return s, nil
}

// Close releases the subscription for an auction. Safe to call repeatedly;
// closing an unknown auction is a no-op. Late events for a closed auction are
// dropped: the auction-scoped state no longer exists to mutate.
func (m *Manager) Close(ctx context.Context, auctionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[auctionID]
	if ok {
		delete(m.sessions, auctionID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	s.stop()
	if err := m.transport.Leave(ctx, auctionID); err != nil {
		log.Warn().
			Err(err).
			Str("auction_id", auctionID).
			Msg("leave request failed")
	}
	log.Info().Str("auction_id", auctionID).Msg("auction room closed")
	return nil
}

// Session returns the open session for an auction id, if any
func (m *Manager) Session(auctionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[auctionID]
	return s, ok
}

// route delivers one inbound event to the session it belongs to. Events with
// no auction id are connection-scoped (bid_error) and fan out to every
// session; only the one with a pending submission acts on them.
func (m *Manager) route(env events.Envelope) {
	auctionID := env.AuctionID()

	m.mu.RLock()
	targets := make([]*Session, 0, 1)
	if auctionID == "" {
		for _, s := range m.sessions {
			targets = append(targets, s)
		}
	} else if s, ok := m.sessions[auctionID]; ok {
		targets = append(targets, s)
	}
	m.mu.RUnlock()

	if len(targets) == 0 {
		log.Debug().
			Str("auction_id", auctionID).
			Str("event", string(env.Event)).
			Msg("dropping event for auction with no open session")
		return
	}

	for _, s := range targets {
		select {
		case s.events <- env:
		case <-s.ctx.Done():
			// Session closed while routing; the event dies with it.
		default:
			log.Warn().
				Str("auction_id", s.auctionID).
				Str("event", string(env.Event)).
				Msg("session event buffer full, dropping event")
		}
	}
}

// fanOutConnState delivers a connectivity change to every open session
func (m *Manager) fanOutConnState(state ConnState) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	log.Info().Str("state", state.String()).Int("sessions", len(sessions)).Msg("transport connectivity changed")

	for _, s := range sessions {
		select {
		case s.conns <- state:
		case <-s.ctx.Done():
		default:
			log.Warn().Str("auction_id", s.auctionID).Msg("session conn buffer full, dropping state change")
		}
	}
}

// closeAll stops every session, used on manager shutdown
func (m *Manager) closeAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for id, s := range sessions {
		s.stop()
		log.Debug().Str("auction_id", id).Msg("session stopped")
	}
}
