package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Validation errors returned by Place before any network call is made
var (
	ErrNotAuthenticated = errors.New("sign in to place a bid")
	ErrAuctionClosed    = errors.New("auction is not open for bidding")
	ErrBidPending       = errors.New("your previous bid is still awaiting confirmation")
)

// DefaultBidTimeout bounds the wait for a bid_placed or bid_error response
const DefaultBidTimeout = 10 * time.Second

// BidSender dispatches an outbound bid toward the auction server
type BidSender interface {
	PlaceBid(ctx context.Context, auctionID string, amount int64) error
}

// Submitter gates and dispatches at most one outbound bid at a time. It only
// ever sends: the confirmed or rejected effect arrives back through the
// inbound event stream, which keeps the session loop the single writer to
// auction state.
type Submitter struct {
	auctionID     string
	store         *Store
	sender        BidSender
	clock         clockwork.Clock
	timeout       time.Duration
	authenticated bool
	onUnconfirmed func()

	mu      sync.Mutex
	pending bool
	timer   clockwork.Timer
}

// SubmitterConfig configures a bid submitter
type SubmitterConfig struct {
	AuctionID     string
	Store         *Store
	Sender        BidSender
	Clock         clockwork.Clock
	Timeout       time.Duration
	Authenticated bool

	// OnUnconfirmed fires when the confirmation window elapses with no
	// resolution from the server.
	OnUnconfirmed func()
}

// NewSubmitter creates a submitter for one auction view
func NewSubmitter(cfg SubmitterConfig) *Submitter {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultBidTimeout
	}
	return &Submitter{
		auctionID:     cfg.AuctionID,
		store:         cfg.Store,
		sender:        cfg.Sender,
		clock:         cfg.Clock,
		timeout:       cfg.Timeout,
		authenticated: cfg.Authenticated,
		onUnconfirmed: cfg.OnUnconfirmed,
	}
}

// Place validates the amount locally and dispatches it. A validation failure
// returns an error without any network call. On dispatch the submitter enters
// a pending state and rejects further submissions until the server resolves
// this one or the confirmation window elapses.
func (s *Submitter) Place(ctx context.Context, amount int64) error {
	if !s.authenticated {
		return ErrNotAuthenticated
	}

	state := s.store.State()
	if state.Status != StatusActive {
		return ErrAuctionClosed
	}
	if min := state.NextMinBid(); amount < min {
		return fmt.Errorf("minimum bid is EGP %d", min)
	}

	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return ErrBidPending
	}
	s.pending = true
	s.mu.Unlock()

	if err := s.sender.PlaceBid(ctx, s.auctionID, amount); err != nil {
		s.clearPending()
		return fmt.Errorf("dispatch bid: %w", err)
	}

	s.mu.Lock()
	s.timer = s.clock.AfterFunc(s.timeout, s.expire)
	s.mu.Unlock()

	log.Debug().
		Str("auction_id", s.auctionID).
		Int64("amount", amount).
		Msg("bid dispatched, awaiting confirmation")
	return nil
}

// Resolve settles the in-flight submission from the inbound event stream.
// Safe to call when nothing is pending; a late resolution after the timeout
// window is simply dropped.
func (s *Submitter) Resolve(accepted bool) {
	if !s.clearPending() {
		return
	}
	log.Debug().
		Str("auction_id", s.auctionID).
		Bool("accepted", accepted).
		Msg("bid submission resolved")
}

// Pending reports whether a submission is awaiting resolution
func (s *Submitter) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// expire clears the pending flag when no resolution arrived in time. The bid
// may or may not have been applied server-side; only the next authoritative
// update settles it, so the outcome is surfaced as ambiguous.
func (s *Submitter) expire() {
	if !s.clearPending() {
		return
	}
	log.Warn().
		Str("auction_id", s.auctionID).
		Dur("timeout", s.timeout).
		Msg("no bid confirmation received before timeout")
	if s.onUnconfirmed != nil {
		s.onUnconfirmed()
	}
}

// clearPending resets the pending state and reports whether it was set
func (s *Submitter) clearPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending {
		return false
	}
	s.pending = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return true
}
