package live

import (
	"strings"
	"sync"
	"time"
)

// Status is the lifecycle status of an auction. Transitions are one-way:
// once ended or cancelled an auction never becomes active again.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusEnded     Status = "ENDED"
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus maps the server's status vocabulary onto the local lifecycle.
// Anything that is not terminal counts as active; the server refuses bids on
// auctions that are not open, so an optimistic mapping is safe here.
func ParseStatus(s string) Status {
	switch strings.ToLower(s) {
	case "ended", "completed", "sold", "expired":
		return StatusEnded
	case "cancelled", "canceled":
		return StatusCancelled
	default:
		return StatusActive
	}
}

// Terminal reports whether the status admits no further transitions
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusCancelled
}

const (
	// RingCap bounds the retained bid history, newest first
	RingCap = 20

	// NotificationCap bounds the retained notification list, newest first
	NotificationCap = 5

	// MinIncrementFloor is the platform-wide minimum bid increment in EGP
	MinIncrementFloor int64 = 50
)

// SelfBidder is the sentinel bidder id for the viewer's own bids
const SelfBidder = "self"

// AuctionState is the last-known authoritative state of one auction view.
// Amounts are whole EGP.
type AuctionState struct {
	ID              string
	Status          Status
	CurrentBid      int64
	BidCount        int
	MinBidIncrement int64
	EndTime         time.Time
	ReservePrice    int64
	StartPrice      int64
	LeadingBidderID string
}

// NextMinBid is the lowest amount the server would accept as the next bid
func (s AuctionState) NextMinBid() int64 {
	inc := s.MinBidIncrement
	if inc < MinIncrementFloor {
		inc = MinIncrementFloor
	}
	return s.CurrentBid + inc
}

// ReserveMet reports whether the current bid has reached the reserve price
func (s AuctionState) ReserveMet() bool {
	return s.ReservePrice > 0 && s.CurrentBid >= s.ReservePrice
}

// BidRecord is one retained bid. BidderID is SelfBidder for the viewer's own
// bids, otherwise the anonymized display name the server handed out.
type BidRecord struct {
	ID        string
	BidderID  string
	Amount    int64
	Timestamp time.Time
}

// Snapshot couples the auction state with its retained bid ring. It has value
// semantics: the reducer takes one in and hands a new one back, which keeps
// every transition inspectable in tests.
type Snapshot struct {
	State AuctionState
	Bids  []BidRecord
}

// HasBid reports whether a bid id is already present in the ring
func (s Snapshot) HasBid(id string) bool {
	for _, b := range s.Bids {
		if b.ID == id {
			return true
		}
	}
	return false
}

// withBid prepends a bid record and trims the ring to its cap. Callers check
// HasBid first; this does not de-duplicate.
func (s Snapshot) withBid(rec BidRecord) Snapshot {
	bids := make([]BidRecord, 0, len(s.Bids)+1)
	bids = append(bids, rec)
	bids = append(bids, s.Bids...)
	if len(bids) > RingCap {
		bids = bids[:RingCap]
	}
	s.Bids = bids
	return s
}

// copyBids returns a defensive copy of the ring
func (s Snapshot) copyBids() []BidRecord {
	out := make([]BidRecord, len(s.Bids))
	copy(out, s.Bids)
	return out
}

// Store holds the last-known authoritative snapshot for one auction view.
// The session event loop is the only writer; readers get copies. The store
// also carries the connectivity flag so a disconnected view keeps showing
// its last-known state instead of going blank.
type Store struct {
	mu     sync.RWMutex
	snap   Snapshot
	seeded bool
	stale  bool
}

// NewStore creates an empty store for one auction id
func NewStore(auctionID string) *Store {
	return &Store{
		snap: Snapshot{State: AuctionState{ID: auctionID, Status: StatusActive}},
	}
}

// Snapshot returns a copy of the current snapshot
func (st *Store) Snapshot() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	snap := st.snap
	snap.Bids = st.snap.copyBids()
	return snap
}

// State returns a copy of the current auction state
func (st *Store) State() AuctionState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snap.State
}

// Bids returns a copy of the retained bid ring, newest first
func (st *Store) Bids() []BidRecord {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snap.copyBids()
}

// Replace installs a new snapshot produced by the reducer
func (st *Store) Replace(snap Snapshot) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.snap = snap
	st.seeded = true
}

// Seeded reports whether the initial join snapshot has arrived
func (st *Store) Seeded() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.seeded
}

// SetStale flags the view as disconnected from the authoritative server
func (st *Store) SetStale(stale bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.stale = stale
}

// Stale reports whether the displayed state may lag the server
func (st *Store) Stale() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.stale
}
