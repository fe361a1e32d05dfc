package live

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"active":    StatusActive,
		"live":      StatusActive,
		"scheduled": StatusActive,
		"":          StatusActive,
		"ended":     StatusEnded,
		"Completed": StatusEnded,
		"SOLD":      StatusEnded,
		"expired":   StatusEnded,
		"cancelled": StatusCancelled,
		"canceled":  StatusCancelled,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ParseStatus(raw), "status %q", raw)
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusActive.Terminal())
	assert.True(t, StatusEnded.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestNextMinBid(t *testing.T) {
	state := AuctionState{CurrentBid: 1000, MinBidIncrement: 100}
	assert.Equal(t, int64(1100), state.NextMinBid())

	// A zero or sub-floor increment is clamped to the platform floor.
	state.MinBidIncrement = 0
	assert.Equal(t, int64(1050), state.NextMinBid())
	state.MinBidIncrement = 10
	assert.Equal(t, int64(1050), state.NextMinBid())
}

func TestReserveMet(t *testing.T) {
	assert.False(t, AuctionState{CurrentBid: 1000}.ReserveMet(), "no reserve set")
	assert.False(t, AuctionState{CurrentBid: 1000, ReservePrice: 1200}.ReserveMet())
	assert.True(t, AuctionState{CurrentBid: 1200, ReservePrice: 1200}.ReserveMet())
}

func TestSnapshotWithBidTrimsToCap(t *testing.T) {
	var snap Snapshot
	for i := 0; i < RingCap+3; i++ {
		snap = snap.withBid(BidRecord{ID: fmt.Sprintf("bid-%d", i), Amount: int64(1000 + i)})
	}

	require.Len(t, snap.Bids, RingCap)
	assert.Equal(t, fmt.Sprintf("bid-%d", RingCap+2), snap.Bids[0].ID, "newest first")
	assert.True(t, snap.HasBid("bid-3"))
	assert.False(t, snap.HasBid("bid-0"), "oldest trimmed out")
}

func TestStoreCopies(t *testing.T) {
	store := NewStore("auction-1")
	assert.False(t, store.Seeded())

	store.Replace(Snapshot{
		State: AuctionState{ID: "auction-1", Status: StatusActive, CurrentBid: 1000},
		Bids:  []BidRecord{{ID: "bid-1", Amount: 1000}},
	})
	assert.True(t, store.Seeded())

	// Mutating a returned copy must not leak back into the store.
	bids := store.Bids()
	bids[0].Amount = 9999
	assert.Equal(t, int64(1000), store.Bids()[0].Amount)

	snap := store.Snapshot()
	snap.Bids[0].ID = "tampered"
	assert.Equal(t, "bid-1", store.Snapshot().Bids[0].ID)
}

func TestStoreStaleFlag(t *testing.T) {
	store := NewStore("auction-1")
	assert.False(t, store.Stale())

	store.SetStale(true)
	assert.True(t, store.Stale())

	// Going stale never disturbs the retained snapshot.
	store.Replace(Snapshot{State: AuctionState{ID: "auction-1", CurrentBid: 1500, EndTime: time.Now()}})
	store.SetStale(true)
	assert.Equal(t, int64(1500), store.State().CurrentBid)

	store.SetStale(false)
	assert.False(t, store.Stale())
}
