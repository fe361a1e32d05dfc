package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu    sync.Mutex
	calls []int64
	err   error
}

func (f *fakeSender) PlaceBid(_ context.Context, _ string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, amount)
	return nil
}

func (f *fakeSender) sent() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.calls))
	copy(out, f.calls)
	return out
}

func newTestSubmitter(t *testing.T, status Status, authenticated bool) (*Submitter, *fakeSender, *clockwork.FakeClock) {
	t.Helper()
	store := NewStore("auction-1")
	store.Replace(Snapshot{State: AuctionState{
		ID:              "auction-1",
		Status:          status,
		CurrentBid:      1050,
		MinBidIncrement: 50,
	}})

	sender := &fakeSender{}
	clock := clockwork.NewFakeClock()
	sub := NewSubmitter(SubmitterConfig{
		AuctionID:     "auction-1",
		Store:         store,
		Sender:        sender,
		Clock:         clock,
		Timeout:       DefaultBidTimeout,
		Authenticated: authenticated,
	})
	return sub, sender, clock
}

func TestPlaceRequiresAuthentication(t *testing.T) {
	sub, sender, _ := newTestSubmitter(t, StatusActive, false)

	err := sub.Place(context.Background(), 1100)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Empty(t, sender.sent())
}

func TestPlaceRejectsClosedAuction(t *testing.T) {
	sub, sender, _ := newTestSubmitter(t, StatusEnded, true)

	err := sub.Place(context.Background(), 1100)
	assert.ErrorIs(t, err, ErrAuctionClosed)
	assert.Empty(t, sender.sent())
}

func TestPlaceRejectsBelowMinimumWithoutDispatch(t *testing.T) {
	sub, sender, _ := newTestSubmitter(t, StatusActive, true)

	// Current bid 1050, increment 50: the floor for the next bid is 1100.
	err := sub.Place(context.Background(), 1040)
	require.Error(t, err)
	assert.EqualError(t, err, "minimum bid is EGP 1100")
	assert.Empty(t, sender.sent(), "validation failures never reach the wire")
	assert.False(t, sub.Pending())
}

func TestPlaceDispatchesAndGates(t *testing.T) {
	sub, sender, _ := newTestSubmitter(t, StatusActive, true)

	require.NoError(t, sub.Place(context.Background(), 1100))
	assert.Equal(t, []int64{1100}, sender.sent())
	assert.True(t, sub.Pending())

	// One in flight at a time.
	err := sub.Place(context.Background(), 1150)
	assert.ErrorIs(t, err, ErrBidPending)
	assert.Equal(t, []int64{1100}, sender.sent())

	sub.Resolve(true)
	assert.False(t, sub.Pending())
	require.NoError(t, sub.Place(context.Background(), 1150))
	assert.Equal(t, []int64{1100, 1150}, sender.sent())
}

func TestPlaceDispatchFailureClearsPending(t *testing.T) {
	sub, sender, _ := newTestSubmitter(t, StatusActive, true)
	sender.err = errors.New("websocket closed")

	err := sub.Place(context.Background(), 1100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispatch bid")
	assert.False(t, sub.Pending(), "failed dispatch frees the gate")
}

func TestPlaceTimeoutFiresUnconfirmed(t *testing.T) {
	store := NewStore("auction-1")
	store.Replace(Snapshot{State: AuctionState{
		ID: "auction-1", Status: StatusActive, CurrentBid: 1050, MinBidIncrement: 50,
	}})

	clock := clockwork.NewFakeClock()
	unconfirmed := make(chan struct{}, 1)
	sub := NewSubmitter(SubmitterConfig{
		AuctionID:     "auction-1",
		Store:         store,
		Sender:        &fakeSender{},
		Clock:         clock,
		Timeout:       5 * time.Second,
		Authenticated: true,
		OnUnconfirmed: func() { unconfirmed <- struct{}{} },
	})

	require.NoError(t, sub.Place(context.Background(), 1100))
	require.True(t, sub.Pending())

	clock.Advance(5 * time.Second)
	select {
	case <-unconfirmed:
	case <-time.After(time.Second):
		t.Fatal("expected the unconfirmed callback after the timeout window")
	}
	assert.False(t, sub.Pending())

	// A straggling server resolution after expiry is a no-op.
	sub.Resolve(true)
	assert.False(t, sub.Pending())
}

func TestResolveWithoutPendingIsNoop(t *testing.T) {
	sub, _, _ := newTestSubmitter(t, StatusActive, true)
	sub.Resolve(false)
	assert.False(t, sub.Pending())
}
