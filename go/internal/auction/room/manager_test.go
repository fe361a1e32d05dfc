package room

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otobid/otobid/go/internal/auction/events"
	"github.com/otobid/otobid/go/internal/auction/live"
)

// fakeTransport is a scriptable in-memory transport for session tests
type fakeTransport struct {
	mu     sync.Mutex
	joins  []string
	leaves []string
	bids   []int64

	events chan events.Envelope
	conns  chan ConnState
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events: make(chan events.Envelope, 32),
		conns:  make(chan ConnState, 8),
	}
}

func (f *fakeTransport) Join(_ context.Context, auctionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, auctionID)
	return nil
}

func (f *fakeTransport) Leave(_ context.Context, auctionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, auctionID)
	return nil
}

func (f *fakeTransport) PlaceBid(_ context.Context, _ string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bids = append(f.bids, amount)
	return nil
}

func (f *fakeTransport) Events() <-chan events.Envelope { return f.events }
func (f *fakeTransport) ConnStates() <-chan ConnState   { return f.conns }
func (f *fakeTransport) Close() error                   { return nil }

func (f *fakeTransport) joined() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.joins))
	copy(out, f.joins)
	return out
}

func (f *fakeTransport) emit(t *testing.T, event events.Type, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	f.events <- events.Envelope{Event: event, Data: data}
}

func testConfig() Config {
	return Config{
		BidTimeout:    time.Second,
		Authenticated: true,
		Clock:         clockwork.NewFakeClock(),
	}
}

func startManager(t *testing.T) (*Manager, *fakeTransport, context.Context) {
	t.Helper()
	transport := newFakeTransport()
	manager := NewManager(transport, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		manager.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return manager, transport, ctx
}

// waitFor polls a session accessor until the condition holds or times out.
// The session loop applies events asynchronously.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func joinedPayload(auctionID string) events.AuctionJoinedPayload {
	return events.AuctionJoinedPayload{
		AuctionID:       auctionID,
		CurrentBid:      1000,
		BidCount:        3,
		MinBidIncrement: 50,
		EndTime:         time.Now().Add(time.Hour).UTC(),
		Status:          "live",
	}
}

func TestOpenJoinsAndSeedsFromSnapshot(t *testing.T) {
	manager, transport, ctx := startManager(t)

	session, err := manager.Open(ctx, "auction-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"auction-1"}, transport.joined())
	assert.False(t, session.Seeded())

	transport.emit(t, events.TypeAuctionJoined, joinedPayload("auction-1"))
	transport.emit(t, events.TypeBidHistory, events.BidHistoryPayload{
		AuctionID: "auction-1",
		Bids:      []events.RoomBid{{ID: "bid-3", Amount: 1000}},
	})

	waitFor(t, session.Seeded, "snapshot applied")
	waitFor(t, func() bool { return len(session.Bids()) == 1 }, "history applied")
	assert.Equal(t, int64(1000), session.State().CurrentBid)
	assert.Equal(t, live.StatusActive, session.State().Status)
}

func TestOpenIsIdempotent(t *testing.T) {
	manager, transport, ctx := startManager(t)

	first, err := manager.Open(ctx, "auction-1")
	require.NoError(t, err)
	second, err := manager.Open(ctx, "auction-1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, []string{"auction-1"}, transport.joined(), "join sent once")
}

func TestRouteTargetsSessionByAuctionID(t *testing.T) {
	manager, transport, ctx := startManager(t)

	one, err := manager.Open(ctx, "auction-1")
	require.NoError(t, err)
	two, err := manager.Open(ctx, "auction-2")
	require.NoError(t, err)

	transport.emit(t, events.TypeAuctionJoined, joinedPayload("auction-1"))
	transport.emit(t, events.TypeAuctionJoined, joinedPayload("auction-2"))
	waitFor(t, func() bool { return one.Seeded() && two.Seeded() }, "both seeded")

	transport.emit(t, events.TypeAuctionUpdated, events.AuctionUpdatedPayload{
		AuctionID:  "auction-2",
		CurrentBid: 1200,
		BidCount:   4,
	})

	waitFor(t, func() bool { return two.State().CurrentBid == 1200 }, "update reached auction-2")
	assert.Equal(t, int64(1000), one.State().CurrentBid, "auction-1 untouched")
}

func TestDisconnectMarksStaleKeepsState(t *testing.T) {
	manager, transport, ctx := startManager(t)

	session, err := manager.Open(ctx, "auction-1")
	require.NoError(t, err)
	transport.emit(t, events.TypeAuctionJoined, joinedPayload("auction-1"))
	waitFor(t, session.Seeded, "snapshot applied")

	transport.conns <- StateDisconnected
	waitFor(t, session.Stale, "stale after disconnect")

	// Last-known state stays on display.
	assert.Equal(t, int64(1000), session.State().CurrentBid)
	notes := session.Notifications()
	require.NotEmpty(t, notes)
	assert.Equal(t, live.ToneWarn, notes[0].Tone)
}

func TestReconnectRejoinsAndResyncs(t *testing.T) {
	manager, transport, ctx := startManager(t)

	session, err := manager.Open(ctx, "auction-1")
	require.NoError(t, err)
	transport.emit(t, events.TypeAuctionJoined, joinedPayload("auction-1"))
	waitFor(t, session.Seeded, "snapshot applied")

	transport.conns <- StateDisconnected
	waitFor(t, session.Stale, "stale after disconnect")

	transport.conns <- StateConnected
	waitFor(t, func() bool { return !session.Stale() }, "fresh after reconnect")
	waitFor(t, func() bool { return len(transport.joined()) == 2 }, "rejoined on reconnect")

	// Server answers the rejoin with a fresh snapshot covering the gap.
	snapshot := joinedPayload("auction-1")
	snapshot.CurrentBid = 1500
	snapshot.BidCount = 7
	transport.emit(t, events.TypeAuctionJoined, snapshot)

	waitFor(t, func() bool { return session.State().CurrentBid == 1500 }, "resynced")
	assert.Equal(t, 7, session.State().BidCount)
}

func TestBidRoundTrip(t *testing.T) {
	manager, transport, ctx := startManager(t)

	session, err := manager.Open(ctx, "auction-1")
	require.NoError(t, err)
	transport.emit(t, events.TypeAuctionJoined, joinedPayload("auction-1"))
	waitFor(t, session.Seeded, "snapshot applied")

	require.NoError(t, session.PlaceBid(ctx, 1100))

	transport.emit(t, events.TypeBidPlaced, events.BidPlacedPayload{
		Bid: events.Bid{ID: "bid-4", AuctionID: "auction-1", Amount: 1100, Timestamp: time.Now().UTC()},
		Auction: &events.AuctionFragment{
			CurrentBid:      1100,
			BidCount:        4,
			MinBidIncrement: 50,
		},
	})

	waitFor(t, func() bool { return session.State().CurrentBid == 1100 }, "confirmation applied")
	assert.Equal(t, live.SelfBidder, session.State().LeadingBidderID)
	require.NotEmpty(t, session.Bids())
	assert.Equal(t, live.SelfBidder, session.Bids()[0].BidderID)

	// Resolved: the gate is open for the next bid.
	waitFor(t, func() bool { return session.PlaceBid(ctx, 1200) == nil }, "gate released after confirmation")
}

func TestBidErrorFansOutToPendingSession(t *testing.T) {
	manager, transport, ctx := startManager(t)

	session, err := manager.Open(ctx, "auction-1")
	require.NoError(t, err)
	transport.emit(t, events.TypeAuctionJoined, joinedPayload("auction-1"))
	waitFor(t, session.Seeded, "snapshot applied")

	require.NoError(t, session.PlaceBid(ctx, 1100))

	// bid_error carries no auction id; it fans out to every open session.
	transport.emit(t, events.TypeBidError, events.BidErrorPayload{Message: "Minimum bid is EGP 1,200"})

	waitFor(t, func() bool {
		notes := session.Notifications()
		return len(notes) > 0 && notes[0].Tone == live.ToneWarn
	}, "rejection surfaced")
	assert.Equal(t, int64(1000), session.State().CurrentBid, "rejection mutates nothing")
	waitFor(t, func() bool { return session.PlaceBid(ctx, 1100) == nil }, "gate released after rejection")
}

func TestCloseStopsSessionAndDropsLateEvents(t *testing.T) {
	manager, transport, ctx := startManager(t)

	session, err := manager.Open(ctx, "auction-1")
	require.NoError(t, err)
	transport.emit(t, events.TypeAuctionJoined, joinedPayload("auction-1"))
	waitFor(t, session.Seeded, "snapshot applied")

	require.NoError(t, manager.Close(ctx, "auction-1"))
	select {
	case <-session.Done():
	case <-time.After(time.Second):
		t.Fatal("session loop did not stop")
	}
	assert.Equal(t, []string{"auction-1"}, transport.leaves)

	_, open := manager.Session("auction-1")
	assert.False(t, open)

	// A late event for the closed auction is dropped, not applied.
	transport.emit(t, events.TypeAuctionUpdated, events.AuctionUpdatedPayload{
		AuctionID:  "auction-1",
		CurrentBid: 9999,
		BidCount:   50,
	})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1000), session.State().CurrentBid)

	// Closing again is a no-op.
	require.NoError(t, manager.Close(ctx, "auction-1"))
	assert.Equal(t, []string{"auction-1"}, transport.leaves)
}

func TestManagerShutdownStopsSessions(t *testing.T) {
	transport := newFakeTransport()
	manager := NewManager(transport, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		manager.Start(ctx)
	}()

	session, err := manager.Open(ctx, "auction-1")
	require.NoError(t, err)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("manager did not shut down")
	}
	select {
	case <-session.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not stop with the manager")
	}
}
