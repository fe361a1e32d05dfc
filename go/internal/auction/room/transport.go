package room

import (
	"context"

	"github.com/otobid/otobid/go/internal/auction/events"
)

// ConnState is the connectivity of the transport channel
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnected
)

func (s ConnState) String() string {
	if s == StateConnected {
		return "connected"
	}
	return "disconnected"
}

// Transport is an injected connection handle to the auction server. One
// transport may multiplex many auction rooms over a single underlying
// connection; each room's event stream stays logically independent.
//
// Reconnection is the transport's own concern. It must emit StateConnected
// on every successful (re)connect so the manager can re-run the join and
// snapshot handshake; delta resume after a gap is not supported.
type Transport interface {
	// Join subscribes to an auction room. The server answers with
	// auction_joined and bid_history on the event stream.
	Join(ctx context.Context, auctionID string) error

	// Leave releases the room subscription
	Leave(ctx context.Context, auctionID string) error

	// PlaceBid dispatches a bid. Resolution arrives via the event stream,
	// never as a direct response.
	PlaceBid(ctx context.Context, auctionID string, amount int64) error

	// Events is the typed inbound event stream for all joined rooms
	Events() <-chan events.Envelope

	// ConnStates reports transport-level connects and disconnects
	ConnStates() <-chan ConnState

	// Close tears the transport down
	Close() error
}
