// Package natsfeed is a room.Transport for processes that sit next to the
// platform's NATS broker instead of dialing the public WebSocket endpoint:
// monitors, alerting bots, the bid simulator. Room events arrive on
// auction.events.<id>; commands go out on auction.cmd.<id>.
package natsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/otobid/otobid/go/internal/auction/events"
	"github.com/otobid/otobid/go/internal/auction/room"
)

// Config holds configuration for the NATS feed transport
type Config struct {
	URL           string
	EventSubject  string // subject prefix for room events, auction id appended
	CmdSubject    string // subject prefix for commands, auction id appended
	MaxReconnects int
	ReconnectWait time.Duration
	EventBuffer   int
}

// DefaultConfig returns default NATS feed configuration
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		EventSubject:  "auction.events.",
		CmdSubject:    "auction.cmd.",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		EventBuffer:   256,
	}
}

// Feed is a room.Transport over a NATS connection. Reconnection and backoff
// belong to the NATS client; the feed only translates its connection events
// into the transport's conn state channel.
type Feed struct {
	cfg Config
	nc  *nats.Conn

	eventsCh chan events.Envelope
	statesCh chan room.ConnState

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Connect dials NATS and returns a ready transport
func Connect(cfg Config) (*Feed, error) {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}
	f := &Feed{
		cfg:      cfg,
		eventsCh: make(chan events.Envelope, cfg.EventBuffer),
		statesCh: make(chan room.ConnState, 8),
		subs:     make(map[string]*nats.Subscription),
	}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
			f.pushState(room.StateDisconnected)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
			f.pushState(room.StateConnected)
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	f.nc = nc

	// The manager expects a connected notice for the initial handshake too.
	f.pushState(room.StateConnected)
	return f, nil
}

// Join implements room.Transport: subscribe to the room's event subject and
// announce the join so the server replays the snapshot.
func (f *Feed) Join(ctx context.Context, auctionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.subs[auctionID]; !ok {
		sub, err := f.nc.Subscribe(f.cfg.EventSubject+auctionID, func(msg *nats.Msg) {
			var env events.Envelope
			if err := json.Unmarshal(msg.Data, &env); err != nil {
				log.Warn().Err(err).Str("subject", msg.Subject).Msg("bad event frame")
				return
			}
			select {
			case f.eventsCh <- env:
			default:
				log.Warn().Str("event", string(env.Event)).Msg("event buffer full, dropping inbound event")
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe to auction %s: %w", auctionID, err)
		}
		f.subs[auctionID] = sub
	}

	return f.publish(events.NewJoinCommand(auctionID))
}

// Leave implements room.Transport
func (f *Feed) Leave(ctx context.Context, auctionID string) error {
	f.mu.Lock()
	if sub, ok := f.subs[auctionID]; ok {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("auction_id", auctionID).Msg("unsubscribe failed")
		}
		delete(f.subs, auctionID)
	}
	f.mu.Unlock()

	return f.publish(events.NewLeaveCommand(auctionID))
}

// PlaceBid implements room.Transport
func (f *Feed) PlaceBid(ctx context.Context, auctionID string, amount int64) error {
	return f.publish(events.NewPlaceBidCommand(auctionID, amount))
}

// Events implements room.Transport
func (f *Feed) Events() <-chan events.Envelope { return f.eventsCh }

// ConnStates implements room.Transport
func (f *Feed) ConnStates() <-chan room.ConnState { return f.statesCh }

// Close implements room.Transport
func (f *Feed) Close() error {
	f.nc.Close()
	return nil
}

func (f *Feed) publish(env events.Envelope, err error) error {
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	auctionID := env.AuctionID()
	if err := f.nc.Publish(f.cfg.CmdSubject+auctionID, data); err != nil {
		return fmt.Errorf("publish %s: %w", env.Event, err)
	}
	return nil
}

func (f *Feed) pushState(state room.ConnState) {
	select {
	case f.statesCh <- state:
	default:
		log.Warn().Str("state", state.String()).Msg("conn state buffer full, dropping state change")
	}
}
