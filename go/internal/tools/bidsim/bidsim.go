// bidsim drives scripted bidders against a live auction room. Each bidder
// opens its own connection, watches the reconciled state, and raises by the
// minimum increment on a jittered interval — enough load to exercise the
// submit, confirm, broadcast and outbid paths end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/otobid/otobid/go/internal/auction/live"
	"github.com/otobid/otobid/go/internal/auction/room"
	"github.com/otobid/otobid/go/internal/auction/transport/ws"
)

func main() {
	var (
		auctionID = flag.String("auction", "", "auction id to bid on")
		wsURL     = flag.String("ws", "ws://localhost:5000/ws", "auction server WebSocket URL")
		bidders   = flag.Int("bidders", 3, "number of concurrent simulated bidders")
		interval  = flag.Duration("interval", 5*time.Second, "base delay between bids per bidder")
		maxBid    = flag.Int64("max", 0, "stop raising past this amount (0 = unlimited)")
	)
	flag.Parse()

	if *auctionID == "" {
		fmt.Fprintln(os.Stderr, "bidsim: -auction is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for i := 0; i < *bidders; i++ {
		go runBidder(ctx, i, *wsURL, *auctionID, *interval, *maxBid)
	}

	<-ctx.Done()
	log.Info().Msg("bidsim shutting down")
}

// runBidder opens an independent connection and keeps raising by the minimum
// increment until the auction ends or the cap is hit.
func runBidder(ctx context.Context, n int, wsURL, auctionID string, interval time.Duration, maxBid int64) {
	name := fmt.Sprintf("bidder-%d", n)

	cfg := ws.DefaultConfig(wsURL)
	cfg.Token = os.Getenv(fmt.Sprintf("BIDSIM_TOKEN_%d", n))
	client := ws.NewClient(cfg)
	go client.Start(ctx)
	defer client.Close()

	manager := room.NewManager(client, room.Config{Authenticated: true})
	go manager.Start(ctx)

	session, err := manager.Open(ctx, auctionID)
	if err != nil {
		log.Error().Err(err).Str("bidder", name).Msg("failed to open room")
		return
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(n)))

	for {
		jitter := time.Duration(rng.Int63n(int64(interval)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval + jitter):
		}

		state := session.State()
		if !session.Seeded() || state.Status != live.StatusActive {
			if state.Status.Terminal() {
				log.Info().Str("bidder", name).Str("status", string(state.Status)).Msg("auction over, bidder stopping")
				return
			}
			continue
		}
		// Only re-raise when someone else leads.
		if state.LeadingBidderID == live.SelfBidder {
			continue
		}

		amount := state.NextMinBid()
		if maxBid > 0 && amount > maxBid {
			log.Info().Str("bidder", name).Int64("amount", amount).Msg("cap reached, bidder dropping out")
			return
		}

		if err := session.PlaceBid(ctx, amount); err != nil {
			log.Warn().Err(err).Str("bidder", name).Int64("amount", amount).Msg("bid not dispatched")
			continue
		}
		log.Info().Str("bidder", name).Int64("amount", amount).Msg("bid dispatched")
	}
}
