// auctionwatch opens live views on one or more auctions and logs every state
// transition, bid, and notification as it happens. It is the operational lens
// on the synchronization engine: point it at a room and watch the reconciled
// state evolve.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/otobid/otobid/go/clients/marketplace"
	"github.com/otobid/otobid/go/internal/auction/room"
	"github.com/otobid/otobid/go/internal/auction/transport/natsfeed"
	"github.com/otobid/otobid/go/internal/auction/transport/ws"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	auctions := cfg.Auctions
	if args := flag.Args(); len(args) > 0 {
		auctions = args
	}
	if len(auctions) == 0 {
		log.Fatal().Msg("no auction ids given: pass them as arguments or in the config file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport, err := buildTransport(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up transport")
	}
	defer transport.Close()

	manager := room.NewManager(transport, room.Config{
		BidTimeout:    cfg.bidTimeout(),
		Authenticated: os.Getenv("AUCTION_TOKEN") != "",
	})
	go manager.Start(ctx)

	api := marketplace.NewClient(cfg.Server.APIURL, os.Getenv("AUCTION_TOKEN"))

	for _, auctionID := range auctions {
		watchAuction(ctx, manager, api, auctionID)
	}

	<-ctx.Done()
	log.Info().Msg("auctionwatch shutting down")
}

// buildTransport wires the configured transport kind
func buildTransport(ctx context.Context, cfg *Config) (room.Transport, error) {
	switch cfg.Server.Transport {
	case "nats":
		feedCfg := natsfeed.DefaultConfig()
		feedCfg.URL = cfg.Server.NATSURL
		return natsfeed.Connect(feedCfg)
	default:
		wsCfg := ws.DefaultConfig(cfg.Server.WebSocketURL)
		wsCfg.Token = os.Getenv("AUCTION_TOKEN")
		client := ws.NewClient(wsCfg)
		go client.Start(ctx)
		return client, nil
	}
}

// watchAuction opens a room and logs its view until shutdown
func watchAuction(ctx context.Context, manager *room.Manager, api *marketplace.Client, auctionID string) {
	// Pre-connection context for the log line; the room snapshot supersedes it.
	if record, err := api.GetAuction(ctx, auctionID); err != nil {
		log.Warn().Err(err).Str("auction_id", auctionID).Msg("auction lookup failed")
	} else {
		log.Info().
			Str("auction_id", auctionID).
			Str("vehicle", record.Vehicle.Make+" "+record.Vehicle.Model).
			Int64("current_bid", record.CurrentBid).
			Str("status", record.Status).
			Msg("watching auction")
	}

	session, err := manager.Open(ctx, auctionID)
	if err != nil {
		log.Error().Err(err).Str("auction_id", auctionID).Msg("failed to open auction room")
		return
	}

	go session.Countdown().Run(ctx, func(text string, expired bool) {
		state := session.State()
		log.Info().
			Str("auction_id", auctionID).
			Str("remaining", text).
			Bool("expired", expired).
			Int64("current_bid", state.CurrentBid).
			Int("bid_count", state.BidCount).
			Str("status", string(state.Status)).
			Bool("stale", session.Stale()).
			Msg("auction tick")
	})
}
