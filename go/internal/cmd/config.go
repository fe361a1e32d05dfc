package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the auctionwatch configuration, loaded from YAML with environment
// variable overrides for the connection endpoints.
type Config struct {
	Server struct {
		WebSocketURL string `yaml:"ws_url"`
		APIURL       string `yaml:"api_url"`
		NATSURL      string `yaml:"nats_url"`
		// Transport selects how room events arrive: "ws" (default) or "nats"
		Transport string `yaml:"transport"`
	} `yaml:"server"`

	Auctions []string `yaml:"auctions"`

	BidTimeoutSec int    `yaml:"bid_timeout_sec"`
	LogLevel      string `yaml:"log_level"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server.WebSocketURL = getEnv("AUCTION_WS_URL", defaultString(config.Server.WebSocketURL, "ws://localhost:5000/ws"))
	config.Server.APIURL = getEnv("AUCTION_API_URL", defaultString(config.Server.APIURL, "http://localhost:5000"))
	config.Server.NATSURL = getEnv("AUCTION_NATS_URL", defaultString(config.Server.NATSURL, "nats://localhost:4222"))
	config.Server.Transport = getEnv("AUCTION_TRANSPORT", defaultString(config.Server.Transport, "ws"))
	config.BidTimeoutSec = getEnvAsInt("AUCTION_BID_TIMEOUT_SEC", defaultInt(config.BidTimeoutSec, 10))
	config.LogLevel = getEnv("LOG_LEVEL", defaultString(config.LogLevel, "info"))

	return &config, nil
}

func (c *Config) bidTimeout() time.Duration {
	return time.Duration(c.BidTimeoutSec) * time.Second
}

func defaultString(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func defaultInt(value, fallback int) int {
	if value != 0 {
		return value
	}
	return fallback
}
