package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/otobid/otobid/go/clients"
)

// Client talks to the marketplace's request/response APIs: the auction lookup
// used to render a view before the room connects, the paged bid-history
// fallback, and the payment-status lookup once an auction has ended.
type Client struct {
	base *clients.BaseClient
}

// NewClient creates a marketplace API client. The token is optional; without
// it the API serves public auction data only.
func NewClient(baseURL, token string) *Client {
	base := clients.NewBaseClient(baseURL)
	base.SetHeader("Accept", "application/json")
	if token != "" {
		base.SetHeader("Authorization", "Bearer "+token)
	}
	return &Client{base: base}
}

// Auction is the initial vehicle/auction record
type Auction struct {
	ID              string    `json:"id"`
	Status          string    `json:"status"`
	CurrentBid      int64     `json:"currentBid"`
	BidCount        int       `json:"bidCount"`
	MinBidIncrement int64     `json:"minBidIncrement"`
	StartPrice      int64     `json:"startingBid"`
	ReservePrice    int64     `json:"reservePrice"`
	EndTime         time.Time `json:"endTime"`
	LeadingBidderID string    `json:"leadingBidderId"`
	Vehicle         Vehicle   `json:"vehicle"`
}

// Vehicle is the listing summary attached to an auction record
type Vehicle struct {
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  int    `json:"year"`
}

// HistoryBid is one bid row from the paged history API
type HistoryBid struct {
	ID          string    `json:"id"`
	Amount      int64     `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
	DisplayName string    `json:"displayName"`
	IsYou       bool      `json:"isYou"`
}

// BidPage is one page of bid history
type BidPage struct {
	Bids    []HistoryBid `json:"bids"`
	Page    int          `json:"page"`
	HasMore bool         `json:"hasMore"`
}

// PaymentStatus reports settlement progress for an ended auction
type PaymentStatus struct {
	AuctionID string `json:"auctionId"`
	Status    string `json:"status"`
	AmountDue int64  `json:"amountDue"`
	DueBy     string `json:"dueBy,omitempty"`
}

// GetAuction fetches the auction record by id
func (c *Client) GetAuction(ctx context.Context, auctionID string) (*Auction, error) {
	body, err := c.base.Get(ctx, fmt.Sprintf(auctionEndpoint, auctionID))
	if err != nil {
		return nil, fmt.Errorf("failed to get auction %s: %w", auctionID, err)
	}

	var auction Auction
	if err := json.Unmarshal(body, &auction); err != nil {
		return nil, fmt.Errorf("failed to parse auction response: %w", err)
	}
	return &auction, nil
}

// BidHistory fetches one page of past bids. Used only as a pre-connection
// fallback; once the room is joined, bid_history over the socket supersedes it.
func (c *Client) BidHistory(ctx context.Context, auctionID string, page, limit int) (*BidPage, error) {
	body, err := c.base.Get(ctx, fmt.Sprintf(bidHistoryEndpoint, auctionID, page, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get bid history for %s: %w", auctionID, err)
	}

	var result BidPage
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse bid history response: %w", err)
	}
	return &result, nil
}

// GetPaymentStatus fetches settlement status once an auction reached ENDED
func (c *Client) GetPaymentStatus(ctx context.Context, auctionID string) (*PaymentStatus, error) {
	body, err := c.base.Get(ctx, fmt.Sprintf(paymentStatusEndpoint, auctionID))
	if err != nil {
		return nil, fmt.Errorf("failed to get payment status for %s: %w", auctionID, err)
	}

	var status PaymentStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to parse payment status response: %w", err)
	}
	return &status, nil
}
