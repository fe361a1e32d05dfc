package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the frame every auction room message travels in, inbound and
// outbound. The payload stays raw until a consumer parses it for the event type.
type Envelope struct {
	Event Type            `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Type identifies an auction room event
type Type string

// Inbound events, produced by the auction server
const (
	TypeAuctionJoined     Type = "auction_joined"
	TypeBidHistory        Type = "bid_history"
	TypeBidPlaced         Type = "bid_placed"
	TypeAuctionUpdated    Type = "auction_updated"
	TypeUserOutbid        Type = "user_outbid"
	TypeAuctionEnded      Type = "auction_ended"
	TypeAuctionEndingSoon Type = "auction_ending_soon"
	TypeBidError          Type = "bid_error"
)

// Outbound commands, consumed by the auction server
const (
	TypeJoinAuction  Type = "join_auction"
	TypeLeaveAuction Type = "leave_auction"
	TypePlaceBid     Type = "place_bid"
)

// AuctionJoinedPayload is the authoritative state snapshot sent on join.
// Together with the bid_history that follows it, it fully replaces local state.
type AuctionJoinedPayload struct {
	AuctionID       string    `json:"auctionId"`
	CurrentBid      int64     `json:"currentBid"`
	BidCount        int       `json:"bidCount"`
	MinBidIncrement int64     `json:"minBidIncrement"`
	EndTime         time.Time `json:"endTime"`
	Status          string    `json:"status"`
	ReservePrice    int64     `json:"reservePrice,omitempty"`
	StartPrice      int64     `json:"startPrice,omitempty"`
	LeadingBidderID string    `json:"leadingBidderId,omitempty"`
}

// RoomBid is a bid as seen by room members. Bidder names arrive anonymized;
// IsYou marks the viewer's own bids.
type RoomBid struct {
	ID          string    `json:"id"`
	Amount      int64     `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
	DisplayName string    `json:"displayName,omitempty"`
	IsYou       bool      `json:"isYou,omitempty"`
}

// BidHistoryPayload seeds the recent-bid ring on join
type BidHistoryPayload struct {
	AuctionID string    `json:"auctionId,omitempty"`
	Bids      []RoomBid `json:"bids"`
}

// Bid is the record echoed back to the client whose submission was accepted
type Bid struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auctionId,omitempty"`
	BidderID  string    `json:"bidderId,omitempty"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// AutoExtendInfo describes a server-driven end time extension
type AutoExtendInfo struct {
	NewEndTime time.Time `json:"newEndTime"`
}

// AuctionFragment is the partial auction state the server attaches to a bid
// confirmation so the bidder does not depend on the room broadcast, which
// excludes the bidder's own connection.
type AuctionFragment struct {
	CurrentBid      int64      `json:"currentBid"`
	BidCount        int        `json:"bidCount"`
	MinBidIncrement int64      `json:"minBidIncrement"`
	EndTime         *time.Time `json:"endTime,omitempty"`
}

// BidPlacedPayload confirms the viewer's own submission
type BidPlacedPayload struct {
	Bid            Bid              `json:"bid"`
	Auction        *AuctionFragment `json:"auction,omitempty"`
	AutoExtended   bool             `json:"autoExtended,omitempty"`
	AutoExtendInfo *AutoExtendInfo  `json:"autoExtendInfo,omitempty"`
}

// AuctionUpdatedPayload is broadcast to all room members on any accepted bid
type AuctionUpdatedPayload struct {
	AuctionID       string     `json:"auctionId"`
	CurrentBid      int64      `json:"currentBid"`
	BidCount        int        `json:"bidCount"`
	MinBidIncrement int64      `json:"minBidIncrement"`
	LeadingBidderID string     `json:"leadingBidderId,omitempty"`
	NewBid          *RoomBid   `json:"newBid,omitempty"`
	AutoExtended    bool       `json:"autoExtended,omitempty"`
	NewEndTime      *time.Time `json:"newEndTime,omitempty"`
}

// UserOutbidPayload is targeted at the previous leading bidder
type UserOutbidPayload struct {
	AuctionID string `json:"auctionId"`
	NewBid    int64  `json:"newBid"`
	YourBid   int64  `json:"yourBid"`
}

// AuctionEndedPayload is the terminal transition for an auction
type AuctionEndedPayload struct {
	AuctionID  string `json:"auctionId"`
	WinnerID   string `json:"winnerId,omitempty"`
	FinalBid   int64  `json:"finalBid,omitempty"`
	ReserveMet bool   `json:"reserveMet"`
}

// AuctionEndingSoonPayload is advisory; the local countdown stays the source
// of truth for exact remaining time.
type AuctionEndingSoonPayload struct {
	AuctionID   string `json:"auctionId"`
	MinutesLeft int    `json:"minutesLeft"`
}

// BidErrorPayload rejects the viewer's last submission
type BidErrorPayload struct {
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// JoinAuctionPayload and friends are the outbound command payloads
type JoinAuctionPayload struct {
	AuctionID string `json:"auctionId"`
}

type LeaveAuctionPayload struct {
	AuctionID string `json:"auctionId"`
}

type PlaceBidPayload struct {
	AuctionID string `json:"auctionId"`
	Amount    int64  `json:"amount"`
}

// ParsePayload parses the envelope data into the payload struct for its type
func ParsePayload(env Envelope) (interface{}, error) {
	switch env.Event {
	case TypeAuctionJoined:
		var payload AuctionJoinedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case TypeBidHistory:
		var payload BidHistoryPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case TypeBidPlaced:
		var payload BidPlacedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case TypeAuctionUpdated:
		var payload AuctionUpdatedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case TypeUserOutbid:
		var payload UserOutbidPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case TypeAuctionEnded:
		var payload AuctionEndedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case TypeAuctionEndingSoon:
		var payload AuctionEndingSoonPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case TypeBidError:
		var payload BidErrorPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil // Unknown event type
	}
}

// AuctionID peeks the auction id out of the payload without a full parse.
// Events targeted at a single connection (bid_error) carry no auction id and
// return the empty string.
func (e Envelope) AuctionID() string {
	var probe struct {
		AuctionID string `json:"auctionId"`
		Bid       *struct {
			AuctionID string `json:"auctionId"`
		} `json:"bid"`
	}
	if err := json.Unmarshal(e.Data, &probe); err != nil {
		return ""
	}
	if probe.AuctionID != "" {
		return probe.AuctionID
	}
	if probe.Bid != nil {
		return probe.Bid.AuctionID
	}
	return ""
}

// NewCommand wraps an outbound payload into an envelope
func NewCommand(event Type, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// NewJoinCommand builds the join_auction command for an auction room
func NewJoinCommand(auctionID string) (Envelope, error) {
	return NewCommand(TypeJoinAuction, JoinAuctionPayload{AuctionID: auctionID})
}

// NewLeaveCommand builds the leave_auction command for an auction room
func NewLeaveCommand(auctionID string) (Envelope, error) {
	return NewCommand(TypeLeaveAuction, LeaveAuctionPayload{AuctionID: auctionID})
}

// NewPlaceBidCommand builds the place_bid command
func NewPlaceBidCommand(auctionID string, amount int64) (Envelope, error) {
	return NewCommand(TypePlaceBid, PlaceBidPayload{AuctionID: auctionID, Amount: amount})
}
