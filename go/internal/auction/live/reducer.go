package live

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/otobid/otobid/go/internal/auction/events"
)

// Notice is a human-facing message derived from an event
type Notice struct {
	Tone    Tone
	Message string
}

// BidResolution settles the viewer's in-flight submission, if any
type BidResolution struct {
	Accepted bool
	Message  string
}

// Effects are the side effects a reduction asks its caller to carry out.
// The reducer itself never touches the aggregator or the submitter.
type Effects struct {
	Notices    []Notice
	Resolution *BidResolution
}

func (e *Effects) notify(tone Tone, format string, args ...interface{}) {
	e.Notices = append(e.Notices, Notice{Tone: tone, Message: fmt.Sprintf(format, args...)})
}

// Apply reduces one inbound event against a snapshot and returns the next
// snapshot plus derived side effects. It is a total function: malformed or
// out-of-order events leave the snapshot unchanged. It never performs I/O.
//
// Invariants enforced while the auction is active:
//   - CurrentBid and BidCount never decrease
//   - EndTime only moves forward
//   - status transitions are one-way into ENDED/CANCELLED
//   - a bid id already in the ring is never applied twice
//
// The one exception is the join snapshot, which is authoritative by
// definition and overwrites unconditionally.
func Apply(snap Snapshot, env events.Envelope) (Snapshot, Effects, error) {
	var eff Effects

	payload, err := events.ParsePayload(env)
	if err != nil {
		return snap, eff, fmt.Errorf("parse %s payload: %w", env.Event, err)
	}
	if payload == nil {
		log.Debug().
			Str("auction_id", snap.State.ID).
			Str("event", string(env.Event)).
			Msg("ignoring unknown event type")
		return snap, eff, nil
	}

	switch p := payload.(type) {
	case events.AuctionJoinedPayload:
		return applyJoined(snap, p), eff, nil

	case events.BidHistoryPayload:
		return applyHistory(snap, p), eff, nil

	case events.BidPlacedPayload:
		return applyBidPlaced(snap, p, &eff), eff, nil

	case events.AuctionUpdatedPayload:
		return applyUpdated(snap, p, &eff), eff, nil

	case events.UserOutbidPayload:
		if snap.State.Status.Terminal() {
			return snap, eff, nil
		}
		eff.notify(ToneWarn, "You've been outbid — the new leading bid is EGP %d", p.NewBid)
		return snap, eff, nil

	case events.AuctionEndedPayload:
		return applyEnded(snap, p, &eff), eff, nil

	case events.AuctionEndingSoonPayload:
		if snap.State.Status.Terminal() {
			return snap, eff, nil
		}
		eff.notify(ToneWarn, "Auction ending soon — about %d minutes left", p.MinutesLeft)
		return snap, eff, nil

	case events.BidErrorPayload:
		// No state mutation: the server rejected the last submission.
		eff.Resolution = &BidResolution{Accepted: false, Message: p.Message}
		eff.notify(ToneWarn, "Bid rejected: %s", p.Message)
		return snap, eff, nil
	}

	return snap, eff, nil
}

// applyJoined installs the authoritative join snapshot. Always accepted
// regardless of monotonicity; it resolves whatever was missed while away.
func applyJoined(snap Snapshot, p events.AuctionJoinedPayload) Snapshot {
	state := AuctionState{
		ID:              p.AuctionID,
		Status:          ParseStatus(p.Status),
		CurrentBid:      p.CurrentBid,
		BidCount:        p.BidCount,
		MinBidIncrement: p.MinBidIncrement,
		EndTime:         p.EndTime,
		ReservePrice:    p.ReservePrice,
		StartPrice:      p.StartPrice,
		LeadingBidderID: p.LeadingBidderID,
	}
	if state.ID == "" {
		state.ID = snap.State.ID
	}
	// Reserve and start price are fixed for the auction's lifetime; keep the
	// loaded values when a later snapshot omits them.
	if state.ReservePrice == 0 {
		state.ReservePrice = snap.State.ReservePrice
	}
	if state.StartPrice == 0 {
		state.StartPrice = snap.State.StartPrice
	}
	snap.State = state
	return snap
}

// applyHistory replaces the bid ring with the server's recent-bid list
func applyHistory(snap Snapshot, p events.BidHistoryPayload) Snapshot {
	bids := make([]BidRecord, 0, len(p.Bids))
	for _, b := range p.Bids {
		bids = append(bids, roomBidRecord(b))
		if len(bids) == RingCap {
			break
		}
	}
	snap.Bids = bids
	return snap
}

func applyBidPlaced(snap Snapshot, p events.BidPlacedPayload, eff *Effects) Snapshot {
	if snap.State.Status.Terminal() {
		log.Debug().
			Str("auction_id", snap.State.ID).
			Str("bid_id", p.Bid.ID).
			Msg("dropping bid confirmation for terminal auction")
		return snap
	}
	if snap.HasBid(p.Bid.ID) {
		log.Debug().
			Str("auction_id", snap.State.ID).
			Str("bid_id", p.Bid.ID).
			Msg("dropping duplicate bid confirmation")
		return snap
	}

	snap = snap.withBid(BidRecord{
		ID:        p.Bid.ID,
		BidderID:  SelfBidder,
		Amount:    p.Bid.Amount,
		Timestamp: p.Bid.Timestamp,
	})

	// The room broadcast excludes the bidder's own connection, so the state
	// fragment on the confirmation is what keeps the bidder's view current.
	if p.Auction != nil {
		snap.State = mergeFragment(snap.State, *p.Auction)
	} else if p.Bid.Amount > snap.State.CurrentBid {
		snap.State.CurrentBid = p.Bid.Amount
		snap.State.BidCount++
		snap.State.LeadingBidderID = SelfBidder
	}

	eff.Resolution = &BidResolution{Accepted: true}
	eff.notify(ToneSuccess, "Your bid of EGP %d is in — you're the leading bidder", p.Bid.Amount)

	if p.AutoExtended && p.AutoExtendInfo != nil {
		snap = extendEndTime(snap, p.AutoExtendInfo.NewEndTime, eff)
	}
	return snap
}

func applyUpdated(snap Snapshot, p events.AuctionUpdatedPayload, eff *Effects) Snapshot {
	if snap.State.Status.Terminal() {
		log.Debug().
			Str("auction_id", snap.State.ID).
			Int64("current_bid", p.CurrentBid).
			Msg("dropping auction update for terminal auction")
		return snap
	}

	// Monotonicity guard: a regressive update is out of order, and an update
	// that advances neither amount nor count is a duplicate delivery. Either
	// way it is dropped, never applied.
	if p.CurrentBid < snap.State.CurrentBid ||
		(p.CurrentBid == snap.State.CurrentBid && p.BidCount <= snap.State.BidCount) {
		log.Debug().
			Str("auction_id", snap.State.ID).
			Int64("update_bid", p.CurrentBid).
			Int64("current_bid", snap.State.CurrentBid).
			Int("update_count", p.BidCount).
			Int("bid_count", snap.State.BidCount).
			Msg("dropping stale or duplicate auction update")
		return snap
	}

	snap.State.CurrentBid = p.CurrentBid
	if p.BidCount > snap.State.BidCount {
		snap.State.BidCount = p.BidCount
	}
	if p.MinBidIncrement > 0 {
		snap.State.MinBidIncrement = p.MinBidIncrement
	}
	if p.LeadingBidderID != "" {
		snap.State.LeadingBidderID = p.LeadingBidderID
	}

	if p.NewBid != nil && !snap.HasBid(p.NewBid.ID) {
		snap = snap.withBid(roomBidRecord(*p.NewBid))
	}

	if p.AutoExtended && p.NewEndTime != nil {
		snap = extendEndTime(snap, *p.NewEndTime, eff)
	}
	return snap
}

func applyEnded(snap Snapshot, p events.AuctionEndedPayload, eff *Effects) Snapshot {
	if snap.State.Status.Terminal() {
		log.Debug().
			Str("auction_id", snap.State.ID).
			Msg("dropping repeated auction_ended")
		return snap
	}

	snap.State.Status = StatusEnded
	if p.FinalBid > snap.State.CurrentBid {
		snap.State.CurrentBid = p.FinalBid
	}
	if p.WinnerID != "" {
		snap.State.LeadingBidderID = p.WinnerID
	}

	if p.ReserveMet {
		eff.notify(ToneSuccess, "Auction ended — reserve met, sold at EGP %d", snap.State.CurrentBid)
	} else {
		eff.notify(ToneInfo, "Auction ended — reserve was not met")
	}
	return snap
}

// mergeFragment folds the confirmation's state fragment in under the same
// monotonicity rules as a room broadcast. An accepted own bid makes the
// viewer the leading bidder.
func mergeFragment(state AuctionState, f events.AuctionFragment) AuctionState {
	if f.CurrentBid > state.CurrentBid {
		state.CurrentBid = f.CurrentBid
	}
	if f.BidCount > state.BidCount {
		state.BidCount = f.BidCount
	}
	if f.MinBidIncrement > 0 {
		state.MinBidIncrement = f.MinBidIncrement
	}
	if f.EndTime != nil && f.EndTime.After(state.EndTime) {
		state.EndTime = *f.EndTime
	}
	state.LeadingBidderID = SelfBidder
	return state
}

// extendEndTime moves the end time forward, never backward, and announces the
// extension. The server may re-deliver an extension; an equal or earlier end
// time is a no-op.
func extendEndTime(snap Snapshot, newEnd time.Time, eff *Effects) Snapshot {
	if !newEnd.After(snap.State.EndTime) {
		log.Debug().
			Str("auction_id", snap.State.ID).
			Time("new_end", newEnd).
			Time("end_time", snap.State.EndTime).
			Msg("dropping non-forward end time extension")
		return snap
	}
	snap.State.EndTime = newEnd
	eff.notify(ToneWarn, "Bidding time extended — auction now ends at %s", newEnd.Format("15:04:05"))
	return snap
}

func roomBidRecord(b events.RoomBid) BidRecord {
	bidder := b.DisplayName
	if b.IsYou {
		bidder = SelfBidder
	}
	return BidRecord{
		ID:        b.ID,
		BidderID:  bidder,
		Amount:    b.Amount,
		Timestamp: b.Timestamp,
	}
}
