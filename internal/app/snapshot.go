package app

import (
	"time"

	"bidloft-auction-service/internal/domain/auction"
	"bidloft-auction-service/internal/domain/pricing"
	"bidloft-auction-service/internal/ports/inbound"
	"bidloft-auction-service/internal/ports/outbound"
)

// snapshotOf builds the public read model for one auction. ReserveMet stays
// nil when there is no reserve, and the reserve price itself never appears.
func snapshotOf(a *auction.Auction, incr *pricing.IncrementPolicy) inbound.Snapshot {
	snap := inbound.Snapshot{
		AuctionID:         a.ID,
		Status:            string(a.Status),
		CurrentPriceCents: a.CurrentPriceCents,
		BidCount:          a.BidCount,
		ClosingWindowEnd:  a.ClosingWindowEnd,
	}

	if a.HasReserve() {
		met := a.ReserveMet
		snap.ReserveMet = &met
	}

	if a.BidCount == 0 {
		snap.MinimumNextBidCents = a.StartingPriceCents
	} else {
		snap.MinimumNextBidCents = incr.MinimumToBeat(a.CurrentPriceCents)
	}

	return snap
}

// snapshotEvent wraps a snapshot for the realtime broadcaster.
func snapshotEvent(snap inbound.Snapshot) outbound.Event {
	data := map[string]interface{}{
		"auction_id":             snap.AuctionID.String(),
		"status":                 snap.Status,
		"current_price_cents":    snap.CurrentPriceCents,
		"bid_count":              snap.BidCount,
		"minimum_next_bid_cents": snap.MinimumNextBidCents,
	}
	if snap.ReserveMet != nil {
		data["reserve_met"] = *snap.ReserveMet
	}
	if snap.ClosingWindowEnd != nil {
		data["closing_window_end"] = snap.ClosingWindowEnd.UTC().Format(time.RFC3339)
	}

	return outbound.Event{
		Type:      outbound.EventTypeSnapshot,
		AuctionID: snap.AuctionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}
