package event

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies a bid-event row in the audit trail
type Type string

const (
	TypeBidAccepted         Type = "BID_ACCEPTED"
	TypeBidRejected         Type = "BID_REJECTED"
	TypeStatusChanged       Type = "STATUS_CHANGED"
	TypeDelayedBidsInjected Type = "DELAYED_BIDS_INJECTED"
	TypeRelistTriggered     Type = "RELIST_TRIGGERED"
	TypeAuctionRelisted     Type = "AUCTION_RELISTED"
)

// BidEvent is one append-only audit row. Rows are never updated or deleted;
// ordering by OccurredAt defines the audit trail. The payload must never
// contain the reserve price or any value derived from it.
type BidEvent struct {
	ID         uuid.UUID      `json:"id"`
	AuctionID  uuid.UUID      `json:"auction_id"`
	ActorID    *uuid.UUID     `json:"actor_id,omitempty"`
	Type       Type           `json:"type"`
	Accepted   bool           `json:"accepted"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewBidAccepted records a successful bid attempt. The payload carries only
// what the bidder themselves submitted.
func NewBidAccepted(auctionID, bidderID uuid.UUID, amountCents int64, mode string, now time.Time) BidEvent {
	actor := bidderID
	return BidEvent{
		ID:        uuid.New(),
		AuctionID: auctionID,
		ActorID:   &actor,
		Type:      TypeBidAccepted,
		Accepted:  true,
		Payload: map[string]any{
			"amount_cents": amountCents,
			"mode":         mode,
		},
		OccurredAt: now,
	}
}

// NewBidRejected records a failed bid attempt with its stable reason code.
func NewBidRejected(auctionID uuid.UUID, bidderID *uuid.UUID, amountCents int64, reason string, now time.Time) BidEvent {
	return BidEvent{
		ID:        uuid.New(),
		AuctionID: auctionID,
		ActorID:   bidderID,
		Type:      TypeBidRejected,
		Accepted:  false,
		Payload: map[string]any{
			"amount_cents": amountCents,
			"reason":       reason,
		},
		OccurredAt: now,
	}
}

// NewStatusChanged records a system-driven lifecycle transition.
func NewStatusChanged(auctionID uuid.UUID, from, to string, now time.Time) BidEvent {
	return BidEvent{
		ID:        uuid.New(),
		AuctionID: auctionID,
		Type:      TypeStatusChanged,
		Accepted:  true,
		Payload: map[string]any{
			"from": from,
			"to":   to,
		},
		OccurredAt: now,
	}
}

// NewDelayedBidsInjected records one injection pass during the LIVE to
// CLOSING transition. Written once per auction per transition.
func NewDelayedBidsInjected(auctionID uuid.UUID, count int, now time.Time) BidEvent {
	return BidEvent{
		ID:        uuid.New(),
		AuctionID: auctionID,
		Type:      TypeDelayedBidsInjected,
		Accepted:  true,
		Payload: map[string]any{
			"injected_count": count,
		},
		OccurredAt: now,
	}
}

// NewRelistTriggered is appended on the predecessor auction when its relist
// is created.
func NewRelistTriggered(auctionID, relistAuctionID uuid.UUID, now time.Time) BidEvent {
	return BidEvent{
		ID:        uuid.New(),
		AuctionID: auctionID,
		Type:      TypeRelistTriggered,
		Accepted:  true,
		Payload: map[string]any{
			"relist_auction_id": relistAuctionID.String(),
		},
		OccurredAt: now,
	}
}

// NewAuctionRelisted is appended on the freshly created successor auction.
func NewAuctionRelisted(auctionID, predecessorID uuid.UUID, now time.Time) BidEvent {
	return BidEvent{
		ID:        uuid.New(),
		AuctionID: auctionID,
		Type:      TypeAuctionRelisted,
		Accepted:  true,
		Payload: map[string]any{
			"relist_of_auction_id": predecessorID.String(),
		},
		OccurredAt: now,
	}
}
