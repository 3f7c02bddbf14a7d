package inbound

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bidloft-auction-service/internal/domain/bid"
	"bidloft-auction-service/internal/domain/event"
	"bidloft-auction-service/internal/domain/shared"
)

// BiddingService defines the bid-facing operations of the auction core
type BiddingService interface {
	// PlaceBid validates and applies one bid attempt. Business rejections
	// come back as a populated RejectionReason on the result, not as errors.
	PlaceBid(ctx context.Context, req PlaceBidRequest) (*BidResult, error)

	// GetSnapshot returns the public view of an auction. Safe for anonymous
	// callers; the reserve price is never included.
	GetSnapshot(ctx context.Context, auctionID uuid.UUID, now time.Time) (*Snapshot, error)

	// GetEvents returns the append-only audit trail for an auction.
	GetEvents(ctx context.Context, auctionID uuid.UUID) ([]event.BidEvent, error)
}

// LifecycleService drives time-based auction transitions
type LifecycleService interface {
	// AdvanceAuction applies any due transition to a single auction.
	AdvanceAuction(ctx context.Context, auctionID uuid.UUID, now time.Time) (bool, error)

	// AdvanceDue sweeps all auctions with a pending due transition and
	// returns how many changed.
	AdvanceDue(ctx context.Context, now time.Time) (int, error)
}

// PlaceBidRequest carries one bid attempt. BidderID comes from the upstream
// identity collaborator and is trusted as given.
type PlaceBidRequest struct {
	AuctionID   uuid.UUID `json:"auction_id"`
	BidderID    uuid.UUID `json:"bidder_id"`
	AmountCents int64     `json:"amount_cents"`
	Mode        bid.Mode  `json:"mode"`
	Now         time.Time `json:"-"`
}

// BidResult is the outcome of a bid attempt
type BidResult struct {
	Accepted          bool                   `json:"accepted"`
	Reason            shared.RejectionReason `json:"reason,omitempty"`
	CurrentPriceCents int64                  `json:"current_price_cents"`
	LeaderID          *uuid.UUID             `json:"leader_id,omitempty"`
	ReserveMet        bool                   `json:"reserve_met"`
	BidCount          int                    `json:"bid_count"`
	ClosingWindowEnd  *time.Time             `json:"closing_window_end,omitempty"`
}

// Snapshot is the public read model of one auction. ReserveMet is nil when
// the auction carries no reserve at all.
type Snapshot struct {
	AuctionID           uuid.UUID  `json:"auction_id"`
	Status              string     `json:"status"`
	CurrentPriceCents   int64      `json:"current_price_cents"`
	BidCount            int        `json:"bid_count"`
	ReserveMet          *bool      `json:"reserve_met,omitempty"`
	ClosingWindowEnd    *time.Time `json:"closing_window_end,omitempty"`
	MinimumNextBidCents int64      `json:"minimum_next_bid_cents"`
}
