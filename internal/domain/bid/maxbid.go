package bid

import (
	"time"

	"github.com/google/uuid"
)

// Mode represents how a sealed maximum participates in the auction
type Mode string

const (
	// ModeImmediate bids participate in price derivation as soon as accepted.
	ModeImmediate Mode = "immediate"
	// ModeDelayed bids are registered ahead of time and stay inert until the
	// auction enters its closing phase.
	ModeDelayed Mode = "delayed"
)

// Valid returns true for a known bid mode.
func (m Mode) Valid() bool {
	return m == ModeImmediate || m == ModeDelayed
}

// MaxBid is one bidder's standing sealed maximum for one auction. There is at
// most one row per (auction, bidder); a later bid replaces the amount but
// keeps the original received timestamp for tie-breaking.
type MaxBid struct {
	AuctionID  uuid.UUID `json:"auction_id"`
	BidderID   uuid.UUID `json:"bidder_id"`
	MaxCents   int64     `json:"max_cents"`
	Mode       Mode      `json:"mode"`
	ReceivedAt time.Time `json:"received_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsImmediate returns true if the bid participates in price derivation.
func (b *MaxBid) IsImmediate() bool {
	return b.Mode == ModeImmediate
}
