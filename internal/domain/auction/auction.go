package auction

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the current status of an auction
type Status string

const (
	StatusDraft                 Status = "draft"
	StatusLive                  Status = "live"
	StatusClosing               Status = "closing"
	StatusClosedNotSold         Status = "closed_not_sold"
	StatusClosedWaitingOnPayment Status = "closed_waiting_on_payment"
	StatusClosedPaid            Status = "closed_paid"
)

// Auction represents one auction round for a listing. Amounts are in
// minor currency units (cents).
type Auction struct {
	ID                  uuid.UUID  `json:"id"`
	ListingID           uuid.UUID  `json:"listing_id"`
	Status              Status     `json:"status"`
	StartingPriceCents  int64      `json:"starting_price_cents"`
	ReservePriceCents   *int64     `json:"-"`
	ReserveMet          bool       `json:"reserve_met"`
	CurrentPriceCents   int64      `json:"current_price_cents"`
	CurrentLeaderID     *uuid.UUID `json:"current_leader_id,omitempty"`
	CurrentLeaderMaxCents *int64   `json:"-"`
	BidCount            int        `json:"bid_count"`
	StartTime           time.Time  `json:"start_time"`
	CloseTime           time.Time  `json:"close_time"`
	ClosingWindowEnd    *time.Time `json:"closing_window_end,omitempty"`
	RelistOfAuctionID   *uuid.UUID `json:"relist_of_auction_id,omitempty"`
	Version             int64      `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// HasReserve returns true if the seller set a hidden reserve price.
func (a *Auction) HasReserve() bool {
	return a.ReservePriceCents != nil
}

// CanBid returns true if a bid can be placed on this auction
func (a *Auction) CanBid() bool {
	return a.Status == StatusLive || a.Status == StatusClosing
}

// IsClosed returns true once the auction has reached a closed status.
func (a *Auction) IsClosed() bool {
	switch a.Status {
	case StatusClosedNotSold, StatusClosedWaitingOnPayment, StatusClosedPaid:
		return true
	}
	return false
}

// CloseDue returns true when a LIVE auction's scheduled close time has passed.
func (a *Auction) CloseDue(now time.Time) bool {
	return a.Status == StatusLive && !now.Before(a.CloseTime)
}

// WindowDue returns true when a CLOSING auction's window end has passed.
func (a *Auction) WindowDue(now time.Time) bool {
	return a.Status == StatusClosing && a.ClosingWindowEnd != nil && !now.Before(*a.ClosingWindowEnd)
}

// RelistDue returns true when an unsold reserve auction has waited out the
// relist delay. The caller still has to verify no relist exists yet.
func (a *Auction) RelistDue(now time.Time, delay time.Duration) bool {
	return a.Status == StatusClosedNotSold && a.HasReserve() && !now.Before(a.UpdatedAt.Add(delay))
}

// ExtendClosingWindow pushes the closing window end out to newEnd. The window
// only ever grows, never shrinks.
func (a *Auction) ExtendClosingWindow(newEnd time.Time) {
	if a.ClosingWindowEnd == nil || newEnd.After(*a.ClosingWindowEnd) {
		end := newEnd
		a.ClosingWindowEnd = &end
	}
}
