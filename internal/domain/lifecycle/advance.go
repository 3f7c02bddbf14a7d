package lifecycle

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"bidloft-auction-service/internal/domain/auction"
	"bidloft-auction-service/internal/domain/bid"
	"bidloft-auction-service/internal/domain/event"
	"bidloft-auction-service/internal/domain/pricing"
)

// Policy holds the time constants that drive the auction lifecycle.
type Policy struct {
	ClosingWindow    time.Duration
	SnipeExtension   time.Duration
	DelayedBidCutoff time.Duration
	RelistDelay      time.Duration
	RelistDuration   time.Duration
	PaymentDue       time.Duration
}

// OrderRequest asks the external checkout collaborator to open an unpaid
// order for the auction winner.
type OrderRequest struct {
	AuctionID    uuid.UUID
	WinnerID     uuid.UUID
	AmountCents  int64
	PaymentDueAt time.Time
}

// Outcome is the result of one Advance evaluation: the mutated auction copy,
// the events to append, and the side effects the caller has to carry out.
// Advance itself never writes anything, so both the inline pre-bid check and
// the periodic sweep behave identically.
type Outcome struct {
	Changed bool
	Auction auction.Auction

	// ConvertedBidders lists the DELAYED maxima converted to IMMEDIATE
	// during a LIVE to CLOSING transition, in injection order.
	ConvertedBidders []uuid.UUID

	Events []event.BidEvent

	// Order is non-nil when the transition produced a winner.
	Order *OrderRequest

	// RelistEligible marks an unsold reserve auction whose relist delay has
	// elapsed. The relist generator owns idempotency.
	RelistEligible bool
}

// Advance evaluates one auction against the clock and returns the due
// transition, if any. It is a pure function of (auction, maxBids, now).
func Advance(a auction.Auction, maxBids []bid.MaxBid, now time.Time, policy Policy, incr *pricing.IncrementPolicy) Outcome {
	switch {
	case a.CloseDue(now):
		return beginClosing(a, maxBids, now, policy, incr)
	case a.WindowDue(now):
		return finalize(a, now, policy)
	case a.RelistDue(now, policy.RelistDelay):
		return Outcome{Auction: a, RelistEligible: true}
	}
	return Outcome{Auction: a}
}

// beginClosing moves a LIVE auction past its close time into CLOSING and
// injects any delayed bids into the price derivation.
func beginClosing(a auction.Auction, maxBids []bid.MaxBid, now time.Time, policy Policy, incr *pricing.IncrementPolicy) Outcome {
	from := a.Status
	a.Status = auction.StatusClosing
	if a.ClosingWindowEnd == nil {
		end := now.Add(policy.ClosingWindow)
		a.ClosingWindowEnd = &end
	}
	a.UpdatedAt = now

	out := Outcome{Changed: true}
	out.Events = append(out.Events, event.NewStatusChanged(a.ID, string(from), string(a.Status), now))

	// Delayed bid injection: convert in place and replay each through the
	// proxy derivation in ascending received order, so tie-break fairness
	// between delayed registrations is preserved.
	working := make([]bid.MaxBid, len(maxBids))
	copy(working, maxBids)

	var delayed []int
	for i, b := range working {
		if b.Mode == bid.ModeDelayed {
			delayed = append(delayed, i)
		}
	}
	sort.SliceStable(delayed, func(x, y int) bool {
		return working[delayed[x]].ReceivedAt.Before(working[delayed[y]].ReceivedAt)
	})

	for _, i := range delayed {
		working[i].Mode = bid.ModeImmediate
		d := pricing.Derive(working, a.StartingPriceCents, a.ReservePriceCents, incr)
		applyDerivation(&a, d, now)
		a.BidCount++
		out.ConvertedBidders = append(out.ConvertedBidders, working[i].BidderID)
	}

	if len(delayed) > 0 {
		out.Events = append(out.Events, event.NewDelayedBidsInjected(a.ID, len(delayed), now))
	}

	out.Auction = a
	return out
}

// finalize closes a CLOSING auction whose window has run out.
func finalize(a auction.Auction, now time.Time, policy Policy) Outcome {
	from := a.Status

	sold := a.BidCount > 0 && (!a.HasReserve() || a.ReserveMet)

	out := Outcome{Changed: true}
	if sold {
		a.Status = auction.StatusClosedWaitingOnPayment
		out.Order = &OrderRequest{
			AuctionID:    a.ID,
			WinnerID:     *a.CurrentLeaderID,
			AmountCents:  a.CurrentPriceCents,
			PaymentDueAt: now.Add(policy.PaymentDue),
		}
	} else {
		a.Status = auction.StatusClosedNotSold
	}
	a.ClosingWindowEnd = nil
	a.UpdatedAt = now

	out.Events = append(out.Events, event.NewStatusChanged(a.ID, string(from), string(a.Status), now))
	out.Auction = a
	return out
}

// applyDerivation copies a proxy derivation onto the auction's public state.
func applyDerivation(a *auction.Auction, d pricing.Derivation, now time.Time) {
	a.CurrentPriceCents = d.PriceCents
	a.CurrentLeaderID = d.LeaderID
	a.CurrentLeaderMaxCents = d.LeaderMaxCents
	a.ReserveMet = d.ReserveMet
	a.UpdatedAt = now
}

// ApplyDerivation is the exported form used by the bidding engine.
func ApplyDerivation(a *auction.Auction, d pricing.Derivation, now time.Time) {
	applyDerivation(a, d, now)
}

// Relist builds the successor auction for an unsold reserve listing: same
// listing and prices, fresh derived state, linked back to its predecessor.
// Creation must be guarded by the uniqueness of the predecessor reference.
func Relist(pred auction.Auction, now time.Time, policy Policy) (auction.Auction, []event.BidEvent) {
	predID := pred.ID
	next := auction.Auction{
		ID:                 uuid.New(),
		ListingID:          pred.ListingID,
		Status:             auction.StatusLive,
		StartingPriceCents: pred.StartingPriceCents,
		ReservePriceCents:  pred.ReservePriceCents,
		CurrentPriceCents:  pred.StartingPriceCents,
		StartTime:          now,
		CloseTime:          now.Add(policy.RelistDuration),
		RelistOfAuctionID:  &predID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	events := []event.BidEvent{
		event.NewRelistTriggered(pred.ID, next.ID, now),
		event.NewAuctionRelisted(next.ID, pred.ID, now),
	}
	return next, events
}
