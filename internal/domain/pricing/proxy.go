package pricing

import (
	"sort"

	"github.com/google/uuid"

	"bidloft-auction-service/internal/domain/bid"
)

// Derivation is the publicly visible state computed from the sealed maxima.
type Derivation struct {
	PriceCents     int64
	LeaderID       *uuid.UUID
	LeaderMaxCents *int64
	ReserveMet     bool
}

// Derive runs the proxy-bid computation over the active IMMEDIATE maxima of
// one auction. The system bids on the leader's behalf only as far as needed:
// one increment over the runner-up, capped at the leader's own maximum, and
// lifted to the reserve once the leader's maximum covers it.
//
// Ties on the maximum go to the bidder whose standing bid was received
// earliest, and an exact tie leads at that amount with no increment added.
// With fewer than two bidders the starting price acts as a virtual runner-up.
func Derive(bids []bid.MaxBid, startingPriceCents int64, reservePriceCents *int64, policy *IncrementPolicy) Derivation {
	active := make([]bid.MaxBid, 0, len(bids))
	for _, b := range bids {
		if b.IsImmediate() {
			active = append(active, b)
		}
	}

	if len(active) == 0 {
		return Derivation{PriceCents: startingPriceCents}
	}

	sort.SliceStable(active, func(i, j int) bool {
		if active[i].MaxCents != active[j].MaxCents {
			return active[i].MaxCents > active[j].MaxCents
		}
		return active[i].ReceivedAt.Before(active[j].ReceivedAt)
	})

	leader := active[0]
	leaderMax := leader.MaxCents

	runnerUpMax := startingPriceCents
	if len(active) > 1 {
		runnerUpMax = active[1].MaxCents
	}

	var basePrice int64
	if runnerUpMax == leaderMax {
		// Exact tie: the earliest bidder leads at that amount.
		basePrice = leaderMax
	} else {
		basePrice = runnerUpMax + policy.IncrementFor(runnerUpMax)
		if basePrice > leaderMax {
			basePrice = leaderMax
		}
	}
	if basePrice < startingPriceCents {
		basePrice = startingPriceCents
	}

	reserveMet := reservePriceCents != nil && leaderMax >= *reservePriceCents

	finalPrice := basePrice
	if reserveMet && finalPrice < *reservePriceCents {
		finalPrice = *reservePriceCents
	}

	leaderID := leader.BidderID
	max := leaderMax
	return Derivation{
		PriceCents:     finalPrice,
		LeaderID:       &leaderID,
		LeaderMaxCents: &max,
		ReserveMet:     reserveMet,
	}
}
