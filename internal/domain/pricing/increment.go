package pricing

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CentsPerUnit is the minor-unit factor: bids must be whole currency units.
const CentsPerUnit = 100

// Tier maps a price floor (inclusive, in cents) to the bid increment that
// applies from that floor up to the next tier's floor.
type Tier struct {
	FloorCents     int64
	IncrementCents int64
}

// IncrementPolicy is a monotonic, non-decreasing step function over price
// tiers. Tier breakpoints are business policy data and come from config.
type IncrementPolicy struct {
	tiers []Tier
}

// DefaultTiers is the fallback increment table. The sub-25.00 and
// 50.00-74.99 steps are fixed marketplace policy; the rest scale with price.
var DefaultTiers = []Tier{
	{FloorCents: 0, IncrementCents: 100},
	{FloorCents: 2500, IncrementCents: 200},
	{FloorCents: 5000, IncrementCents: 300},
	{FloorCents: 7500, IncrementCents: 500},
	{FloorCents: 10000, IncrementCents: 1000},
	{FloorCents: 25000, IncrementCents: 2500},
	{FloorCents: 50000, IncrementCents: 5000},
}

// NewIncrementPolicy validates the tier table: the first tier must start at
// zero and both floors and increments must be strictly/weakly increasing.
func NewIncrementPolicy(tiers []Tier) (*IncrementPolicy, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("increment policy needs at least one tier")
	}

	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FloorCents < sorted[j].FloorCents })

	if sorted[0].FloorCents != 0 {
		return nil, fmt.Errorf("first increment tier must start at 0, got %d", sorted[0].FloorCents)
	}

	for i, t := range sorted {
		if t.IncrementCents <= 0 {
			return nil, fmt.Errorf("tier %d has non-positive increment %d", i, t.IncrementCents)
		}
		if i > 0 {
			if t.FloorCents == sorted[i-1].FloorCents {
				return nil, fmt.Errorf("duplicate tier floor %d", t.FloorCents)
			}
			if t.IncrementCents < sorted[i-1].IncrementCents {
				return nil, fmt.Errorf("tier at %d breaks monotonicity: increment %d < %d",
					t.FloorCents, t.IncrementCents, sorted[i-1].IncrementCents)
			}
		}
	}

	return &IncrementPolicy{tiers: sorted}, nil
}

// ParseTiers parses the "floorCents:incrementCents,..." config encoding.
func ParseTiers(spec string) ([]Tier, error) {
	var tiers []Tier
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		floorStr, incStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("malformed tier %q, want floor:increment", part)
		}
		floor, err := strconv.ParseInt(strings.TrimSpace(floorStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed tier floor %q: %w", floorStr, err)
		}
		inc, err := strconv.ParseInt(strings.TrimSpace(incStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed tier increment %q: %w", incStr, err)
		}
		tiers = append(tiers, Tier{FloorCents: floor, IncrementCents: inc})
	}
	return tiers, nil
}

// IncrementFor returns the minimum increment required to outbid a price. The
// function is pure and strictly tier-based: no interpolation between tiers.
func (p *IncrementPolicy) IncrementFor(priceCents int64) int64 {
	inc := p.tiers[0].IncrementCents
	for _, t := range p.tiers {
		if priceCents < t.FloorCents {
			break
		}
		inc = t.IncrementCents
	}
	return inc
}

// MinimumToBeat returns the lowest amount a new bidder must submit to
// outbid the given price.
func (p *IncrementPolicy) MinimumToBeat(priceCents int64) int64 {
	return priceCents + p.IncrementFor(priceCents)
}

// IsWholeUnit reports whether an amount has no sub-unit precision.
func IsWholeUnit(amountCents int64) bool {
	return amountCents > 0 && amountCents%CentsPerUnit == 0
}
