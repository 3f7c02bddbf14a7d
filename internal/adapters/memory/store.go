package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"bidloft-auction-service/internal/domain/auction"
	"bidloft-auction-service/internal/domain/bid"
	"bidloft-auction-service/internal/domain/event"
	"bidloft-auction-service/internal/domain/shared"
	"bidloft-auction-service/internal/ports/outbound"
)

// Store is a concurrency-safe in-memory implementation of the auction,
// max-bid and event repositories. It mirrors the Postgres adapter's
// versioned write semantics, so the services behave identically on top of
// it. Used by tests and local development wiring.
type Store struct {
	mu       sync.RWMutex
	auctions map[uuid.UUID]auction.Auction
	maxBids  map[uuid.UUID][]bid.MaxBid
	events   map[uuid.UUID][]event.BidEvent
}

// NewStore creates a new in-memory store
func NewStore() *Store {
	return &Store{
		auctions: make(map[uuid.UUID]auction.Auction),
		maxBids:  make(map[uuid.UUID][]bid.MaxBid),
		events:   make(map[uuid.UUID][]event.BidEvent),
	}
}

// Create creates a new auction
func (s *Store) Create(ctx context.Context, a *auction.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auctions[a.ID] = *a
	return nil
}

// GetByID retrieves an auction by ID
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.auctions[id]
	if !ok {
		return nil, shared.ErrAuctionNotFound
	}
	cp := a
	return &cp, nil
}

// ListDue retrieves auctions with a pending due transition
func (s *Store) ListDue(ctx context.Context, now time.Time, relistDelay time.Duration, limit int) ([]*auction.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	relisted := make(map[uuid.UUID]bool)
	for _, a := range s.auctions {
		if a.RelistOfAuctionID != nil {
			relisted[*a.RelistOfAuctionID] = true
		}
	}

	var due []*auction.Auction
	for _, a := range s.auctions {
		switch {
		case a.CloseDue(now), a.WindowDue(now):
		case a.RelistDue(now, relistDelay) && !relisted[a.ID]:
		default:
			continue
		}
		cp := a
		due = append(due, &cp)
	}

	sort.Slice(due, func(i, j int) bool { return due[i].UpdatedAt.Before(due[j].UpdatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// ApplyTransition persists a lifecycle transition under the version guard
func (s *Store) ApplyTransition(ctx context.Context, w outbound.TransitionWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updateVersioned(w.Auction, w.ExpectedVersion); err != nil {
		return err
	}

	bids := s.maxBids[w.Auction.ID]
	for _, bidder := range w.ConvertBidders {
		for i := range bids {
			if bids[i].BidderID == bidder {
				bids[i].Mode = bid.ModeImmediate
				bids[i].UpdatedAt = w.Auction.UpdatedAt
			}
		}
	}

	s.appendEvents(w.Events)
	return nil
}

// CreateRelist inserts the successor auction, at most once per predecessor
func (s *Store) CreateRelist(ctx context.Context, next *auction.Auction, events []event.BidEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.auctions {
		if a.RelistOfAuctionID != nil && next.RelistOfAuctionID != nil &&
			*a.RelistOfAuctionID == *next.RelistOfAuctionID {
			return shared.ErrAlreadyRelisted
		}
	}

	s.auctions[next.ID] = *next
	s.appendEvents(events)
	return nil
}

// GetByAuction retrieves all standing maxima for an auction
func (s *Store) GetByAuction(ctx context.Context, auctionID uuid.UUID) ([]bid.MaxBid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]bid.MaxBid(nil), s.maxBids[auctionID]...), nil
}

// GetByAuctionAndBidder retrieves one bidder's standing maximum
func (s *Store) GetByAuctionAndBidder(ctx context.Context, auctionID, bidderID uuid.UUID) (*bid.MaxBid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.maxBids[auctionID] {
		if b.BidderID == bidderID {
			cp := b
			return &cp, nil
		}
	}
	return nil, shared.ErrNoBidsFound
}

// ApplyBid persists an accepted bid atomically under the version guard
func (s *Store) ApplyBid(ctx context.Context, w outbound.BidWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updateVersioned(w.Auction, w.ExpectedVersion); err != nil {
		return err
	}

	bids := s.maxBids[w.Auction.ID]
	replaced := false
	for i := range bids {
		if bids[i].BidderID == w.MaxBid.BidderID {
			// Replacement keeps the original received timestamp.
			received := bids[i].ReceivedAt
			bids[i] = w.MaxBid
			bids[i].ReceivedAt = received
			replaced = true
			break
		}
	}
	if !replaced {
		s.maxBids[w.Auction.ID] = append(bids, w.MaxBid)
	}

	s.appendEvents([]event.BidEvent{w.Event})
	return nil
}

// Append writes one event row
func (s *Store) Append(ctx context.Context, ev event.BidEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendEvents([]event.BidEvent{ev})
	return nil
}

// ListByAuction retrieves an auction's events ordered by occurrence
func (s *Store) ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]event.BidEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := append([]event.BidEvent(nil), s.events[auctionID]...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].OccurredAt.Before(events[j].OccurredAt) })
	return events, nil
}

func (s *Store) updateVersioned(a auction.Auction, expectedVersion int64) error {
	current, ok := s.auctions[a.ID]
	if !ok {
		return shared.ErrAuctionNotFound
	}
	if current.Version != expectedVersion {
		return shared.ErrConcurrentUpdate
	}
	a.Version = expectedVersion + 1
	s.auctions[a.ID] = a
	return nil
}

func (s *Store) appendEvents(events []event.BidEvent) {
	for _, ev := range events {
		s.events[ev.AuctionID] = append(s.events[ev.AuctionID], ev)
	}
}
