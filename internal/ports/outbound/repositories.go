package outbound

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bidloft-auction-service/internal/domain/auction"
	"bidloft-auction-service/internal/domain/bid"
	"bidloft-auction-service/internal/domain/event"
)

// BidWrite is one accepted bid applied atomically: the auction's new derived
// state, the bidder's upserted maximum, and the audit event, all or nothing.
// The write fails with shared.ErrConcurrentUpdate when the auction's version
// no longer matches ExpectedVersion.
type BidWrite struct {
	Auction         auction.Auction
	ExpectedVersion int64
	MaxBid          bid.MaxBid
	Event           event.BidEvent
}

// TransitionWrite is one lifecycle transition applied atomically: the
// auction's new state, any delayed-bid mode conversions, and the audit
// events. Versioned the same way as BidWrite.
type TransitionWrite struct {
	Auction         auction.Auction
	ExpectedVersion int64
	ConvertBidders  []uuid.UUID
	Events          []event.BidEvent
}

// AuctionRepository defines the interface for auction data operations
type AuctionRepository interface {
	// Create creates a new auction
	Create(ctx context.Context, auction *auction.Auction) error

	// GetByID retrieves an auction by ID
	GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error)

	// ListDue retrieves auctions whose recorded state implies a pending
	// transition at the given time: LIVE past close, CLOSING past window
	// end, or unsold-with-reserve past the relist delay.
	ListDue(ctx context.Context, now time.Time, relistDelay time.Duration, limit int) ([]*auction.Auction, error)

	// ApplyTransition persists a lifecycle transition under optimistic
	// concurrency control.
	ApplyTransition(ctx context.Context, w TransitionWrite) error

	// CreateRelist inserts the successor auction together with its audit
	// events. Returns shared.ErrAlreadyRelisted when another relist of the
	// same predecessor already exists.
	CreateRelist(ctx context.Context, next *auction.Auction, events []event.BidEvent) error
}

// MaxBidRepository defines the interface for sealed-maximum data operations
type MaxBidRepository interface {
	// GetByAuction retrieves all standing maxima for an auction.
	GetByAuction(ctx context.Context, auctionID uuid.UUID) ([]bid.MaxBid, error)

	// GetByAuctionAndBidder retrieves one bidder's standing maximum, or
	// shared.ErrNoBidsFound.
	GetByAuctionAndBidder(ctx context.Context, auctionID, bidderID uuid.UUID) (*bid.MaxBid, error)

	// ApplyBid persists an accepted bid under optimistic concurrency
	// control: auction update, maximum upsert and event append in one
	// transaction. The upsert keeps the row's original received timestamp.
	ApplyBid(ctx context.Context, w BidWrite) error
}

// EventRepository defines the interface for the append-only audit trail
type EventRepository interface {
	// Append writes one event row. Events are never updated or deleted.
	Append(ctx context.Context, ev event.BidEvent) error

	// ListByAuction retrieves an auction's events ordered by occurrence.
	ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]event.BidEvent, error)
}
