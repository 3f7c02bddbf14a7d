package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bidloft-auction-service/internal/domain/auction"
	"bidloft-auction-service/internal/domain/bid"
	"bidloft-auction-service/internal/domain/event"
	"bidloft-auction-service/internal/domain/lifecycle"
	"bidloft-auction-service/internal/domain/pricing"
	"bidloft-auction-service/internal/domain/shared"
	"bidloft-auction-service/internal/ports/inbound"
	"bidloft-auction-service/internal/ports/outbound"
)

// BidService implements the bidding engine: it validates one bid attempt,
// derives the new public price and leader via the proxy-bid computation and
// persists the attempt to the event log.
type BidService struct {
	auctionRepo outbound.AuctionRepository
	maxBidRepo  outbound.MaxBidRepository
	eventRepo   outbound.EventRepository
	broadcaster outbound.Broadcaster
	advancer    inbound.LifecycleService
	scheduler   outbound.DueScheduler
	policy      lifecycle.Policy
	incr        *pricing.IncrementPolicy
	maxRetries  int
	logger      zerolog.Logger
}

type BidServiceParams struct {
	AuctionRepo outbound.AuctionRepository
	MaxBidRepo  outbound.MaxBidRepository
	EventRepo   outbound.EventRepository
	Broadcaster outbound.Broadcaster
	Advancer    inbound.LifecycleService
	Policy      lifecycle.Policy
	Increments  *pricing.IncrementPolicy
	MaxRetries  int
	Logger      zerolog.Logger
}

// NewBidService creates a new bid service
func NewBidService(params BidServiceParams) *BidService {
	retries := params.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &BidService{
		auctionRepo: params.AuctionRepo,
		maxBidRepo:  params.MaxBidRepo,
		eventRepo:   params.EventRepo,
		broadcaster: params.Broadcaster,
		advancer:    params.Advancer,
		policy:      params.Policy,
		incr:        params.Increments,
		maxRetries:  retries,
		logger:      params.Logger.With().Str("component", "bid_service").Logger(),
	}
}

// SetScheduler sets the due-check scheduler used for sweep hints
func (s *BidService) SetScheduler(scheduler outbound.DueScheduler) {
	s.scheduler = scheduler
}

// PlaceBid places a sealed maximum bid on an auction. Business rejections
// come back as a result with a reason code; only system failures are errors.
func (s *BidService) PlaceBid(ctx context.Context, req inbound.PlaceBidRequest) (*inbound.BidResult, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	s.logger.Info().
		Str("auction_id", req.AuctionID.String()).
		Str("bidder_id", req.BidderID.String()).
		Int64("amount_cents", req.AmountCents).
		Str("mode", string(req.Mode)).
		Msg("Attempting to place bid")

	// Lifecycle check first: a stale LIVE auction whose close time has
	// silently passed must be forced into CLOSING before the bid is
	// evaluated, never rejected as late.
	if _, err := s.advancer.AdvanceAuction(ctx, req.AuctionID, now); err != nil {
		if errors.Is(err, shared.ErrAuctionNotFound) {
			return s.reject(ctx, req, now, shared.ErrAuctionNotFound)
		}
		return nil, err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		res, err := s.tryPlaceBid(ctx, req, now)
		if errors.Is(err, shared.ErrConcurrentUpdate) {
			s.logger.Debug().
				Str("auction_id", req.AuctionID.String()).
				Int("attempt", attempt+1).
				Msg("Bid application conflicted, retrying")
			continue
		}
		return res, err
	}

	// Retries are invisible to the audit log; only this final outcome is
	// recorded, once.
	return s.reject(ctx, req, now, shared.ErrTooMuchContention)
}

// tryPlaceBid runs one optimistic attempt. A shared.ErrConcurrentUpdate
// return means the auction moved underneath us and the caller may retry.
func (s *BidService) tryPlaceBid(ctx context.Context, req inbound.PlaceBidRequest, now time.Time) (*inbound.BidResult, error) {
	a, err := s.auctionRepo.GetByID(ctx, req.AuctionID)
	if err != nil {
		if errors.Is(err, shared.ErrAuctionNotFound) {
			return s.reject(ctx, req, now, shared.ErrAuctionNotFound)
		}
		return nil, err
	}

	if !a.CanBid() {
		return s.reject(ctx, req, now, shared.ErrAuctionNotAcceptingBids)
	}

	if !pricing.IsWholeUnit(req.AmountCents) {
		return s.reject(ctx, req, now, shared.ErrBidAmountNotWholeUnit)
	}

	if !req.Mode.Valid() {
		return s.reject(ctx, req, now, shared.ErrBidModeInvalid)
	}

	bids, err := s.maxBidRepo.GetByAuction(ctx, req.AuctionID)
	if err != nil {
		return nil, err
	}

	var existing *bid.MaxBid
	for i := range bids {
		if bids[i].BidderID == req.BidderID {
			existing = &bids[i]
			break
		}
	}

	if req.Mode == bid.ModeDelayed {
		// A standing IMMEDIATE maximum cannot be downgraded back to
		// DELAYED; conversion only ever goes the other way.
		if existing != nil && existing.IsImmediate() {
			return s.reject(ctx, req, now, shared.ErrBidModeInvalid)
		}
		if now.After(a.CloseTime.Add(-s.policy.DelayedBidCutoff)) {
			return s.reject(ctx, req, now, shared.ErrDelayedBidTooLate)
		}
	} else {
		threshold := a.StartingPriceCents
		if a.BidCount > 0 {
			threshold = s.incr.MinimumToBeat(a.CurrentPriceCents)
		}
		if req.AmountCents < threshold {
			s.logger.Warn().
				Str("auction_id", a.ID.String()).
				Int64("amount_cents", req.AmountCents).
				Int64("minimum_cents", threshold).
				Msg("Bid amount not competitive")
			return s.reject(ctx, req, now, shared.ErrBidNotCompetitive)
		}
	}

	newMax := bid.MaxBid{
		AuctionID:  req.AuctionID,
		BidderID:   req.BidderID,
		MaxCents:   req.AmountCents,
		Mode:       req.Mode,
		ReceivedAt: now,
		UpdatedAt:  now,
	}
	if existing != nil {
		// A replacement keeps the original received timestamp so the
		// tie-break ordering against other bidders is unchanged.
		newMax.ReceivedAt = existing.ReceivedAt
	}

	updated := *a
	if req.Mode == bid.ModeImmediate {
		working := upsertMaxBid(bids, newMax)
		d := pricing.Derive(working, a.StartingPriceCents, a.ReservePriceCents, s.incr)
		lifecycle.ApplyDerivation(&updated, d, now)
		updated.BidCount++

		// Anti-snipe: a bid landing inside the closing window pushes the
		// window end out. The window never shrinks.
		if updated.Status == auction.StatusClosing {
			updated.ExtendClosingWindow(now.Add(s.policy.SnipeExtension))
		}
	}
	updated.UpdatedAt = now

	ev := event.NewBidAccepted(req.AuctionID, req.BidderID, req.AmountCents, string(req.Mode), now)

	if err := s.maxBidRepo.ApplyBid(ctx, outbound.BidWrite{
		Auction:         updated,
		ExpectedVersion: a.Version,
		MaxBid:          newMax,
		Event:           ev,
	}); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("auction_id", updated.ID.String()).
		Str("bidder_id", req.BidderID.String()).
		Int64("current_price_cents", updated.CurrentPriceCents).
		Int("bid_count", updated.BidCount).
		Msg("Bid accepted")

	s.afterAcceptedBid(ctx, &updated)

	return &inbound.BidResult{
		Accepted:          true,
		CurrentPriceCents: updated.CurrentPriceCents,
		LeaderID:          updated.CurrentLeaderID,
		ReserveMet:        updated.ReserveMet,
		BidCount:          updated.BidCount,
		ClosingWindowEnd:  updated.ClosingWindowEnd,
	}, nil
}

// afterAcceptedBid broadcasts the fresh public snapshot and refreshes the
// sweep hint for the auction's next due time.
func (s *BidService) afterAcceptedBid(ctx context.Context, a *auction.Auction) {
	if s.broadcaster != nil {
		snap := snapshotOf(a, s.incr)
		if err := s.broadcaster.Publish(ctx, a.ID, snapshotEvent(snap)); err != nil {
			s.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to broadcast bid snapshot")
		}
	}

	if s.scheduler != nil {
		due := a.CloseTime
		if a.Status == auction.StatusClosing && a.ClosingWindowEnd != nil {
			due = *a.ClosingWindowEnd
		}
		if err := s.scheduler.ScheduleCheck(a.ID, due); err != nil {
			s.logger.Warn().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to schedule due check")
		}
	}
}

// reject appends exactly one BID_REJECTED event and returns the structured
// reason to the caller. Unexpected causes propagate as errors.
func (s *BidService) reject(ctx context.Context, req inbound.PlaceBidRequest, now time.Time, cause error) (*inbound.BidResult, error) {
	reason, ok := shared.ReasonFor(cause)
	if !ok {
		return nil, cause
	}

	bidder := req.BidderID
	ev := event.NewBidRejected(req.AuctionID, &bidder, req.AmountCents, string(reason), now)
	if err := s.eventRepo.Append(ctx, ev); err != nil {
		return nil, err
	}

	s.logger.Warn().
		Str("auction_id", req.AuctionID.String()).
		Str("bidder_id", req.BidderID.String()).
		Int64("amount_cents", req.AmountCents).
		Str("reason", string(reason)).
		Msg("Bid rejected")

	return &inbound.BidResult{Accepted: false, Reason: reason}, nil
}

// GetSnapshot returns the public view of an auction, including the minimum
// next bid a new bidder must submit. The reserve price is never included.
func (s *BidService) GetSnapshot(ctx context.Context, auctionID uuid.UUID, now time.Time) (*inbound.Snapshot, error) {
	a, err := s.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	snap := snapshotOf(a, s.incr)
	return &snap, nil
}

// GetEvents retrieves the audit trail for an auction
func (s *BidService) GetEvents(ctx context.Context, auctionID uuid.UUID) ([]event.BidEvent, error) {
	return s.eventRepo.ListByAuction(ctx, auctionID)
}

// upsertMaxBid returns a copy of bids with the given row replacing the
// bidder's previous one, or appended if the bidder is new.
func upsertMaxBid(bids []bid.MaxBid, row bid.MaxBid) []bid.MaxBid {
	out := make([]bid.MaxBid, 0, len(bids)+1)
	replaced := false
	for _, b := range bids {
		if b.BidderID == row.BidderID {
			out = append(out, row)
			replaced = true
			continue
		}
		out = append(out, b)
	}
	if !replaced {
		out = append(out, row)
	}
	return out
}
