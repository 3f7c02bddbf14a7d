package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bidloft-auction-service/internal/domain/auction"
	"bidloft-auction-service/internal/domain/lifecycle"
	"bidloft-auction-service/internal/domain/pricing"
	"bidloft-auction-service/internal/domain/shared"
	"bidloft-auction-service/internal/ports/outbound"
)

// LifecycleService drives the auction state machine: LIVE auctions past
// their close time enter CLOSING, expired closing windows finalize, and
// unsold reserve auctions get relisted. The same transition logic backs the
// periodic sweep and the inline pre-bid check.
type LifecycleService struct {
	auctionRepo outbound.AuctionRepository
	maxBidRepo  outbound.MaxBidRepository
	orders      outbound.OrderService
	broadcaster outbound.Broadcaster
	scheduler   outbound.DueScheduler
	policy      lifecycle.Policy
	incr        *pricing.IncrementPolicy
	maxRetries  int
	sweepBatch  int
	logger      zerolog.Logger
}

type LifecycleServiceParams struct {
	AuctionRepo outbound.AuctionRepository
	MaxBidRepo  outbound.MaxBidRepository
	Orders      outbound.OrderService
	Broadcaster outbound.Broadcaster
	Policy      lifecycle.Policy
	Increments  *pricing.IncrementPolicy
	MaxRetries  int
	SweepBatch  int
	Logger      zerolog.Logger
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(params LifecycleServiceParams) *LifecycleService {
	retries := params.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	batch := params.SweepBatch
	if batch <= 0 {
		batch = 50
	}
	return &LifecycleService{
		auctionRepo: params.AuctionRepo,
		maxBidRepo:  params.MaxBidRepo,
		orders:      params.Orders,
		broadcaster: params.Broadcaster,
		policy:      params.Policy,
		incr:        params.Increments,
		maxRetries:  retries,
		sweepBatch:  batch,
		logger:      params.Logger.With().Str("component", "lifecycle_service").Logger(),
	}
}

// SetScheduler sets the due-check scheduler used for sweep hints
func (s *LifecycleService) SetScheduler(scheduler outbound.DueScheduler) {
	s.scheduler = scheduler
}

// AdvanceAuction applies any due transition to one auction under the same
// per-auction serialization boundary as bid placement.
func (s *LifecycleService) AdvanceAuction(ctx context.Context, auctionID uuid.UUID, now time.Time) (bool, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		a, err := s.auctionRepo.GetByID(ctx, auctionID)
		if err != nil {
			return false, err
		}

		bids, err := s.maxBidRepo.GetByAuction(ctx, auctionID)
		if err != nil {
			return false, err
		}

		out := lifecycle.Advance(*a, bids, now, s.policy, s.incr)

		if out.RelistEligible {
			return s.relist(ctx, *a, now)
		}
		if !out.Changed {
			return false, nil
		}

		err = s.auctionRepo.ApplyTransition(ctx, outbound.TransitionWrite{
			Auction:         out.Auction,
			ExpectedVersion: a.Version,
			ConvertBidders:  out.ConvertedBidders,
			Events:          out.Events,
		})
		if errors.Is(err, shared.ErrConcurrentUpdate) {
			s.logger.Debug().
				Str("auction_id", auctionID.String()).
				Int("attempt", attempt+1).
				Msg("Transition conflicted, retrying")
			continue
		}
		if err != nil {
			return false, err
		}

		s.logger.Info().
			Str("auction_id", auctionID.String()).
			Str("status", string(out.Auction.Status)).
			Int("injected_bids", len(out.ConvertedBidders)).
			Msg("Auction advanced")

		s.afterTransition(ctx, out, now)
		return true, nil
	}

	return false, shared.ErrTooMuchContention
}

// AdvanceDue sweeps every auction with a pending due transition. Safe to run
// concurrently with itself and with bid placement: losers of a version race
// simply skip, the state is already where it needs to be.
func (s *LifecycleService) AdvanceDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.auctionRepo.ListDue(ctx, now, s.policy.RelistDelay, s.sweepBatch)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, a := range due {
		ok, err := s.AdvanceAuction(ctx, a.ID, now)
		if err != nil {
			if errors.Is(err, shared.ErrTooMuchContention) {
				s.logger.Warn().Str("auction_id", a.ID.String()).Msg("Skipping contended auction in sweep")
				continue
			}
			return changed, err
		}
		if ok {
			changed++
		}
	}

	if changed > 0 {
		s.logger.Info().Int("count", changed).Msg("Sweep advanced auctions")
	}
	return changed, nil
}

// relist creates the successor auction for an unsold reserve listing,
// exactly once per predecessor. A concurrent double-trigger loses against
// the uniqueness of the predecessor reference and is a benign no-op.
func (s *LifecycleService) relist(ctx context.Context, pred auction.Auction, now time.Time) (bool, error) {
	next, events := lifecycle.Relist(pred, now, s.policy)

	err := s.auctionRepo.CreateRelist(ctx, &next, events)
	if errors.Is(err, shared.ErrAlreadyRelisted) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.logger.Info().
		Str("auction_id", next.ID.String()).
		Str("relist_of", pred.ID.String()).
		Time("close_time", next.CloseTime).
		Msg("Auction relisted")

	s.publishSnapshot(ctx, &next)
	s.scheduleCheck(next.ID, next.CloseTime)
	return true, nil
}

// afterTransition carries out the committed transition's side effects:
// order creation for a winner, snapshot broadcast, and sweep hints.
func (s *LifecycleService) afterTransition(ctx context.Context, out lifecycle.Outcome, now time.Time) {
	a := out.Auction

	if out.Order != nil && s.orders != nil {
		if err := s.orders.CreateAuctionOrder(ctx, *out.Order); err != nil {
			s.logger.Error().Err(err).
				Str("auction_id", a.ID.String()).
				Str("winner_id", out.Order.WinnerID.String()).
				Msg("Failed to dispatch auction order")
		} else {
			s.logger.Info().
				Str("auction_id", a.ID.String()).
				Str("winner_id", out.Order.WinnerID.String()).
				Int64("amount_cents", out.Order.AmountCents).
				Time("payment_due_at", out.Order.PaymentDueAt).
				Msg("Auction order dispatched")
		}
	}

	s.publishSnapshot(ctx, &a)

	switch {
	case a.Status == auction.StatusClosing && a.ClosingWindowEnd != nil:
		s.scheduleCheck(a.ID, *a.ClosingWindowEnd)
	case a.Status == auction.StatusClosedNotSold && a.HasReserve():
		s.scheduleCheck(a.ID, a.UpdatedAt.Add(s.policy.RelistDelay))
	}
}

func (s *LifecycleService) publishSnapshot(ctx context.Context, a *auction.Auction) {
	if s.broadcaster == nil {
		return
	}
	snap := snapshotOf(a, s.incr)
	if err := s.broadcaster.Publish(ctx, a.ID, snapshotEvent(snap)); err != nil {
		s.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to broadcast status snapshot")
	}
}

func (s *LifecycleService) scheduleCheck(auctionID uuid.UUID, due time.Time) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.ScheduleCheck(auctionID, due); err != nil {
		s.logger.Warn().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to schedule due check")
	}
}
