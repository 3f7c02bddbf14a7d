package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidloft-auction-service/internal/adapters/memory"
	"bidloft-auction-service/internal/domain/auction"
	"bidloft-auction-service/internal/domain/bid"
	"bidloft-auction-service/internal/domain/event"
	"bidloft-auction-service/internal/domain/lifecycle"
	"bidloft-auction-service/internal/domain/pricing"
	"bidloft-auction-service/internal/domain/shared"
	"bidloft-auction-service/internal/ports/inbound"
)

var baseClock = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type capturedOrders struct {
	mu       sync.Mutex
	requests []lifecycle.OrderRequest
}

func (c *capturedOrders) CreateAuctionOrder(ctx context.Context, req lifecycle.OrderRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	return nil
}

type testHarness struct {
	store     *memory.Store
	bids      *BidService
	lifecycle *LifecycleService
	orders    *capturedOrders
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	store := memory.NewStore()
	orders := &capturedOrders{}

	incr, err := pricing.NewIncrementPolicy(pricing.DefaultTiers)
	require.NoError(t, err)

	policy := lifecycle.Policy{
		ClosingWindow:    10 * time.Minute,
		SnipeExtension:   10 * time.Minute,
		DelayedBidCutoff: 3 * time.Hour,
		RelistDelay:      10 * time.Minute,
		RelistDuration:   168 * time.Hour,
		PaymentDue:       48 * time.Hour,
	}

	lifecycleSvc := NewLifecycleService(LifecycleServiceParams{
		AuctionRepo: store,
		MaxBidRepo:  store,
		Orders:      orders,
		Policy:      policy,
		Increments:  incr,
		Logger:      zerolog.Nop(),
	})

	bidSvc := NewBidService(BidServiceParams{
		AuctionRepo: store,
		MaxBidRepo:  store,
		EventRepo:   store,
		Advancer:    lifecycleSvc,
		Policy:      policy,
		Increments:  incr,
		Logger:      zerolog.Nop(),
	})

	return &testHarness{
		store:     store,
		bids:      bidSvc,
		lifecycle: lifecycleSvc,
		orders:    orders,
	}
}

func (h *testHarness) createAuction(t *testing.T, status auction.Status, closeTime time.Time, reserveCents *int64) *auction.Auction {
	t.Helper()

	a := &auction.Auction{
		ID:                 uuid.New(),
		ListingID:          uuid.New(),
		Status:             status,
		StartingPriceCents: 1000,
		ReservePriceCents:  reserveCents,
		CurrentPriceCents:  1000,
		StartTime:          closeTime.Add(-24 * time.Hour),
		CloseTime:          closeTime,
		CreatedAt:          closeTime.Add(-24 * time.Hour),
		UpdatedAt:          closeTime.Add(-24 * time.Hour),
	}
	require.NoError(t, h.store.Create(context.Background(), a))
	return a
}

func (h *testHarness) placeBid(t *testing.T, auctionID, bidderID uuid.UUID, amountCents int64, mode bid.Mode, now time.Time) *inbound.BidResult {
	t.Helper()

	res, err := h.bids.PlaceBid(context.Background(), inbound.PlaceBidRequest{
		AuctionID:   auctionID,
		BidderID:    bidderID,
		AmountCents: amountCents,
		Mode:        mode,
		Now:         now,
	})
	require.NoError(t, err)
	return res
}

func (h *testHarness) events(t *testing.T, auctionID uuid.UUID) []event.BidEvent {
	t.Helper()
	events, err := h.store.ListByAuction(context.Background(), auctionID)
	require.NoError(t, err)
	return events
}

func TestPlaceBidRejectsSubUnitAmount(t *testing.T) {
	h := newHarness(t)
	a := h.createAuction(t, auction.StatusLive, baseClock.Add(time.Hour), nil)

	res := h.placeBid(t, a.ID, uuid.New(), 5050, bid.ModeImmediate, baseClock)

	assert.False(t, res.Accepted)
	assert.Equal(t, shared.ReasonMalformedAmount, res.Reason)

	events := h.events(t, a.ID)
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeBidRejected, events[0].Type)
	assert.Equal(t, "MALFORMED_AMOUNT", events[0].Payload["reason"])
}

func TestPlaceBidRejectsBelowStartingPrice(t *testing.T) {
	h := newHarness(t)
	a := h.createAuction(t, auction.StatusLive, baseClock.Add(time.Hour), nil)

	res := h.placeBid(t, a.ID, uuid.New(), 900, bid.ModeImmediate, baseClock)

	assert.False(t, res.Accepted)
	assert.Equal(t, shared.ReasonNotCompetitive, res.Reason)
}

func TestPlaceBidIncrementEnforcement(t *testing.T) {
	h := newHarness(t)
	a := h.createAuction(t, auction.StatusLive, baseClock.Add(time.Hour), nil)

	first := h.placeBid(t, a.ID, uuid.New(), 5000, bid.ModeImmediate, baseClock)
	require.True(t, first.Accepted)
	assert.Equal(t, int64(1100), first.CurrentPriceCents)

	// MinimumToBeat(1100) = 1200: anything under is out.
	low := h.placeBid(t, a.ID, uuid.New(), 1100, bid.ModeImmediate, baseClock.Add(time.Second))
	assert.False(t, low.Accepted)
	assert.Equal(t, shared.ReasonNotCompetitive, low.Reason)

	exact := h.placeBid(t, a.ID, uuid.New(), 1200, bid.ModeImmediate, baseClock.Add(2*time.Second))
	assert.True(t, exact.Accepted)
}

func TestPlaceBidProxyDerivation(t *testing.T) {
	h := newHarness(t)
	a := h.createAuction(t, auction.StatusLive, baseClock.Add(time.Hour), nil)
	bidderA := uuid.New()
	bidderB := uuid.New()

	h.placeBid(t, a.ID, bidderA, 5000, bid.ModeImmediate, baseClock)
	res := h.placeBid(t, a.ID, bidderB, 8000, bid.ModeImmediate, baseClock.Add(time.Second))

	require.True(t, res.Accepted)
	require.NotNil(t, res.LeaderID)
	assert.Equal(t, bidderB, *res.LeaderID)
	assert.Equal(t, int64(5300), res.CurrentPriceCents)
	assert.Equal(t, 2, res.BidCount)
}

func TestPlaceBidTieBreakEarliestWins(t *testing.T) {
	h := newHarness(t)
	a := h.createAuction(t, auction.StatusLive, baseClock.Add(time.Hour), nil)
	bidderA := uuid.New()
	bidderB := uuid.New()

	h.placeBid(t, a.ID, bidderA, 5000, bid.ModeImmediate, baseClock)
	res := h.placeBid(t, a.ID, bidderB, 5000, bid.ModeImmediate, baseClock.Add(time.Minute))

	require.True(t, res.Accepted)
	require.NotNil(t, res.LeaderID)
	assert.Equal(t, bidderA, *res.LeaderID)
	assert.Equal(t, int64(5000), res.CurrentPriceCents)
}

func TestPlaceBidReserveLiftLeaksNothing(t *testing.T) {
	h := newHarness(t)
	reserve := int64(6000)
	a := h.createAuction(t, auction.StatusLive, baseClock.Add(time.Hour), &reserve)

	res := h.placeBid(t, a.ID, uuid.New(), 8000, bid.ModeImmediate, baseClock)

	require.True(t, res.Accepted)
	assert.True(t, res.ReserveMet)
	assert.Equal(t, int64(6000), res.CurrentPriceCents)

	for _, ev := range h.events(t, a.ID) {
		for key, value := range ev.Payload {
			assert.NotContains(t, key, "reserve")
			if n, ok := value.(int64); ok {
				assert.NotEqual(t, reserve, n, "reserve value leaked in payload key %q", key)
			}
		}
	}
}

func TestPlaceBidLazyTransitionToClosing(t *testing.T) {
	h := newHarness(t)
	a := h.createAuction(t, auction.StatusLive, baseClock.Add(-time.Minute), nil)

	res := h.placeBid(t, a.ID, uuid.New(), 5000, bid.ModeImmediate, baseClock)

	require.True(t, res.Accepted)
	require.NotNil(t, res.ClosingWindowEnd)

	stored, err := h.store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusClosing, stored.Status)
	require.NotNil(t, stored.ClosingWindowEnd)
	assert.Equal(t, baseClock.Add(10*time.Minute), *stored.ClosingWindowEnd)
}

func TestPlaceBidAntiSnipeExtendsWindow(t *testing.T) {
	h := newHarness(t)
	a := h.createAuction(t, auction.StatusLive, baseClock.Add(-time.Minute), nil)

	first := h.placeBid(t, a.ID, uuid.New(), 5000, bid.ModeImmediate, baseClock)
	require.True(t, first.Accepted)
	require.NotNil(t, first.ClosingWindowEnd)
	firstEnd := *first.ClosingWindowEnd

	second := h.placeBid(t, a.ID, uuid.New(), 8000, bid.ModeImmediate, baseClock.Add(3*time.Minute))
	require.True(t, second.Accepted)
	require.NotNil(t, second.ClosingWindowEnd)

	assert.True(t, second.ClosingWindowEnd.After(firstEnd),
		"closing window did not grow: %v -> %v", firstEnd, *second.ClosingWindowEnd)
}

func TestPlaceBidDelayedRegistration(t *testing.T) {
	h := newHarness(t)
	a := h.createAuction(t, auction.StatusLive, baseClock.Add(6*time.Hour), nil)
	bidder := uuid.New()

	res := h.placeBid(t, a.ID, bidder, 8000, bid.ModeDelayed, baseClock)

	require.True(t, res.Accepted)

	// Delayed registrations are inert while the auction is live.
	stored, err := h.store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.BidCount)
	assert.Nil(t, stored.CurrentLeaderID)
	assert.Equal(t, int64(1000), stored.CurrentPriceCents)
}

func TestPlaceBidDelayedTooCloseToClose(t *testing.T) {
	h := newHarness(t)
	a := h.createAuction(t, auction.StatusLive, baseClock.Add(2*time.Hour), nil)

	res := h.placeBid(t, a.ID, uuid.New(), 8000, bid.ModeDelayed, baseClock)

	assert.False(t, res.Accepted)
	assert.Equal(t, shared.ReasonDelayedTooLate, res.Reason)
}

func TestPlaceBidImmediateCannotDowngradeToDelayed(t *testing.T) {
	h := newHarness(t)
	a := h.createAuction(t, auction.StatusLive, baseClock.Add(6*time.Hour), nil)
	bidder := uuid.New()

	require.True(t, h.placeBid(t, a.ID, bidder, 5000, bid.ModeImmediate, baseClock).Accepted)

	res := h.placeBid(t, a.ID, bidder, 8000, bid.ModeDelayed, baseClock.Add(time.Minute))

	assert.False(t, res.Accepted)
	assert.Equal(t, shared.ReasonInvalidMode, res.Reason)
}

func TestPlaceBidDelayedCanConvertToImmediate(t *testing.T) {
	h := newHarness(t)
	a := h.createAuction(t, auction.StatusLive, baseClock.Add(6*time.Hour), nil)
	bidder := uuid.New()

	require.True(t, h.placeBid(t, a.ID, bidder, 8000, bid.ModeDelayed, baseClock).Accepted)

	res := h.placeBid(t, a.ID, bidder, 8000, bid.ModeImmediate, baseClock.Add(time.Minute))

	require.True(t, res.Accepted)
	require.NotNil(t, res.LeaderID)
	assert.Equal(t, bidder, *res.LeaderID)
	assert.Equal(t, 1, res.BidCount)
}

func TestPlaceBidUnknownAuction(t *testing.T) {
	h := newHarness(t)

	res := h.placeBid(t, uuid.New(), uuid.New(), 5000, bid.ModeImmediate, baseClock)

	assert.False(t, res.Accepted)
	assert.Equal(t, shared.ReasonAuctionNotFound, res.Reason)
}

func TestPlaceBidClosedAuctionNotBiddable(t *testing.T) {
	h := newHarness(t)
	a := h.createAuction(t, auction.StatusClosedNotSold, baseClock.Add(-time.Hour), nil)

	res := h.placeBid(t, a.ID, uuid.New(), 5000, bid.ModeImmediate, baseClock)

	assert.False(t, res.Accepted)
	assert.Equal(t, shared.ReasonNotBiddable, res.Reason)
}

func TestPlaceBidConcurrentBidsSingleLeader(t *testing.T) {
	h := newHarness(t)
	a := h.createAuction(t, auction.StatusLive, baseClock.Add(time.Hour), nil)
	bidderA := uuid.New()
	bidderB := uuid.New()

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := h.bids.PlaceBid(context.Background(), inbound.PlaceBidRequest{
			AuctionID: a.ID, BidderID: bidderA, AmountCents: 5000, Mode: bid.ModeImmediate, Now: baseClock,
		})
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := h.bids.PlaceBid(context.Background(), inbound.PlaceBidRequest{
			AuctionID: a.ID, BidderID: bidderB, AmountCents: 8000, Mode: bid.ModeImmediate, Now: baseClock.Add(time.Millisecond),
		})
		errs <- err
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := h.store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)

	require.NotNil(t, stored.CurrentLeaderID)
	assert.Equal(t, bidderB, *stored.CurrentLeaderID)
	assert.Equal(t, 2, stored.BidCount)

	events := h.events(t, a.ID)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, event.TypeBidAccepted, ev.Type)
	}
}

func TestGetSnapshotHidesReserveUnlessPresent(t *testing.T) {
	h := newHarness(t)
	reserve := int64(6000)
	withReserve := h.createAuction(t, auction.StatusLive, baseClock.Add(time.Hour), &reserve)
	without := h.createAuction(t, auction.StatusLive, baseClock.Add(time.Hour), nil)

	snap, err := h.bids.GetSnapshot(context.Background(), withReserve.ID, baseClock)
	require.NoError(t, err)
	require.NotNil(t, snap.ReserveMet)
	assert.False(t, *snap.ReserveMet)
	assert.Equal(t, int64(1000), snap.MinimumNextBidCents)

	snap, err = h.bids.GetSnapshot(context.Background(), without.ID, baseClock)
	require.NoError(t, err)
	assert.Nil(t, snap.ReserveMet)
}

func TestGetEventsReturnsAuditTrailInOrder(t *testing.T) {
	h := newHarness(t)
	a := h.createAuction(t, auction.StatusLive, baseClock.Add(time.Hour), nil)

	h.placeBid(t, a.ID, uuid.New(), 5000, bid.ModeImmediate, baseClock)
	h.placeBid(t, a.ID, uuid.New(), 900, bid.ModeImmediate, baseClock.Add(time.Second))

	events, err := h.bids.GetEvents(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, event.TypeBidAccepted, events[0].Type)
	assert.Equal(t, event.TypeBidRejected, events[1].Type)
}
