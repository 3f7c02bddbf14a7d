package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidloft-auction-service/internal/domain/auction"
	"bidloft-auction-service/internal/domain/bid"
	"bidloft-auction-service/internal/domain/event"
)

func countEvents(events []event.BidEvent, typ event.Type) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestAdvanceAuctionBeginsClosingAndInjectsDelayed(t *testing.T) {
	h := newHarness(t)
	a := h.createAuction(t, auction.StatusLive, baseClock.Add(4*time.Hour), nil)
	delayed := uuid.New()

	require.True(t, h.placeBid(t, a.ID, delayed, 8000, bid.ModeDelayed, baseClock).Accepted)

	sweepAt := a.CloseTime.Add(time.Minute)
	changed, err := h.lifecycle.AdvanceAuction(context.Background(), a.ID, sweepAt)
	require.NoError(t, err)
	assert.True(t, changed)

	stored, err := h.store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusClosing, stored.Status)
	assert.Equal(t, 1, stored.BidCount)
	require.NotNil(t, stored.CurrentLeaderID)
	assert.Equal(t, delayed, *stored.CurrentLeaderID)

	events := h.events(t, a.ID)
	assert.Equal(t, 1, countEvents(events, event.TypeDelayedBidsInjected))

	// Converted maxima now participate as immediate bids.
	bids, err := h.store.GetByAuction(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, bid.ModeImmediate, bids[0].Mode)
}

func TestAdvanceAuctionFinalizeSoldDispatchesOrder(t *testing.T) {
	h := newHarness(t)
	a := h.createAuction(t, auction.StatusLive, baseClock.Add(time.Hour), nil)
	winner := uuid.New()

	require.True(t, h.placeBid(t, a.ID, winner, 8000, bid.ModeImmediate, baseClock).Accepted)

	closingAt := a.CloseTime.Add(time.Minute)
	changed, err := h.lifecycle.AdvanceAuction(context.Background(), a.ID, closingAt)
	require.NoError(t, err)
	require.True(t, changed)

	finalAt := closingAt.Add(11 * time.Minute)
	changed, err = h.lifecycle.AdvanceAuction(context.Background(), a.ID, finalAt)
	require.NoError(t, err)
	require.True(t, changed)

	stored, err := h.store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusClosedWaitingOnPayment, stored.Status)
	assert.Nil(t, stored.ClosingWindowEnd)

	require.Len(t, h.orders.requests, 1)
	order := h.orders.requests[0]
	assert.Equal(t, a.ID, order.AuctionID)
	assert.Equal(t, winner, order.WinnerID)
	assert.Equal(t, int64(1100), order.AmountCents)
	assert.Equal(t, finalAt.Add(48*time.Hour), order.PaymentDueAt)
}

func TestAdvanceAuctionFinalizeReserveNotMet(t *testing.T) {
	h := newHarness(t)
	reserve := int64(20000)
	a := h.createAuction(t, auction.StatusLive, baseClock.Add(time.Hour), &reserve)

	require.True(t, h.placeBid(t, a.ID, uuid.New(), 8000, bid.ModeImmediate, baseClock).Accepted)

	closingAt := a.CloseTime.Add(time.Minute)
	_, err := h.lifecycle.AdvanceAuction(context.Background(), a.ID, closingAt)
	require.NoError(t, err)

	finalAt := closingAt.Add(11 * time.Minute)
	_, err = h.lifecycle.AdvanceAuction(context.Background(), a.ID, finalAt)
	require.NoError(t, err)

	stored, err := h.store.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusClosedNotSold, stored.Status)
	assert.Empty(t, h.orders.requests)
}

func TestAdvanceAuctionRelistExactlyOnce(t *testing.T) {
	h := newHarness(t)
	reserve := int64(20000)
	a := h.createAuction(t, auction.StatusClosedNotSold, baseClock.Add(-time.Hour), &reserve)

	relistAt := baseClock.Add(time.Hour)

	changed, err := h.lifecycle.AdvanceAuction(context.Background(), a.ID, relistAt)
	require.NoError(t, err)
	assert.True(t, changed)

	// The double-trigger race resolves to a silent no-op.
	changed, err = h.lifecycle.AdvanceAuction(context.Background(), a.ID, relistAt.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	events := h.events(t, a.ID)
	assert.Equal(t, 1, countEvents(events, event.TypeRelistTriggered))
}

func TestAdvanceAuctionRelistSuccessorState(t *testing.T) {
	h := newHarness(t)
	reserve := int64(20000)
	a := h.createAuction(t, auction.StatusClosedNotSold, baseClock.Add(-time.Hour), &reserve)

	relistAt := baseClock.Add(time.Hour)
	changed, err := h.lifecycle.AdvanceAuction(context.Background(), a.ID, relistAt)
	require.NoError(t, err)
	require.True(t, changed)

	// The relist delay has elapsed, so the predecessor no longer shows up
	// in the due list, but its successor will once it closes.
	due, err := h.store.ListDue(context.Background(), relistAt.Add(200*time.Hour), 10*time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	next := due[0]
	require.NotNil(t, next.RelistOfAuctionID)
	assert.Equal(t, a.ID, *next.RelistOfAuctionID)
	assert.Equal(t, a.ListingID, next.ListingID)
	assert.Equal(t, 0, next.BidCount)
	assert.Equal(t, a.StartingPriceCents, next.CurrentPriceCents)
	assert.Equal(t, relistAt.Add(168*time.Hour), next.CloseTime)

	successorEvents := h.events(t, next.ID)
	assert.Equal(t, 1, countEvents(successorEvents, event.TypeAuctionRelisted))
}

func TestAdvanceAuctionNoReserveNeverRelists(t *testing.T) {
	h := newHarness(t)
	a := h.createAuction(t, auction.StatusClosedNotSold, baseClock.Add(-time.Hour), nil)

	changed, err := h.lifecycle.AdvanceAuction(context.Background(), a.ID, baseClock.Add(24*time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	events := h.events(t, a.ID)
	assert.Equal(t, 0, countEvents(events, event.TypeRelistTriggered))
}

func TestAdvanceDueSweepsBatches(t *testing.T) {
	h := newHarness(t)

	overdueA := h.createAuction(t, auction.StatusLive, baseClock.Add(-time.Minute), nil)
	overdueB := h.createAuction(t, auction.StatusLive, baseClock.Add(-time.Minute), nil)
	notDue := h.createAuction(t, auction.StatusLive, baseClock.Add(time.Hour), nil)

	changed, err := h.lifecycle.AdvanceDue(context.Background(), baseClock)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	for _, id := range []uuid.UUID{overdueA.ID, overdueB.ID} {
		stored, err := h.store.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, auction.StatusClosing, stored.Status)
	}

	stored, err := h.store.GetByID(context.Background(), notDue.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusLive, stored.Status)
}

func TestAdvanceDueIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.createAuction(t, auction.StatusLive, baseClock.Add(-time.Minute), nil)

	changed, err := h.lifecycle.AdvanceDue(context.Background(), baseClock)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	changed, err = h.lifecycle.AdvanceDue(context.Background(), baseClock)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
}
