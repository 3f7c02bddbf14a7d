package outbound

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bidloft-auction-service/internal/domain/lifecycle"
)

// OrderService is the external checkout collaborator. The core invokes it
// exactly once per auction on a winning finalize transition; payment capture
// happens elsewhere.
type OrderService interface {
	CreateAuctionOrder(ctx context.Context, req lifecycle.OrderRequest) error
}

// DueScheduler lets the core hint the sweep driver that an auction has a
// known upcoming due time, so the sweeper can check it promptly instead of
// waiting for the next full scan.
type DueScheduler interface {
	ScheduleCheck(auctionID uuid.UUID, due time.Time) error
}
