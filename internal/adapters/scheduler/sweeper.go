package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"bidloft-auction-service/internal/ports/inbound"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const dueIndexKey = "auction:due"

// fullScanEvery bounds how stale the sweep can get when due hints are lost
// (e.g. a replica died between commit and ZAdd).
const fullScanEvery = 30 * time.Second

// Sweeper is the periodic lifecycle driver. A Redis sorted set holds
// near-term due hints (close times, window ends, relist delays) keyed by
// auction id and scored by due timestamp; each tick pops the due entries and
// advances them. A slower full database scan backstops the index, so
// transitions happen eventually even with no hints and no incoming bids.
// Safe to run on multiple replicas: advancing an already-advanced auction is
// a no-op.
type Sweeper struct {
	redis     *redis.Client
	lifecycle inbound.LifecycleService
	interval  time.Duration
	batch     int
	logger    zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

type SweeperParams struct {
	RedisClient *redis.Client
	Lifecycle   inbound.LifecycleService
	Interval    time.Duration
	Batch       int
	Logger      zerolog.Logger
}

func NewSweeper(params SweeperParams) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())

	interval := params.Interval
	if interval <= 0 {
		interval = time.Second
	}
	batch := params.Batch
	if batch <= 0 {
		batch = 50
	}

	return &Sweeper{
		redis:     params.RedisClient,
		lifecycle: params.Lifecycle,
		interval:  interval,
		batch:     batch,
		logger:    params.Logger.With().Str("component", "lifecycle_sweeper").Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ScheduleCheck registers an auction's next known due time in the index.
// Implements the DueScheduler port.
func (s *Sweeper) ScheduleCheck(auctionID uuid.UUID, due time.Time) error {
	err := s.redis.ZAdd(s.ctx, dueIndexKey, redis.Z{
		Score:  float64(due.Unix()),
		Member: auctionID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule due check: %w", err)
	}

	s.logger.Debug().
		Str("auction_id", auctionID.String()).
		Time("due", due).
		Msg("Auction due check scheduled")
	return nil
}

// Start begins the sweep loop
func (s *Sweeper) Start() {
	s.logger.Info().Dur("interval", s.interval).Msg("Starting lifecycle sweeper")

	s.wg.Add(1)
	go s.sweepLoop()
}

// Stop gracefully stops the sweeper
func (s *Sweeper) Stop() {
	s.logger.Info().Msg("Stopping lifecycle sweeper")
	s.cancel()
	s.wg.Wait()
}

func (s *Sweeper) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	scanTicker := time.NewTicker(fullScanEvery)
	defer scanTicker.Stop()

	for {
		select {
		case <-ticker.C:
			s.checkDueIndex(time.Now())
		case <-scanTicker.C:
			s.fullScan(time.Now())
		case <-s.ctx.Done():
			s.logger.Info().Msg("Sweep loop stopped")
			return
		}
	}
}

// checkDueIndex advances auctions whose hinted due time has passed.
func (s *Sweeper) checkDueIndex(now time.Time) {
	dueIDs, err := s.redis.ZRangeByScore(s.ctx, dueIndexKey, &redis.ZRangeBy{
		Min:   "0",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(s.batch),
	}).Result()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read due index")
		return
	}

	for _, idStr := range dueIDs {
		auctionID, err := uuid.Parse(idStr)
		if err != nil {
			s.logger.Error().Err(err).Str("auction_id", idStr).Msg("Invalid auction ID in due index")
			s.redis.ZRem(s.ctx, dueIndexKey, idStr)
			continue
		}

		if _, err := s.lifecycle.AdvanceAuction(s.ctx, auctionID, now); err != nil {
			s.logger.Error().Err(err).Str("auction_id", idStr).Msg("Failed to advance auction from due index")
		}
		// The entry is consumed either way; a follow-up due time is
		// re-registered by the lifecycle service on transition.
		s.redis.ZRem(s.ctx, dueIndexKey, idStr)
	}
}

// fullScan runs the authoritative database sweep.
func (s *Sweeper) fullScan(now time.Time) {
	count, err := s.lifecycle.AdvanceDue(s.ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("Lifecycle sweep failed")
		return
	}
	if count > 0 {
		s.logger.Info().Int("count", count).Msg("Full sweep advanced auctions")
	}
}
