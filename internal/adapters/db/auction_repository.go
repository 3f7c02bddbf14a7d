package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bidloft-auction-service/internal/domain/auction"
	"bidloft-auction-service/internal/domain/event"
	"bidloft-auction-service/internal/domain/shared"
	"bidloft-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const auctionColumns = `
	id, listing_id, status, starting_price_cents, reserve_price_cents,
	reserve_met, current_price_cents, current_leader_id, current_leader_max_cents,
	bid_count, start_time, close_time, closing_window_end, relist_of_auction_id,
	version, created_at, updated_at
`

// AuctionRepository implements the auction repository interface
type AuctionRepository struct {
	conn *Connection
}

// NewAuctionRepository creates a new auction repository
func NewAuctionRepository(conn *Connection) *AuctionRepository {
	return &AuctionRepository{conn: conn}
}

// Create creates a new auction
func (r *AuctionRepository) Create(ctx context.Context, a *auction.Auction) error {
	query := `
		INSERT INTO auctions (` + auctionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.conn.GetDB().ExecContext(ctx, query, auctionArgs(a)...)
	if err != nil {
		return fmt.Errorf("failed to create auction: %w", err)
	}

	return nil
}

// GetByID retrieves an auction by ID
func (r *AuctionRepository) GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`

	row := r.conn.GetDB().QueryRowContext(ctx, query, id)
	a, err := scanAuction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}

	return a, nil
}

// ListDue retrieves auctions whose recorded state implies a pending
// transition: LIVE past close time, CLOSING past window end, or an unsold
// reserve auction past the relist delay that has no relist yet.
func (r *AuctionRepository) ListDue(ctx context.Context, now time.Time, relistDelay time.Duration, limit int) ([]*auction.Auction, error) {
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions a
		WHERE (a.status = 'live' AND a.close_time <= $1)
		   OR (a.status = 'closing' AND a.closing_window_end <= $1)
		   OR (a.status = 'closed_not_sold'
		       AND a.reserve_price_cents IS NOT NULL
		       AND a.updated_at <= $2
		       AND NOT EXISTS (
		           SELECT 1 FROM auctions r WHERE r.relist_of_auction_id = a.id
		       ))
		ORDER BY a.updated_at ASC
		LIMIT $3
	`

	rows, err := r.conn.GetDB().QueryContext(ctx, query, now, now.Add(-relistDelay), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due auctions: %w", err)
	}
	defer rows.Close()

	var auctions []*auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auctions: %w", err)
	}

	return auctions, nil
}

// ApplyTransition persists a lifecycle transition, its delayed-bid
// conversions and its audit events in one transaction, guarded by the
// auction's version.
func (r *AuctionRepository) ApplyTransition(ctx context.Context, w outbound.TransitionWrite) error {
	return r.conn.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		if err := updateAuctionVersioned(ctx, tx, &w.Auction, w.ExpectedVersion); err != nil {
			return err
		}

		if len(w.ConvertBidders) > 0 {
			ids := make([]string, len(w.ConvertBidders))
			for i, b := range w.ConvertBidders {
				ids[i] = b.String()
			}
			convertQuery := `
				UPDATE max_bids
				SET mode = 'immediate', updated_at = $3
				WHERE auction_id = $1 AND bidder_id = ANY($2)
			`
			if _, err := tx.ExecContext(ctx, convertQuery, w.Auction.ID, pq.Array(ids), w.Auction.UpdatedAt); err != nil {
				return fmt.Errorf("failed to convert delayed bids: %w", err)
			}
		}

		for _, ev := range w.Events {
			if err := insertEvent(ctx, tx, ev); err != nil {
				return err
			}
		}

		return nil
	})
}

// CreateRelist inserts the successor auction with its audit events. The
// partial unique index on relist_of_auction_id is the idempotency guard: the
// loser of a concurrent double-trigger gets shared.ErrAlreadyRelisted.
func (r *AuctionRepository) CreateRelist(ctx context.Context, next *auction.Auction, events []event.BidEvent) error {
	err := r.conn.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		insertQuery := `
			INSERT INTO auctions (` + auctionColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		`
		if _, err := tx.ExecContext(ctx, insertQuery, auctionArgs(next)...); err != nil {
			return fmt.Errorf("failed to insert relist auction: %w", err)
		}

		for _, ev := range events {
			if err := insertEvent(ctx, tx, ev); err != nil {
				return err
			}
		}

		return nil
	})

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return shared.ErrAlreadyRelisted
	}
	return err
}

// updateAuctionVersioned writes the auction's full state with the version in
// the WHERE clause; zero rows affected means a concurrent writer won.
func updateAuctionVersioned(ctx context.Context, tx *sql.Tx, a *auction.Auction, expectedVersion int64) error {
	query := `
		UPDATE auctions
		SET status = $2, reserve_met = $3, current_price_cents = $4,
		    current_leader_id = $5, current_leader_max_cents = $6,
		    bid_count = $7, closing_window_end = $8,
		    version = version + 1, updated_at = $9
		WHERE id = $1 AND version = $10
	`

	result, err := tx.ExecContext(ctx, query,
		a.ID,
		a.Status,
		a.ReserveMet,
		a.CurrentPriceCents,
		a.CurrentLeaderID,
		a.CurrentLeaderMaxCents,
		a.BidCount,
		a.ClosingWindowEnd,
		a.UpdatedAt,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update auction: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return shared.ErrConcurrentUpdate
	}

	return nil
}

func auctionArgs(a *auction.Auction) []interface{} {
	return []interface{}{
		a.ID,
		a.ListingID,
		a.Status,
		a.StartingPriceCents,
		a.ReservePriceCents,
		a.ReserveMet,
		a.CurrentPriceCents,
		a.CurrentLeaderID,
		a.CurrentLeaderMaxCents,
		a.BidCount,
		a.StartTime,
		a.CloseTime,
		a.ClosingWindowEnd,
		a.RelistOfAuctionID,
		a.Version,
		a.CreatedAt,
		a.UpdatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*auction.Auction, error) {
	var a auction.Auction
	var reserve sql.NullInt64
	var leaderID uuid.NullUUID
	var leaderMax sql.NullInt64
	var windowEnd sql.NullTime
	var relistOf uuid.NullUUID

	err := row.Scan(
		&a.ID,
		&a.ListingID,
		&a.Status,
		&a.StartingPriceCents,
		&reserve,
		&a.ReserveMet,
		&a.CurrentPriceCents,
		&leaderID,
		&leaderMax,
		&a.BidCount,
		&a.StartTime,
		&a.CloseTime,
		&windowEnd,
		&relistOf,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if reserve.Valid {
		a.ReservePriceCents = &reserve.Int64
	}
	if leaderID.Valid {
		a.CurrentLeaderID = &leaderID.UUID
	}
	if leaderMax.Valid {
		a.CurrentLeaderMaxCents = &leaderMax.Int64
	}
	if windowEnd.Valid {
		a.ClosingWindowEnd = &windowEnd.Time
	}
	if relistOf.Valid {
		a.RelistOfAuctionID = &relistOf.UUID
	}

	return &a, nil
}
