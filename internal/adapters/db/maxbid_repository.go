package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bidloft-auction-service/internal/domain/bid"
	"bidloft-auction-service/internal/domain/shared"
	"bidloft-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
)

// MaxBidRepository implements the sealed-maximum repository interface
type MaxBidRepository struct {
	conn *Connection
}

// NewMaxBidRepository creates a new max-bid repository
func NewMaxBidRepository(conn *Connection) *MaxBidRepository {
	return &MaxBidRepository{conn: conn}
}

// GetByAuction retrieves all standing maxima for an auction
func (r *MaxBidRepository) GetByAuction(ctx context.Context, auctionID uuid.UUID) ([]bid.MaxBid, error) {
	query := `
		SELECT auction_id, bidder_id, max_cents, mode, received_at, updated_at
		FROM max_bids
		WHERE auction_id = $1
		ORDER BY max_cents DESC, received_at ASC
	`

	rows, err := r.conn.GetDB().QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get max bids: %w", err)
	}
	defer rows.Close()

	var bids []bid.MaxBid
	for rows.Next() {
		var b bid.MaxBid
		err := rows.Scan(
			&b.AuctionID,
			&b.BidderID,
			&b.MaxCents,
			&b.Mode,
			&b.ReceivedAt,
			&b.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan max bid: %w", err)
		}
		bids = append(bids, b)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating max bids: %w", err)
	}

	return bids, nil
}

// GetByAuctionAndBidder retrieves one bidder's standing maximum
func (r *MaxBidRepository) GetByAuctionAndBidder(ctx context.Context, auctionID, bidderID uuid.UUID) (*bid.MaxBid, error) {
	query := `
		SELECT auction_id, bidder_id, max_cents, mode, received_at, updated_at
		FROM max_bids
		WHERE auction_id = $1 AND bidder_id = $2
	`

	var b bid.MaxBid
	err := r.conn.GetDB().QueryRowContext(ctx, query, auctionID, bidderID).Scan(
		&b.AuctionID,
		&b.BidderID,
		&b.MaxCents,
		&b.Mode,
		&b.ReceivedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNoBidsFound
		}
		return nil, fmt.Errorf("failed to get max bid: %w", err)
	}

	return &b, nil
}

// ApplyBid persists one accepted bid atomically: the auction's derived state
// under its version guard, the bidder's upserted maximum, and the audit
// event. The upsert keeps the row's original received timestamp so replacing
// a maximum never improves the bidder's tie-break position.
func (r *MaxBidRepository) ApplyBid(ctx context.Context, w outbound.BidWrite) error {
	return r.conn.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		if err := updateAuctionVersioned(ctx, tx, &w.Auction, w.ExpectedVersion); err != nil {
			return err
		}

		upsertQuery := `
			INSERT INTO max_bids (auction_id, bidder_id, max_cents, mode, received_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (auction_id, bidder_id)
			DO UPDATE SET max_cents = EXCLUDED.max_cents,
			              mode = EXCLUDED.mode,
			              updated_at = EXCLUDED.updated_at
		`
		_, err := tx.ExecContext(ctx, upsertQuery,
			w.MaxBid.AuctionID,
			w.MaxBid.BidderID,
			w.MaxBid.MaxCents,
			w.MaxBid.Mode,
			w.MaxBid.ReceivedAt,
			w.MaxBid.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert max bid: %w", err)
		}

		return insertEvent(ctx, tx, w.Event)
	})
}
