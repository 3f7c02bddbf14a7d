package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"bidloft-auction-service/internal/domain/event"

	"github.com/google/uuid"
)

// EventRepository implements the append-only audit trail. Rows are only ever
// inserted; there is no update or delete path.
type EventRepository struct {
	conn *Connection
}

// NewEventRepository creates a new event repository
func NewEventRepository(conn *Connection) *EventRepository {
	return &EventRepository{conn: conn}
}

// Append writes one event row
func (r *EventRepository) Append(ctx context.Context, ev event.BidEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	query := `
		INSERT INTO bid_events (id, auction_id, actor_id, event_type, accepted, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.conn.GetDB().ExecContext(ctx, query,
		ev.ID,
		ev.AuctionID,
		ev.ActorID,
		ev.Type,
		ev.Accepted,
		payload,
		ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append bid event: %w", err)
	}

	return nil
}

// ListByAuction retrieves an auction's events; ordering by occurrence
// defines the audit trail.
func (r *EventRepository) ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]event.BidEvent, error) {
	query := `
		SELECT id, auction_id, actor_id, event_type, accepted, payload, occurred_at
		FROM bid_events
		WHERE auction_id = $1
		ORDER BY occurred_at ASC, id ASC
	`

	rows, err := r.conn.GetDB().QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bid events: %w", err)
	}
	defer rows.Close()

	var events []event.BidEvent
	for rows.Next() {
		var ev event.BidEvent
		var actor uuid.NullUUID
		var payload []byte
		err := rows.Scan(
			&ev.ID,
			&ev.AuctionID,
			&actor,
			&ev.Type,
			&ev.Accepted,
			&payload,
			&ev.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid event: %w", err)
		}
		if actor.Valid {
			ev.ActorID = &actor.UUID
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
			}
		}
		events = append(events, ev)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bid events: %w", err)
	}

	return events, nil
}

// insertEvent appends one event row inside an outer transaction so the audit
// trail commits or rolls back together with the state change it describes.
func insertEvent(ctx context.Context, tx *sql.Tx, ev event.BidEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	query := `
		INSERT INTO bid_events (id, auction_id, actor_id, event_type, accepted, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if _, err := tx.ExecContext(ctx, query,
		ev.ID,
		ev.AuctionID,
		ev.ActorID,
		ev.Type,
		ev.Accepted,
		payload,
		ev.OccurredAt,
	); err != nil {
		return fmt.Errorf("failed to append bid event: %w", err)
	}

	return nil
}
