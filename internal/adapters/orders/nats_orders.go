package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bidloft-auction-service/internal/config"
	"bidloft-auction-service/internal/domain/lifecycle"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NatsOrderService dispatches order-creation commands to the checkout
// service over a JetStream stream. The auction core only asks for an unpaid
// order to be opened; payment capture is checkout's problem.
type NatsOrderService struct {
	js      jetstream.JetStream
	stream  string
	subject string
	logger  zerolog.Logger
}

type NatsOrderServiceParams struct {
	Conn   *nats.Conn
	Config *config.Config
	Logger zerolog.Logger
}

// orderCommand is the wire shape consumed by the checkout service.
type orderCommand struct {
	AuctionID    string    `json:"auction_id"`
	WinnerID     string    `json:"winner_id"`
	AmountCents  int64     `json:"amount_cents"`
	PaymentDueAt time.Time `json:"payment_due_at"`
}

// NewNatsOrderService creates the order dispatcher and ensures the stream
// exists.
func NewNatsOrderService(params NatsOrderServiceParams) (*NatsOrderService, error) {
	js, err := jetstream.New(params.Conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	stream := params.Config.Nats.OrderStream

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      stream,
		Subjects:  []string{"orders.create.*"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update order stream: %w", err)
	}

	return &NatsOrderService{
		js:      js,
		stream:  stream,
		subject: "orders.create",
		logger:  params.Logger.With().Str("component", "nats_orders").Logger(),
	}, nil
}

// CreateAuctionOrder publishes one order-creation command for the winner
func (s *NatsOrderService) CreateAuctionOrder(ctx context.Context, req lifecycle.OrderRequest) error {
	cmd := orderCommand{
		AuctionID:    req.AuctionID.String(),
		WinnerID:     req.WinnerID.String(),
		AmountCents:  req.AmountCents,
		PaymentDueAt: req.PaymentDueAt,
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal order command: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", s.subject, req.AuctionID.String())

	// MsgId dedupes redelivery of the same auction's order on the broker
	// side, backing up the core's exactly-once transition guard.
	_, err = s.js.Publish(ctx, subject, payload, jetstream.WithMsgID(req.AuctionID.String()))
	if err != nil {
		return fmt.Errorf("failed to publish order command: %w", err)
	}

	s.logger.Info().
		Str("auction_id", cmd.AuctionID).
		Str("winner_id", cmd.WinnerID).
		Int64("amount_cents", cmd.AmountCents).
		Msg("Order command published")

	return nil
}
