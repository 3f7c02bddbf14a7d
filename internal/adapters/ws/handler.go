package ws

import (
	"net/http"
	"sync"
	"time"

	"bidloft-auction-service/internal/domain/bid"
	"bidloft-auction-service/internal/domain/shared"
	"bidloft-auction-service/internal/ports/inbound"
	"bidloft-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WsHandler manages WebSocket connections and message routing
type WsHandler struct {
	clients       map[string]*WsClient // clientID -> Client
	clientsMu     sync.RWMutex
	eventChannels map[string]chan outbound.Event // clientID -> local event channel
	channelsMu    sync.RWMutex
	upgrader      websocket.Upgrader
	bidService    inbound.BiddingService
	broadcaster   outbound.Broadcaster
	logger        zerolog.Logger
}

type WsHandlerParams struct {
	Upgrader    websocket.Upgrader
	BidService  inbound.BiddingService
	Broadcaster outbound.Broadcaster
	Logger      zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(params WsHandlerParams) *WsHandler {
	return &WsHandler{
		clients:       make(map[string]*WsClient),
		eventChannels: make(map[string]chan outbound.Event),
		upgrader:      params.Upgrader,
		bidService:    params.BidService,
		broadcaster:   params.Broadcaster,
		logger:        params.Logger.With().Str("component", "ws_handler").Logger(),
	}
}

// HandleWebSocket handles WebSocket connection upgrades. The bidder id is
// supplied by the identity layer upstream and trusted as given.
func (handler *WsHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	bidderIDStr := r.URL.Query().Get("bidder_id")
	if bidderIDStr == "" {
		http.Error(w, "bidder_id is required", http.StatusBadRequest)
		return
	}

	bidderID, err := uuid.Parse(bidderIDStr)
	if err != nil {
		http.Error(w, "invalid bidder_id format", http.StatusBadRequest)
		return
	}

	conn, err := handler.upgrader.Upgrade(w, r, nil)
	if err != nil {
		handler.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := NewClient(WsClientParams{
		BidderID: bidderID,
		Conn:     conn,
		Handler:  handler,
		Logger:   handler.logger,
	})

	handler.registerClient(client)
	handler.createEventChannel(client.id)

	client.Start()
	go handler.listenForClientEvents(client)

	go func() {
		<-client.ctx.Done()
		handler.unregisterClient(client)
	}()

	handler.logger.Info().
		Str("client_id", client.id).
		Str("bidder_id", client.bidderID.String()).
		Msg("WebSocket client connected")
}

// HandleClientMessage routes a validated client message to the core
func (handler *WsHandler) HandleClientMessage(client *WsClient, msg *ClientMessage) error {
	switch msg.Type {
	case MessageTypeSubscribe:
		return handler.handleSubscribe(client, msg)
	case MessageTypeUnsubscribe:
		return handler.broadcaster.Unsubscribe(client.ctx, *msg.AuctionID, client.id)
	case MessageTypePlaceBid:
		return handler.handlePlaceBid(client, msg)
	case MessageTypeGetSnapshot:
		return handler.handleGetSnapshot(client, msg)
	case MessageTypeGetEvents:
		return handler.handleGetEvents(client, msg)
	}
	return shared.ErrUnknownMessageType
}

func (handler *WsHandler) handleSubscribe(client *WsClient, msg *ClientMessage) error {
	eventChan := handler.createEventChannel(client.id)
	if err := handler.broadcaster.Subscribe(client.ctx, *msg.AuctionID, client.id, eventChan); err != nil {
		return err
	}

	// Send the current snapshot right away so the client does not wait for
	// the next bid to see state.
	return handler.handleGetSnapshot(client, msg)
}

func (handler *WsHandler) handlePlaceBid(client *WsClient, msg *ClientMessage) error {
	result, err := handler.bidService.PlaceBid(client.ctx, inbound.PlaceBidRequest{
		AuctionID:   *msg.AuctionID,
		BidderID:    client.bidderID,
		AmountCents: msg.AmountCents(),
		Mode:        bid.Mode(msg.BidMode()),
		Now:         time.Now(),
	})
	if err != nil {
		return err
	}

	response := NewServerMessage(MessageTypeBidResult)
	response.AuctionID = msg.AuctionID
	response.Data["accepted"] = result.Accepted
	if result.Accepted {
		response.Data["current_price_cents"] = result.CurrentPriceCents
		response.Data["bid_count"] = result.BidCount
		response.Data["reserve_met"] = result.ReserveMet
		if result.LeaderID != nil {
			response.Data["leader_id"] = result.LeaderID.String()
		}
		if result.ClosingWindowEnd != nil {
			response.Data["closing_window_end"] = result.ClosingWindowEnd.UTC().Format(time.RFC3339)
		}
	} else {
		response.Data["reason"] = string(result.Reason)
	}

	return client.Send(response)
}

func (handler *WsHandler) handleGetSnapshot(client *WsClient, msg *ClientMessage) error {
	snap, err := handler.bidService.GetSnapshot(client.ctx, *msg.AuctionID, time.Now())
	if err != nil {
		return err
	}

	response := NewServerMessage(MessageTypeSnapshot)
	response.AuctionID = msg.AuctionID
	response.Data["status"] = snap.Status
	response.Data["current_price_cents"] = snap.CurrentPriceCents
	response.Data["bid_count"] = snap.BidCount
	response.Data["minimum_next_bid_cents"] = snap.MinimumNextBidCents
	if snap.ReserveMet != nil {
		response.Data["reserve_met"] = *snap.ReserveMet
	}
	if snap.ClosingWindowEnd != nil {
		response.Data["closing_window_end"] = snap.ClosingWindowEnd.UTC().Format(time.RFC3339)
	}

	return client.Send(response)
}

func (handler *WsHandler) handleGetEvents(client *WsClient, msg *ClientMessage) error {
	events, err := handler.bidService.GetEvents(client.ctx, *msg.AuctionID)
	if err != nil {
		return err
	}

	items := make([]map[string]interface{}, 0, len(events))
	for _, ev := range events {
		item := map[string]interface{}{
			"type":        string(ev.Type),
			"accepted":    ev.Accepted,
			"payload":     ev.Payload,
			"occurred_at": ev.OccurredAt.UTC().Format(time.RFC3339),
		}
		if ev.ActorID != nil {
			item["actor_id"] = ev.ActorID.String()
		}
		items = append(items, item)
	}

	response := NewServerMessage(MessageTypeEvents)
	response.AuctionID = msg.AuctionID
	response.Data["events"] = items

	return client.Send(response)
}

// listenForClientEvents forwards broadcast events to the connected client
func (handler *WsHandler) listenForClientEvents(client *WsClient) {
	eventChan := handler.getEventChannel(client.id)
	if eventChan == nil {
		return
	}

	for {
		select {
		case ev, ok := <-eventChan:
			if !ok {
				return
			}

			msg := NewServerMessage(MessageTypeSnapshot)
			auctionID := ev.AuctionID
			msg.AuctionID = &auctionID
			msg.Data = ev.Data
			msg.Timestamp = ev.Timestamp

			if err := client.Send(msg); err != nil {
				handler.logger.Warn().Err(err).Str("client_id", client.id).Msg("Failed to forward event to client")
			}

		case <-client.ctx.Done():
			return
		}
	}
}

func (handler *WsHandler) registerClient(client *WsClient) {
	handler.clientsMu.Lock()
	defer handler.clientsMu.Unlock()
	handler.clients[client.id] = client
}

func (handler *WsHandler) unregisterClient(client *WsClient) {
	handler.clientsMu.Lock()
	delete(handler.clients, client.id)
	handler.clientsMu.Unlock()

	handler.channelsMu.Lock()
	delete(handler.eventChannels, client.id)
	handler.channelsMu.Unlock()

	client.Stop()

	handler.logger.Info().Str("client_id", client.id).Msg("WebSocket client disconnected")
}

// createEventChannel creates a local event channel for a client
func (handler *WsHandler) createEventChannel(clientID string) chan outbound.Event {
	handler.channelsMu.Lock()
	defer handler.channelsMu.Unlock()

	if eventChan, exists := handler.eventChannels[clientID]; exists {
		return eventChan
	}

	eventChan := make(chan outbound.Event, 100)
	handler.eventChannels[clientID] = eventChan
	return eventChan
}

func (handler *WsHandler) getEventChannel(clientID string) chan outbound.Event {
	handler.channelsMu.RLock()
	defer handler.channelsMu.RUnlock()
	return handler.eventChannels[clientID]
}
