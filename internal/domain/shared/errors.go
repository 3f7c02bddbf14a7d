package shared

import "errors"

// Domain-specific errors
var (
	// Auction errors
	ErrAuctionNotFound         = errors.New("auction not found")
	ErrAuctionNotAcceptingBids = errors.New("auction is not accepting bids")

	// Bid errors
	ErrBidNotCompetitive     = errors.New("bid amount below minimum to beat")
	ErrBidAmountNotWholeUnit = errors.New("bid amount must be a whole currency unit")
	ErrBidModeInvalid        = errors.New("invalid bid mode")
	ErrDelayedBidTooLate     = errors.New("delayed bid registration window has closed")
	ErrNoBidsFound           = errors.New("no bids found")

	// Concurrency errors
	ErrConcurrentUpdate  = errors.New("auction was modified concurrently")
	ErrTooMuchContention = errors.New("bid could not be applied due to contention")

	// Relist errors
	ErrAlreadyRelisted = errors.New("auction already has a relist")

	// Database errors
	ErrDatabaseConnection  = errors.New("database connection failed")
	ErrDatabaseQuery       = errors.New("database query failed")
	ErrDatabaseTransaction = errors.New("database transaction failed")

	// WebSocket message validation errors
	ErrMessageTypeRequired = errors.New("message type is required")
	ErrAuctionIDRequired   = errors.New("auction_id is required")
	ErrInvalidAmount       = errors.New("valid amount is required")
	ErrUnknownMessageType  = errors.New("unknown message type")
)

// RejectionReason is the stable code attached to a rejected bid attempt.
// It is returned to the caller and recorded in the event log.
type RejectionReason string

const (
	ReasonAuctionNotFound   RejectionReason = "AUCTION_NOT_FOUND"
	ReasonNotBiddable       RejectionReason = "AUCTION_NOT_BIDDABLE"
	ReasonMalformedAmount   RejectionReason = "MALFORMED_AMOUNT"
	ReasonInvalidMode       RejectionReason = "INVALID_MODE"
	ReasonDelayedTooLate    RejectionReason = "DELAYED_REGISTRATION_TOO_LATE"
	ReasonNotCompetitive    RejectionReason = "NOT_COMPETITIVE"
	ReasonTransientConflict RejectionReason = "TRANSIENT_CONFLICT"
)

// ReasonFor maps a rejection error to its stable reason code.
func ReasonFor(err error) (RejectionReason, bool) {
	switch {
	case errors.Is(err, ErrAuctionNotFound):
		return ReasonAuctionNotFound, true
	case errors.Is(err, ErrAuctionNotAcceptingBids):
		return ReasonNotBiddable, true
	case errors.Is(err, ErrBidAmountNotWholeUnit):
		return ReasonMalformedAmount, true
	case errors.Is(err, ErrBidModeInvalid):
		return ReasonInvalidMode, true
	case errors.Is(err, ErrDelayedBidTooLate):
		return ReasonDelayedTooLate, true
	case errors.Is(err, ErrBidNotCompetitive):
		return ReasonNotCompetitive, true
	case errors.Is(err, ErrTooMuchContention):
		return ReasonTransientConflict, true
	}
	return "", false
}
