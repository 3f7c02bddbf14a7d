package db

import (
	"bidloft-auction-service/internal/ports/outbound"
)

// RepositoryFactory creates and manages all database repositories
type RepositoryFactory struct {
	conn *Connection
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(conn *Connection) *RepositoryFactory {
	return &RepositoryFactory{conn: conn}
}

// GetAuctionRepository returns the auction repository
func (f *RepositoryFactory) GetAuctionRepository() outbound.AuctionRepository {
	return NewAuctionRepository(f.conn)
}

// GetMaxBidRepository returns the max-bid repository
func (f *RepositoryFactory) GetMaxBidRepository() outbound.MaxBidRepository {
	return NewMaxBidRepository(f.conn)
}

// GetEventRepository returns the bid-event repository
func (f *RepositoryFactory) GetEventRepository() outbound.EventRepository {
	return NewEventRepository(f.conn)
}
