package items

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	pkgevents "github.com/floroz/bazaar/pkg/events"
	"github.com/floroz/bazaar/services/market-service/internal/domain/offers"
)

// Repository defines the interface for item persistence
type Repository interface {
	// Create inserts a new listing and fills in its id and timestamps
	Create(ctx context.Context, item *Item) error

	// GetByID retrieves an item by its ID
	GetByID(ctx context.Context, itemID int64) (*Item, error)

	// GetByIDForUpdate retrieves an item by its ID and locks it for update.
	// Must be called within a transaction.
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, itemID int64) (*Item, error)

	// UpdateStatus updates an item's status within a transaction
	UpdateStatus(ctx context.Context, tx pgx.Tx, itemID int64, status ItemStatus) error

	// ListActive retrieves active items with pagination, newest first
	ListActive(ctx context.Context, limit, offset int) ([]*Item, error)

	// ListBySeller retrieves a seller's non-deleted items
	ListBySeller(ctx context.Context, sellerID int64, limit, offset int) ([]*Item, error)
}

// OfferRejecter closes the pending offers of an item that leaves the market
type OfferRejecter interface {
	RejectOthersPending(ctx context.Context, tx pgx.Tx, itemID, exceptOfferID int64, decidedAt time.Time) ([]*offers.Offer, error)
}

// OutboxRepository defines the interface for outbox event persistence
type OutboxRepository interface {
	SaveEvent(ctx context.Context, tx pgx.Tx, event *pkgevents.OutboxEvent) error
}
