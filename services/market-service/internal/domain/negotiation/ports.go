package negotiation

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	pkgevents "github.com/floroz/bazaar/pkg/events"
	"github.com/floroz/bazaar/services/market-service/internal/domain/items"
	"github.com/floroz/bazaar/services/market-service/internal/domain/offers"
	"github.com/floroz/bazaar/services/market-service/internal/domain/transactions"
)

// ItemRepository is the engine's view of the item store. It only reads the
// offer-relevant fields and writes status; it never enforces the lifecycle itself.
type ItemRepository interface {
	// GetForOffer reads an item without locking
	GetForOffer(ctx context.Context, itemID int64) (*items.OfferTarget, error)

	// GetForOfferLocked reads an item and locks its row in the given mode.
	// Must be called within a transaction.
	GetForOfferLocked(ctx context.Context, tx pgx.Tx, itemID int64, mode items.LockMode) (*items.OfferTarget, error)

	// UpdateStatus writes the item status unconditionally within a transaction
	UpdateStatus(ctx context.Context, tx pgx.Tx, itemID int64, status items.ItemStatus) error
}

// OfferRepository defines the interface for offer persistence
type OfferRepository interface {
	// FindPendingByBuyerAndItem returns the buyer's pending offer on the item, or nil
	FindPendingByBuyerAndItem(ctx context.Context, tx pgx.Tx, buyerID, itemID int64) (*offers.Offer, error)

	// Create inserts a pending offer; a concurrent duplicate fails with offers.ErrDuplicatePending
	Create(ctx context.Context, tx pgx.Tx, offer *offers.Offer) error

	// FindByID reads an offer without locking
	FindByID(ctx context.Context, offerID int64) (*offers.Offer, error)

	// FindByIDForUpdate reads an offer and locks its row
	FindByIDForUpdate(ctx context.Context, tx pgx.Tx, offerID int64) (*offers.Offer, error)

	// SetStatus writes the offer status and decided_at unconditionally
	SetStatus(ctx context.Context, tx pgx.Tx, offerID int64, status offers.OfferStatus, decidedAt time.Time) error

	// RejectOthersPending rejects every pending offer on the item except exceptOfferID
	// and returns the offers it rejected
	RejectOthersPending(ctx context.Context, tx pgx.Tx, itemID, exceptOfferID int64, decidedAt time.Time) ([]*offers.Offer, error)

	ListForItem(ctx context.Context, itemID int64, limit, offset int) ([]*offers.Offer, error)
	ListForBuyer(ctx context.Context, buyerID int64, limit, offset int) ([]*offers.Offer, error)
	ListForSeller(ctx context.Context, sellerID int64, limit, offset int) ([]*offers.Offer, error)
}

// TransactionRepository defines the interface for settlement persistence
type TransactionRepository interface {
	// GetByItem returns the live (non-canceled) transaction for the item, or nil
	GetByItem(ctx context.Context, itemID int64) (*transactions.Transaction, error)

	// GetLatestByItemForUpdate returns the item's live transaction if there is one,
	// otherwise its most recent canceled one, or nil; the row is locked
	GetLatestByItemForUpdate(ctx context.Context, tx pgx.Tx, itemID int64) (*transactions.Transaction, error)

	// FindByID reads a transaction without locking
	FindByID(ctx context.Context, id int64) (*transactions.Transaction, error)

	// FindByIDForUpdate reads a transaction and locks its row
	FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*transactions.Transaction, error)

	// Create inserts a pending transaction; fails with transactions.ErrLiveTransactionExists
	// when the item already has a live one
	Create(ctx context.Context, tx pgx.Tx, txn *transactions.Transaction) error

	// ReviveCanceled overwrites a canceled row with new counterparties and price and
	// sets it back to pending; fails with transactions.ErrNotCanceled otherwise
	ReviveCanceled(ctx context.Context, tx pgx.Tx, txn *transactions.Transaction) error

	// Complete moves pending -> completed; fails with transactions.ErrTransactionNotPending otherwise
	Complete(ctx context.Context, tx pgx.Tx, id int64, settlement transactions.Settlement) error

	// Cancel moves pending -> canceled; fails with transactions.ErrTransactionNotPending otherwise
	Cancel(ctx context.Context, tx pgx.Tx, id int64) error
}

// OutboxRepository defines the interface for outbox event persistence
type OutboxRepository interface {
	// SaveEvent saves an outbox event within a transaction
	SaveEvent(ctx context.Context, tx pgx.Tx, event *pkgevents.OutboxEvent) error
}
