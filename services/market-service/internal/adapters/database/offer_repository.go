package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgdb "github.com/floroz/bazaar/pkg/database"
	"github.com/floroz/bazaar/services/market-service/internal/domain/offers"
)

// constraint names from migrations/00002_create_offers.sql
const (
	constraintOnePendingPerBuyer = "offers_one_pending_per_buyer"
)

// offer rows always carry the seller id of their item
const offerSelect = `
	SELECT o.id, o.item_id, o.buyer_id, i.seller_id, o.amount_cents, o.message,
		o.status, o.decided_at, o.created_at, o.updated_at
	FROM offers o
	JOIN items i ON i.id = o.item_id`

// PostgresOfferRepository implements negotiation.OfferRepository using pgx
type PostgresOfferRepository struct {
	pool *pgxpool.Pool // Keep pool for read-only operations
}

// NewPostgresOfferRepository creates a new PostgreSQL offer repository
func NewPostgresOfferRepository(pool *pgxpool.Pool) *PostgresOfferRepository {
	return &PostgresOfferRepository{pool: pool}
}

// Create inserts a pending offer. The partial unique index turns a concurrent
// duplicate into offers.ErrDuplicatePending.
func (r *PostgresOfferRepository) Create(ctx context.Context, tx pgx.Tx, offer *offers.Offer) error {
	query := `
		INSERT INTO offers (item_id, buyer_id, amount_cents, message, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::offer_status, $6, $7)
		RETURNING id
	`
	err := tx.QueryRow(ctx, query,
		offer.ItemID,
		offer.BuyerID,
		offer.AmountCents,
		offer.Message,
		offer.Status,
		offer.CreatedAt,
		offer.UpdatedAt,
	).Scan(&offer.ID)
	if err != nil {
		if pkgdb.IsUniqueViolation(err, constraintOnePendingPerBuyer) {
			return offers.ErrDuplicatePending
		}
		return fmt.Errorf("failed to insert offer: %w", err)
	}
	return nil
}

// FindPendingByBuyerAndItem returns the buyer's pending offer on the item, or nil
func (r *PostgresOfferRepository) FindPendingByBuyerAndItem(ctx context.Context, tx pgx.Tx, buyerID, itemID int64) (*offers.Offer, error) {
	query := offerSelect + `
		WHERE o.item_id = $1 AND o.buyer_id = $2 AND o.status = 'pending'`

	offer, err := scanOffer(tx.QueryRow(ctx, query, itemID, buyerID))
	if err != nil {
		if pkgdb.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending offer: %w", err)
	}
	return offer, nil
}

// FindByID retrieves an offer by its ID
func (r *PostgresOfferRepository) FindByID(ctx context.Context, offerID int64) (*offers.Offer, error) {
	return r.findByID(ctx, r.pool, offerID, "")
}

// FindByIDForUpdate retrieves an offer and locks only the offer row;
// the item row is locked separately and first
func (r *PostgresOfferRepository) FindByIDForUpdate(ctx context.Context, tx pgx.Tx, offerID int64) (*offers.Offer, error) {
	return r.findByID(ctx, tx, offerID, " FOR UPDATE OF o")
}

func (r *PostgresOfferRepository) findByID(ctx context.Context, db pkgdb.DBTX, offerID int64, lock string) (*offers.Offer, error) {
	query := offerSelect + ` WHERE o.id = $1` + lock

	offer, err := scanOffer(db.QueryRow(ctx, query, offerID))
	if err != nil {
		if pkgdb.IsNoRows(err) {
			return nil, offers.ErrOfferNotFound
		}
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}
	return offer, nil
}

// SetStatus writes the offer status and decided_at
func (r *PostgresOfferRepository) SetStatus(ctx context.Context, tx pgx.Tx, offerID int64, status offers.OfferStatus, decidedAt time.Time) error {
	query := `
		UPDATE offers
		SET status = $1::offer_status, decided_at = $2, updated_at = NOW()
		WHERE id = $3
	`
	result, err := tx.Exec(ctx, query, status, decidedAt, offerID)
	if err != nil {
		return fmt.Errorf("failed to update offer status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return offers.ErrOfferNotFound
	}
	return nil
}

// RejectOthersPending rejects every pending offer on the item except exceptOfferID
// (0 rejects them all) and returns what it rejected
func (r *PostgresOfferRepository) RejectOthersPending(ctx context.Context, tx pgx.Tx, itemID, exceptOfferID int64, decidedAt time.Time) ([]*offers.Offer, error) {
	query := `
		UPDATE offers o
		SET status = 'rejected', decided_at = $3, updated_at = NOW()
		FROM items i
		WHERE i.id = o.item_id
			AND o.item_id = $1
			AND o.id <> $2
			AND o.status = 'pending'
		RETURNING o.id, o.item_id, o.buyer_id, i.seller_id, o.amount_cents, o.message,
			o.status, o.decided_at, o.created_at, o.updated_at
	`
	rows, err := tx.Query(ctx, query, itemID, exceptOfferID, decidedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to reject pending offers: %w", err)
	}
	return collectOffers(rows)
}

// ListForItem lists every offer on an item, newest first
func (r *PostgresOfferRepository) ListForItem(ctx context.Context, itemID int64, limit, offset int) ([]*offers.Offer, error) {
	query := offerSelect + `
		WHERE o.item_id = $1
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $2 OFFSET $3`
	return r.list(ctx, query, itemID, limit, offset)
}

// ListForBuyer lists the offers a buyer has made, newest first
func (r *PostgresOfferRepository) ListForBuyer(ctx context.Context, buyerID int64, limit, offset int) ([]*offers.Offer, error) {
	query := offerSelect + `
		WHERE o.buyer_id = $1
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $2 OFFSET $3`
	return r.list(ctx, query, buyerID, limit, offset)
}

// ListForSeller lists offers across a seller's items, newest first
func (r *PostgresOfferRepository) ListForSeller(ctx context.Context, sellerID int64, limit, offset int) ([]*offers.Offer, error) {
	query := offerSelect + `
		WHERE i.seller_id = $1
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $2 OFFSET $3`
	return r.list(ctx, query, sellerID, limit, offset)
}

func (r *PostgresOfferRepository) list(ctx context.Context, query string, args ...any) ([]*offers.Offer, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query offers: %w", err)
	}
	return collectOffers(rows)
}

func collectOffers(rows pgx.Rows) ([]*offers.Offer, error) {
	defer rows.Close()

	result := make([]*offers.Offer, 0)
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		result = append(result, offer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating offers: %w", err)
	}

	return result, nil
}

func scanOffer(row pgx.Row) (*offers.Offer, error) {
	var offer offers.Offer
	err := row.Scan(
		&offer.ID,
		&offer.ItemID,
		&offer.BuyerID,
		&offer.SellerID,
		&offer.AmountCents,
		&offer.Message,
		&offer.Status,
		&offer.DecidedAt,
		&offer.CreatedAt,
		&offer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &offer, nil
}
