package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgdb "github.com/floroz/bazaar/pkg/database"
	"github.com/floroz/bazaar/services/market-service/internal/domain/items"
)

const itemColumns = `id, seller_id, title, description, condition, price_cents, is_negotiable,
	category_id, location_lat, location_lng, status, created_at, updated_at`

// PostgresItemRepository implements items.Repository and negotiation.ItemRepository using pgx
type PostgresItemRepository struct {
	pool *pgxpool.Pool // Keep pool for non-transactional reads
}

// NewPostgresItemRepository creates a new PostgreSQL item repository
func NewPostgresItemRepository(pool *pgxpool.Pool) *PostgresItemRepository {
	return &PostgresItemRepository{pool: pool}
}

// Create inserts a new item
func (r *PostgresItemRepository) Create(ctx context.Context, item *items.Item) error {
	query := `
		INSERT INTO items (seller_id, title, description, condition, price_cents, is_negotiable,
			category_id, location_lat, location_lng, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4::item_condition, $5, $6, $7, $8, $9, $10::item_status, $11, $12)
		RETURNING id
	`
	var lat, lng *float64
	if item.Location != nil {
		lat, lng = &item.Location.Lat, &item.Location.Lng
	}

	err := r.pool.QueryRow(ctx, query,
		item.SellerID,
		item.Title,
		item.Description,
		item.Condition,
		item.PriceCents,
		item.IsNegotiable,
		item.CategoryID,
		lat,
		lng,
		item.Status,
		item.CreatedAt,
		item.UpdatedAt,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

// GetByID retrieves an item by its ID (non-transactional read)
func (r *PostgresItemRepository) GetByID(ctx context.Context, itemID int64) (*items.Item, error) {
	return r.getItem(ctx, r.pool, itemID, "")
}

// GetByIDForUpdate retrieves an item by its ID and locks it for update
func (r *PostgresItemRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, itemID int64) (*items.Item, error) {
	return r.getItem(ctx, tx, itemID, items.LockForUpdate.SQL())
}

// GetForOffer reads the negotiation view of an item without locking
func (r *PostgresItemRepository) GetForOffer(ctx context.Context, itemID int64) (*items.OfferTarget, error) {
	return r.getOfferTarget(ctx, r.pool, itemID, "")
}

// GetForOfferLocked reads the negotiation view of an item and locks the row in the given mode
func (r *PostgresItemRepository) GetForOfferLocked(ctx context.Context, tx pgx.Tx, itemID int64, mode items.LockMode) (*items.OfferTarget, error) {
	return r.getOfferTarget(ctx, tx, itemID, mode.SQL())
}

func (r *PostgresItemRepository) getOfferTarget(ctx context.Context, db pkgdb.DBTX, itemID int64, lock string) (*items.OfferTarget, error) {
	query := `
		SELECT id, seller_id, status, is_negotiable
		FROM items
		WHERE id = $1
	` + lock

	var t items.OfferTarget
	err := db.QueryRow(ctx, query, itemID).Scan(&t.ID, &t.SellerID, &t.Status, &t.IsNegotiable)
	if err != nil {
		if pkgdb.IsNoRows(err) {
			return nil, items.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &t, nil
}

// getItem is the internal implementation that works with any DBTX
func (r *PostgresItemRepository) getItem(ctx context.Context, db pkgdb.DBTX, itemID int64, lock string) (*items.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1` + lock

	item, err := scanItem(db.QueryRow(ctx, query, itemID))
	if err != nil {
		if pkgdb.IsNoRows(err) {
			return nil, items.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// UpdateStatus writes an item's status within a transaction
func (r *PostgresItemRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, itemID int64, status items.ItemStatus) error {
	query := `
		UPDATE items
		SET status = $1::item_status, updated_at = NOW()
		WHERE id = $2
	`
	result, err := tx.Exec(ctx, query, status, itemID)
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return items.ErrItemNotFound
	}

	return nil
}

// ListActive retrieves active items with pagination, newest first
func (r *PostgresItemRepository) ListActive(ctx context.Context, limit, offset int) ([]*items.Item, error) {
	query := `SELECT ` + itemColumns + `
		FROM items
		WHERE status = 'active'
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`
	return r.list(ctx, query, limit, offset)
}

// ListBySeller retrieves a seller's items except deleted ones
func (r *PostgresItemRepository) ListBySeller(ctx context.Context, sellerID int64, limit, offset int) ([]*items.Item, error) {
	query := `SELECT ` + itemColumns + `
		FROM items
		WHERE seller_id = $1 AND status <> 'deleted'
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	return r.list(ctx, query, sellerID, limit, offset)
}

func (r *PostgresItemRepository) list(ctx context.Context, query string, args ...any) ([]*items.Item, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	list := make([]*items.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		list = append(list, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return list, nil
}

func scanItem(row pgx.Row) (*items.Item, error) {
	var (
		item     items.Item
		lat, lng *float64
	)
	err := row.Scan(
		&item.ID,
		&item.SellerID,
		&item.Title,
		&item.Description,
		&item.Condition,
		&item.PriceCents,
		&item.IsNegotiable,
		&item.CategoryID,
		&lat,
		&lng,
		&item.Status,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		item.Location = &items.GeoPoint{Lat: *lat, Lng: *lng}
	}
	return &item, nil
}
