package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgdb "github.com/floroz/bazaar/pkg/database"
	"github.com/floroz/bazaar/services/market-service/internal/domain/transactions"
)

const constraintOneLivePerItem = "transactions_one_live_per_item"

const transactionColumns = `id, item_id, seller_id, buyer_id, offer_id, agreed_price_cents, status,
	met_at, location_note, completed_at, canceled_at, created_at, updated_at`

// PostgresTransactionRepository implements negotiation.TransactionRepository using pgx
type PostgresTransactionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTransactionRepository creates a new PostgreSQL transaction repository
func NewPostgresTransactionRepository(pool *pgxpool.Pool) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{pool: pool}
}

// GetByItem returns the live transaction for the item, or nil
func (r *PostgresTransactionRepository) GetByItem(ctx context.Context, itemID int64) (*transactions.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE item_id = $1 AND status <> 'canceled'`

	txn, err := scanTransaction(r.pool.QueryRow(ctx, query, itemID))
	if err != nil {
		if pkgdb.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get item transaction: %w", err)
	}
	return txn, nil
}

// GetLatestByItemForUpdate locks and returns the row a new accept must reuse or
// respect: the live one if any, otherwise the most recently canceled one
func (r *PostgresTransactionRepository) GetLatestByItemForUpdate(ctx context.Context, tx pgx.Tx, itemID int64) (*transactions.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE item_id = $1
		ORDER BY (status <> 'canceled') DESC, updated_at DESC, id DESC
		LIMIT 1
		FOR UPDATE`

	txn, err := scanTransaction(tx.QueryRow(ctx, query, itemID))
	if err != nil {
		if pkgdb.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest item transaction: %w", err)
	}
	return txn, nil
}

// FindByID retrieves a transaction by its ID
func (r *PostgresTransactionRepository) FindByID(ctx context.Context, id int64) (*transactions.Transaction, error) {
	return r.findByID(ctx, r.pool, id, "")
}

// FindByIDForUpdate retrieves a transaction and locks its row
func (r *PostgresTransactionRepository) FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*transactions.Transaction, error) {
	return r.findByID(ctx, tx, id, " FOR UPDATE")
}

func (r *PostgresTransactionRepository) findByID(ctx context.Context, db pkgdb.DBTX, id int64, lock string) (*transactions.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1` + lock

	txn, err := scanTransaction(db.QueryRow(ctx, query, id))
	if err != nil {
		if pkgdb.IsNoRows(err) {
			return nil, transactions.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// Create inserts a pending transaction
func (r *PostgresTransactionRepository) Create(ctx context.Context, tx pgx.Tx, txn *transactions.Transaction) error {
	query := `
		INSERT INTO transactions (item_id, seller_id, buyer_id, offer_id, agreed_price_cents, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING id, status, created_at, updated_at
	`
	err := tx.QueryRow(ctx, query,
		txn.ItemID,
		txn.SellerID,
		txn.BuyerID,
		txn.OfferID,
		txn.AgreedPriceCents,
	).Scan(&txn.ID, &txn.Status, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		if pkgdb.IsUniqueViolation(err, constraintOneLivePerItem) {
			return transactions.ErrLiveTransactionExists
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// ReviveCanceled reuses a canceled row for a new buyer and price, clearing
// everything the previous settlement attempt recorded
func (r *PostgresTransactionRepository) ReviveCanceled(ctx context.Context, tx pgx.Tx, txn *transactions.Transaction) error {
	query := `
		UPDATE transactions
		SET buyer_id = $2,
			offer_id = $3,
			agreed_price_cents = $4,
			status = 'pending',
			met_at = NULL,
			location_note = NULL,
			completed_at = NULL,
			canceled_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'canceled'
		RETURNING status, created_at, updated_at
	`
	err := tx.QueryRow(ctx, query, txn.ID, txn.BuyerID, txn.OfferID, txn.AgreedPriceCents).
		Scan(&txn.Status, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		if pkgdb.IsNoRows(err) {
			return transactions.ErrNotCanceled
		}
		if pkgdb.IsUniqueViolation(err, constraintOneLivePerItem) {
			return transactions.ErrLiveTransactionExists
		}
		return fmt.Errorf("failed to revive transaction: %w", err)
	}
	txn.MetAt, txn.LocationNote, txn.CompletedAt, txn.CanceledAt = nil, nil, nil, nil
	return nil
}

// Complete moves a pending transaction to completed. met_at defaults to now.
func (r *PostgresTransactionRepository) Complete(ctx context.Context, tx pgx.Tx, id int64, settlement transactions.Settlement) error {
	query := `
		UPDATE transactions
		SET status = 'completed',
			met_at = COALESCE($2, NOW()),
			location_note = $3,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	result, err := tx.Exec(ctx, query, id, settlement.MetAt, settlement.LocationNote)
	if err != nil {
		return fmt.Errorf("failed to complete transaction: %w", err)
	}
	if result.RowsAffected() == 0 {
		return transactions.ErrTransactionNotPending
	}
	return nil
}

// Cancel moves a pending transaction to canceled
func (r *PostgresTransactionRepository) Cancel(ctx context.Context, tx pgx.Tx, id int64) error {
	query := `
		UPDATE transactions
		SET status = 'canceled', canceled_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	result, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to cancel transaction: %w", err)
	}
	if result.RowsAffected() == 0 {
		return transactions.ErrTransactionNotPending
	}
	return nil
}

func scanTransaction(row pgx.Row) (*transactions.Transaction, error) {
	var txn transactions.Transaction
	err := row.Scan(
		&txn.ID,
		&txn.ItemID,
		&txn.SellerID,
		&txn.BuyerID,
		&txn.OfferID,
		&txn.AgreedPriceCents,
		&txn.Status,
		&txn.MetAt,
		&txn.LocationNote,
		&txn.CompletedAt,
		&txn.CanceledAt,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}
