//go:build integration

package negotiation_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/floroz/bazaar/pkg/database"
	"github.com/floroz/bazaar/pkg/testhelpers"
	infradb "github.com/floroz/bazaar/services/market-service/internal/adapters/database"
	"github.com/floroz/bazaar/services/market-service/internal/domain/domainerr"
	"github.com/floroz/bazaar/services/market-service/internal/domain/items"
	"github.com/floroz/bazaar/services/market-service/internal/domain/negotiation"
	"github.com/floroz/bazaar/services/market-service/internal/domain/notification"
	"github.com/floroz/bazaar/services/market-service/internal/domain/offers"
	"github.com/floroz/bazaar/services/market-service/internal/domain/transactions"
)

const migrationsPath = "../../../migrations"

type countingNotifier struct {
	mu   sync.Mutex
	sent []notification.Notification
}

func (n *countingNotifier) Notify(_ context.Context, msg notification.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

// testServices holds all service dependencies for testing
type testServices struct {
	Service    *negotiation.Service
	Items      *items.Service
	ItemRepo   *infradb.PostgresItemRepository
	OfferRepo  *infradb.PostgresOfferRepository
	TxnRepo    *infradb.PostgresTransactionRepository
	OutboxRepo *infradb.PostgresOutboxRepository
	TxManager  database.TransactionManager
	Notifier   *countingNotifier
}

func setupServices(pool *pgxpool.Pool) *testServices {
	txManager := database.NewPostgresTransactionManager(pool, 5*time.Second)
	itemRepo := infradb.NewPostgresItemRepository(pool)
	offerRepo := infradb.NewPostgresOfferRepository(pool)
	txnRepo := infradb.NewPostgresTransactionRepository(pool)
	outboxRepo := infradb.NewPostgresOutboxRepository(pool)
	notifier := &countingNotifier{}

	return &testServices{
		Service:    negotiation.NewService(txManager, itemRepo, offerRepo, txnRepo, outboxRepo, notifier, nil),
		Items:      items.NewService(txManager, itemRepo, offerRepo, outboxRepo, items.WithNotifier(notifier, 0)),
		ItemRepo:   itemRepo,
		OfferRepo:  offerRepo,
		TxnRepo:    txnRepo,
		OutboxRepo: outboxRepo,
		TxManager:  txManager,
		Notifier:   notifier,
	}
}

func seedItem(t *testing.T, svc *testServices, sellerID int64) *items.Item {
	t.Helper()
	item, err := svc.Items.CreateItem(context.Background(), items.CreateItemCommand{
		SellerID:     sellerID,
		Title:        "Vintage Guitar",
		Description:  "A beautiful 1960s guitar",
		Condition:    items.ConditionGood,
		PriceCents:   5000,
		IsNegotiable: true,
	})
	require.NoError(t, err, "Failed to seed test item")
	return item
}

func countLiveTransactions(t *testing.T, pool *pgxpool.Pool, itemID int64) int {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM transactions WHERE item_id = $1 AND status <> 'canceled'`, itemID).Scan(&n)
	require.NoError(t, err)
	return n
}

func countOffers(t *testing.T, pool *pgxpool.Pool, itemID int64, status offers.OfferStatus) int {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM offers WHERE item_id = $1 AND status = $2::offer_status`, itemID, status).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestNegotiation_Integration(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, migrationsPath)
	defer testDB.Close()

	pool := testDB.Pool
	ctx := context.Background()

	const (
		seller int64 = 1
		b1     int64 = 2
		b2     int64 = 3
	)

	t.Run("accept rejects siblings and reserves the item", func(t *testing.T) {
		testhelpers.CleanDatabase(t, pool)
		svc := setupServices(pool)
		item := seedItem(t, svc, seller)

		o1, err := svc.Service.CreateOffer(ctx, negotiation.CreateOfferCommand{BuyerID: b1, ItemID: item.ID, AmountCents: 4000})
		require.NoError(t, err)
		o2, err := svc.Service.CreateOffer(ctx, negotiation.CreateOfferCommand{BuyerID: b2, ItemID: item.ID, AmountCents: 4200})
		require.NoError(t, err)

		result, err := svc.Service.AcceptOffer(ctx, negotiation.AcceptOfferCommand{SellerID: seller, OfferID: o1.ID})
		require.NoError(t, err)
		assert.Equal(t, int64(4000), result.Transaction.AgreedPriceCents)
		assert.Equal(t, b1, result.Transaction.BuyerID)

		loser, err := svc.OfferRepo.FindByID(ctx, o2.ID)
		require.NoError(t, err)
		assert.Equal(t, offers.OfferStatusRejected, loser.Status)
		assert.NotNil(t, loser.DecidedAt)

		got, err := svc.ItemRepo.GetByID(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, items.ItemStatusReserved, got.Status)

		_, err = svc.Service.AcceptOffer(ctx, negotiation.AcceptOfferCommand{SellerID: seller, OfferID: o2.ID})
		assert.ErrorIs(t, err, offers.ErrOfferNotPending)

		// offer.created x2 + offer.accepted
		tx, err := svc.TxManager.BeginTx(ctx)
		require.NoError(t, err)
		defer func() {
			_ = tx.Rollback(ctx)
		}()
		events, err := svc.OutboxRepo.GetPendingEvents(ctx, tx, 10)
		require.NoError(t, err)
		assert.Len(t, events, 3)
	})

	t.Run("duplicate pending offer conflicts", func(t *testing.T) {
		testhelpers.CleanDatabase(t, pool)
		svc := setupServices(pool)
		item := seedItem(t, svc, seller)

		_, err := svc.Service.CreateOffer(ctx, negotiation.CreateOfferCommand{BuyerID: b1, ItemID: item.ID, AmountCents: 100})
		require.NoError(t, err)
		_, err = svc.Service.CreateOffer(ctx, negotiation.CreateOfferCommand{BuyerID: b1, ItemID: item.ID, AmountCents: 200})
		assert.ErrorIs(t, err, domainerr.ErrConflict)
	})

	t.Run("concurrent accepts produce a single winner", func(t *testing.T) {
		testhelpers.CleanDatabase(t, pool)
		svc := setupServices(pool)
		item := seedItem(t, svc, seller)

		const n = 8
		offerIDs := make([]int64, n)
		for i := range n {
			o, err := svc.Service.CreateOffer(ctx, negotiation.CreateOfferCommand{
				BuyerID:     int64(100 + i),
				ItemID:      item.ID,
				AmountCents: int64(1000 + i),
			})
			require.NoError(t, err)
			offerIDs[i] = o.ID
		}

		var (
			mu       sync.Mutex
			winners  int
			failures []error
		)
		var g errgroup.Group
		for _, id := range offerIDs {
			g.Go(func() error {
				_, err := svc.Service.AcceptOffer(ctx, negotiation.AcceptOfferCommand{SellerID: seller, OfferID: id})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					winners++
					return nil
				}
				failures = append(failures, err)
				return nil
			})
		}
		require.NoError(t, g.Wait())

		assert.Equal(t, 1, winners, "exactly one accept must win")
		for _, err := range failures {
			kind := domainerr.KindOf(err)
			assert.True(t, kind == domainerr.KindInvalidState || kind == domainerr.KindBusy,
				"loser failed with %v (%v)", kind, err)
		}

		assert.Equal(t, 1, countOffers(t, pool, item.ID, offers.OfferStatusAccepted))
		assert.Equal(t, n-1, countOffers(t, pool, item.ID, offers.OfferStatusRejected))
		assert.Equal(t, 1, countLiveTransactions(t, pool, item.ID))
	})

	t.Run("concurrent offers and accept keep the item consistent", func(t *testing.T) {
		testhelpers.CleanDatabase(t, pool)
		svc := setupServices(pool)
		item := seedItem(t, svc, seller)

		first, err := svc.Service.CreateOffer(ctx, negotiation.CreateOfferCommand{BuyerID: b1, ItemID: item.ID, AmountCents: 500})
		require.NoError(t, err)

		var g errgroup.Group
		g.Go(func() error {
			_, err := svc.Service.AcceptOffer(ctx, negotiation.AcceptOfferCommand{SellerID: seller, OfferID: first.ID})
			return err
		})
		for i := range 6 {
			g.Go(func() error {
				// late buyers either get in before the accept or see a reserved item
				_, err := svc.Service.CreateOffer(ctx, negotiation.CreateOfferCommand{
					BuyerID: int64(200 + i), ItemID: item.ID, AmountCents: 600,
				})
				if err != nil && !domainerr.IsRetryable(err) && domainerr.KindOf(err) != domainerr.KindInvalidState {
					return fmt.Errorf("unexpected create failure: %w", err)
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		assert.Equal(t, 0, countOffers(t, pool, item.ID, offers.OfferStatusPending),
			"no pending offer may survive on a reserved item")
		assert.Equal(t, 1, countOffers(t, pool, item.ID, offers.OfferStatusAccepted))
		assert.Equal(t, 1, countLiveTransactions(t, pool, item.ID))
	})

	t.Run("cancel then accept again revives the same transaction row", func(t *testing.T) {
		testhelpers.CleanDatabase(t, pool)
		svc := setupServices(pool)
		item := seedItem(t, svc, seller)

		o1, err := svc.Service.CreateOffer(ctx, negotiation.CreateOfferCommand{BuyerID: b1, ItemID: item.ID, AmountCents: 4000})
		require.NoError(t, err)
		first, err := svc.Service.AcceptOffer(ctx, negotiation.AcceptOfferCommand{SellerID: seller, OfferID: o1.ID})
		require.NoError(t, err)

		canceled, err := svc.Service.CancelTransaction(ctx, negotiation.CancelTransactionCommand{UserID: b1, TransactionID: first.Transaction.ID})
		require.NoError(t, err)
		assert.Equal(t, items.ItemStatusActive, canceled.ItemStatus)
		assert.Equal(t, 0, countLiveTransactions(t, pool, item.ID))
		assert.Equal(t, 0, countOffers(t, pool, item.ID, offers.OfferStatusAccepted))

		o2, err := svc.Service.CreateOffer(ctx, negotiation.CreateOfferCommand{BuyerID: b2, ItemID: item.ID, AmountCents: 3900})
		require.NoError(t, err)
		second, err := svc.Service.AcceptOffer(ctx, negotiation.AcceptOfferCommand{SellerID: seller, OfferID: o2.ID})
		require.NoError(t, err)

		assert.True(t, second.Revived)
		assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
		assert.Equal(t, b2, second.Transaction.BuyerID)
		assert.Equal(t, int64(3900), second.Transaction.AgreedPriceCents)

		var rows int
		require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE item_id = $1`, item.ID).Scan(&rows))
		assert.Equal(t, 1, rows, "revival must not insert a second row")
	})

	t.Run("complete marks item sold and blocks cancel", func(t *testing.T) {
		testhelpers.CleanDatabase(t, pool)
		svc := setupServices(pool)
		item := seedItem(t, svc, seller)

		o1, err := svc.Service.CreateOffer(ctx, negotiation.CreateOfferCommand{BuyerID: b1, ItemID: item.ID, AmountCents: 4000})
		require.NoError(t, err)
		accepted, err := svc.Service.AcceptOffer(ctx, negotiation.AcceptOfferCommand{SellerID: seller, OfferID: o1.ID})
		require.NoError(t, err)

		note := "Main station, platform 3"
		_, err = svc.Service.CompleteTransaction(ctx, negotiation.CompleteTransactionCommand{
			UserID: seller, TransactionID: accepted.Transaction.ID, LocationNote: &note,
		})
		require.NoError(t, err)

		txn, err := svc.TxnRepo.FindByID(ctx, accepted.Transaction.ID)
		require.NoError(t, err)
		assert.Equal(t, transactions.TransactionStatusCompleted, txn.Status)
		require.NotNil(t, txn.LocationNote)
		assert.Equal(t, note, *txn.LocationNote)
		assert.NotNil(t, txn.MetAt)

		got, err := svc.ItemRepo.GetByID(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, items.ItemStatusSold, got.Status)

		_, err = svc.Service.CancelTransaction(ctx, negotiation.CancelTransactionCommand{UserID: b1, TransactionID: accepted.Transaction.ID})
		assert.ErrorIs(t, err, transactions.ErrTransactionNotPending)
	})

	t.Run("cancel does not reopen a deleted item", func(t *testing.T) {
		testhelpers.CleanDatabase(t, pool)
		svc := setupServices(pool)
		item := seedItem(t, svc, seller)

		o1, err := svc.Service.CreateOffer(ctx, negotiation.CreateOfferCommand{BuyerID: b1, ItemID: item.ID, AmountCents: 4000})
		require.NoError(t, err)
		accepted, err := svc.Service.AcceptOffer(ctx, negotiation.AcceptOfferCommand{SellerID: seller, OfferID: o1.ID})
		require.NoError(t, err)

		_, err = svc.Items.DeleteItem(ctx, items.DeleteItemCommand{ItemID: item.ID, UserID: seller})
		require.NoError(t, err)

		result, err := svc.Service.CancelTransaction(ctx, negotiation.CancelTransactionCommand{UserID: seller, TransactionID: accepted.Transaction.ID})
		require.NoError(t, err)
		assert.Equal(t, items.ItemStatusDeleted, result.ItemStatus)

		got, err := svc.ItemRepo.GetByID(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, items.ItemStatusDeleted, got.Status)
	})
	t.Run("complete does not resurrect a deleted item", func(t *testing.T) {
		testhelpers.CleanDatabase(t, pool)
		svc := setupServices(pool)
		item := seedItem(t, svc, seller)

		o1, err := svc.Service.CreateOffer(ctx, negotiation.CreateOfferCommand{BuyerID: b1, ItemID: item.ID, AmountCents: 4000})
		require.NoError(t, err)
		accepted, err := svc.Service.AcceptOffer(ctx, negotiation.AcceptOfferCommand{SellerID: seller, OfferID: o1.ID})
		require.NoError(t, err)

		_, err = svc.Items.DeleteItem(ctx, items.DeleteItemCommand{ItemID: item.ID, UserID: seller})
		require.NoError(t, err)

		result, err := svc.Service.CompleteTransaction(ctx, negotiation.CompleteTransactionCommand{UserID: b1, TransactionID: accepted.Transaction.ID})
		require.NoError(t, err)
		assert.Equal(t, transactions.TransactionStatusCompleted, result.Transaction.Status)
		assert.Equal(t, items.ItemStatusDeleted, result.ItemStatus)

		got, err := svc.ItemRepo.GetByID(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, items.ItemStatusDeleted, got.Status)
	})

	t.Run("accept gives up with busy while the item is locked elsewhere", func(t *testing.T) {
		testhelpers.CleanDatabase(t, pool)
		svc := setupServices(pool)
		item := seedItem(t, svc, seller)

		o1, err := svc.Service.CreateOffer(ctx, negotiation.CreateOfferCommand{BuyerID: b1, ItemID: item.ID, AmountCents: 4000})
		require.NoError(t, err)

		holder, err := pool.Begin(ctx)
		require.NoError(t, err)
		defer func() { _ = holder.Rollback(ctx) }()
		_, err = holder.Exec(ctx, `SELECT id FROM items WHERE id = $1 FOR UPDATE`, item.ID)
		require.NoError(t, err)

		impatient := negotiation.NewService(
			database.NewPostgresTransactionManager(pool, 200*time.Millisecond),
			svc.ItemRepo, svc.OfferRepo, svc.TxnRepo, svc.OutboxRepo, svc.Notifier, nil,
		)
		_, err = impatient.AcceptOffer(ctx, negotiation.AcceptOfferCommand{SellerID: seller, OfferID: o1.ID})
		require.Error(t, err)
		assert.Equal(t, domainerr.KindBusy, domainerr.KindOf(err))
		assert.True(t, domainerr.IsRetryable(err))

		require.NoError(t, holder.Rollback(ctx))

		assert.Equal(t, 0, countLiveTransactions(t, pool, item.ID))
		assert.Equal(t, 1, countOffers(t, pool, item.ID, offers.OfferStatusPending))
		got, err := svc.ItemRepo.GetByID(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, items.ItemStatusActive, got.Status)

		var events int
		require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_events WHERE event_type = 'offer.accepted'`).Scan(&events))
		assert.Zero(t, events)
	})
}
