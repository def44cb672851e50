package negotiation

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"

	pkgevents "github.com/floroz/bazaar/pkg/events"
	"github.com/floroz/bazaar/services/market-service/internal/domain/items"
	"github.com/floroz/bazaar/services/market-service/internal/domain/notification"
	"github.com/floroz/bazaar/services/market-service/internal/domain/offers"
	"github.com/floroz/bazaar/services/market-service/internal/domain/transactions"
)

type MockItemRepository struct {
	mock.Mock
}

func (m *MockItemRepository) GetForOffer(ctx context.Context, itemID int64) (*items.OfferTarget, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*items.OfferTarget), args.Error(1)
}

func (m *MockItemRepository) GetForOfferLocked(ctx context.Context, tx pgx.Tx, itemID int64, mode items.LockMode) (*items.OfferTarget, error) {
	args := m.Called(ctx, tx, itemID, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*items.OfferTarget), args.Error(1)
}

func (m *MockItemRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, itemID int64, status items.ItemStatus) error {
	args := m.Called(ctx, tx, itemID, status)
	return args.Error(0)
}

type MockOfferRepository struct {
	mock.Mock
}

func (m *MockOfferRepository) FindPendingByBuyerAndItem(ctx context.Context, tx pgx.Tx, buyerID, itemID int64) (*offers.Offer, error) {
	args := m.Called(ctx, tx, buyerID, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*offers.Offer), args.Error(1)
}

func (m *MockOfferRepository) Create(ctx context.Context, tx pgx.Tx, offer *offers.Offer) error {
	args := m.Called(ctx, tx, offer)
	return args.Error(0)
}

func (m *MockOfferRepository) FindByID(ctx context.Context, offerID int64) (*offers.Offer, error) {
	args := m.Called(ctx, offerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*offers.Offer), args.Error(1)
}

func (m *MockOfferRepository) FindByIDForUpdate(ctx context.Context, tx pgx.Tx, offerID int64) (*offers.Offer, error) {
	args := m.Called(ctx, tx, offerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*offers.Offer), args.Error(1)
}

func (m *MockOfferRepository) SetStatus(ctx context.Context, tx pgx.Tx, offerID int64, status offers.OfferStatus, decidedAt time.Time) error {
	args := m.Called(ctx, tx, offerID, status, decidedAt)
	return args.Error(0)
}

func (m *MockOfferRepository) RejectOthersPending(ctx context.Context, tx pgx.Tx, itemID, exceptOfferID int64, decidedAt time.Time) ([]*offers.Offer, error) {
	args := m.Called(ctx, tx, itemID, exceptOfferID, decidedAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*offers.Offer), args.Error(1)
}

func (m *MockOfferRepository) ListForItem(ctx context.Context, itemID int64, limit, offset int) ([]*offers.Offer, error) {
	args := m.Called(ctx, itemID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*offers.Offer), args.Error(1)
}

func (m *MockOfferRepository) ListForBuyer(ctx context.Context, buyerID int64, limit, offset int) ([]*offers.Offer, error) {
	args := m.Called(ctx, buyerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*offers.Offer), args.Error(1)
}

func (m *MockOfferRepository) ListForSeller(ctx context.Context, sellerID int64, limit, offset int) ([]*offers.Offer, error) {
	args := m.Called(ctx, sellerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*offers.Offer), args.Error(1)
}

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) GetByItem(ctx context.Context, itemID int64) (*transactions.Transaction, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transactions.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetLatestByItemForUpdate(ctx context.Context, tx pgx.Tx, itemID int64) (*transactions.Transaction, error) {
	args := m.Called(ctx, tx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transactions.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) FindByID(ctx context.Context, id int64) (*transactions.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transactions.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*transactions.Transaction, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transactions.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) Create(ctx context.Context, tx pgx.Tx, txn *transactions.Transaction) error {
	args := m.Called(ctx, tx, txn)
	return args.Error(0)
}

func (m *MockTransactionRepository) ReviveCanceled(ctx context.Context, tx pgx.Tx, txn *transactions.Transaction) error {
	args := m.Called(ctx, tx, txn)
	return args.Error(0)
}

func (m *MockTransactionRepository) Complete(ctx context.Context, tx pgx.Tx, id int64, settlement transactions.Settlement) error {
	args := m.Called(ctx, tx, id, settlement)
	return args.Error(0)
}

func (m *MockTransactionRepository) Cancel(ctx context.Context, tx pgx.Tx, id int64) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

// MockOutboxRepository records saved events instead of asserting call args
type MockOutboxRepository struct {
	mu     sync.Mutex
	Err    error
	Events []*pkgevents.OutboxEvent
}

func (m *MockOutboxRepository) SaveEvent(_ context.Context, _ pgx.Tx, event *pkgevents.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, event)
	return nil
}

func (m *MockOutboxRepository) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Events))
	for _, e := range m.Events {
		out = append(out, e.EventType)
	}
	return out
}

// RecordingNotifier captures notifications and the state of the context they were sent with
type RecordingNotifier struct {
	mu      sync.Mutex
	Err     error
	Sent    []notification.Notification
	CtxErrs []error
}

func (n *RecordingNotifier) Notify(ctx context.Context, msg notification.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, msg)
	n.CtxErrs = append(n.CtxErrs, ctx.Err())
	return n.Err
}

func (n *RecordingNotifier) Kinds() []notification.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notification.Kind, 0, len(n.Sent))
	for _, s := range n.Sent {
		out = append(out, s.Kind)
	}
	return out
}
