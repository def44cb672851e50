package items

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/floroz/bazaar/pkg/database"
	"github.com/floroz/bazaar/services/market-service/internal/domain/domainerr"
	"github.com/floroz/bazaar/services/market-service/internal/domain/marketevents"
	"github.com/floroz/bazaar/services/market-service/internal/domain/notification"
	"github.com/floroz/bazaar/services/market-service/internal/domain/offers"
)

const (
	MaxTitleLength  = 200
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var ErrInvalidPage = domainerr.New(domainerr.KindInvalidArgument, "limit and offset must not be negative")

// CreateItemCommand represents the command to list a new item
type CreateItemCommand struct {
	SellerID     int64
	Title        string
	Description  string
	Condition    Condition
	PriceCents   int64
	IsNegotiable bool
	CategoryID   int64
	Location     *GeoPoint
}

func (c CreateItemCommand) validate() error {
	title := strings.TrimSpace(c.Title)
	if title == "" || len([]rune(title)) > MaxTitleLength {
		return ErrInvalidTitle
	}
	if c.PriceCents < 0 {
		return ErrInvalidPrice
	}
	if !c.Condition.IsValid() {
		return ErrInvalidCondition
	}
	if c.Location != nil && (c.Location.Lat < -90 || c.Location.Lat > 90 || c.Location.Lng < -180 || c.Location.Lng > 180) {
		return ErrInvalidLocation
	}
	return nil
}

// DeleteItemCommand represents the command to soft delete an item
type DeleteItemCommand struct {
	ItemID  int64
	UserID  int64
	IsAdmin bool
}

// ListItemsQuery represents pagination parameters for listing items
type ListItemsQuery struct {
	Limit  int
	Offset int
}

// ListSellerItemsQuery represents pagination parameters for listing a seller's items
type ListSellerItemsQuery struct {
	SellerID int64
	Limit    int
	Offset   int
}

func normalizePage(limit, offset int) (int, int, error) {
	if limit < 0 || offset < 0 {
		return 0, 0, ErrInvalidPage
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	return min(limit, MaxPageSize), offset, nil
}

// DeleteResult is the deleted item plus the offers closed with it
type DeleteResult struct {
	Item     *Item
	Rejected []*offers.Offer
}

// Service implements the listing side of items
type Service struct {
	txManager     database.TransactionManager
	repo          Repository
	offers        OfferRejecter
	outboxRepo    OutboxRepository
	notifier      notification.Notifier
	notifyTimeout time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithNotifier tells buyers when their pending offers close because the item was deleted
func WithNotifier(n notification.Notifier, timeout time.Duration) Option {
	return func(s *Service) {
		s.notifier = n
		if timeout > 0 {
			s.notifyTimeout = timeout
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a new item service
func NewService(txManager database.TransactionManager, repo Repository, offerRejecter OfferRejecter, outboxRepo OutboxRepository, opts ...Option) *Service {
	s := &Service{
		txManager:     txManager,
		repo:          repo,
		offers:        offerRejecter,
		outboxRepo:    outboxRepo,
		notifyTimeout: 5 * time.Second,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CreateItem lists a new item in active status
func (s *Service) CreateItem(ctx context.Context, cmd CreateItemCommand) (*Item, error) {
	if cmd.SellerID <= 0 {
		return nil, ErrUnauthorized
	}
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	item := &Item{
		SellerID:     cmd.SellerID,
		Title:        strings.TrimSpace(cmd.Title),
		Description:  cmd.Description,
		Condition:    cmd.Condition,
		PriceCents:   cmd.PriceCents,
		IsNegotiable: cmd.IsNegotiable,
		CategoryID:   cmd.CategoryID,
		Location:     cmd.Location,
		Status:       ItemStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	return item, nil
}

// GetItem retrieves an item by ID
func (s *Service) GetItem(ctx context.Context, itemID int64) (*Item, error) {
	if itemID <= 0 {
		return nil, ErrItemNotFound
	}
	return s.repo.GetByID(ctx, itemID)
}

// ListItems retrieves active items with pagination
func (s *Service) ListItems(ctx context.Context, query ListItemsQuery) ([]*Item, error) {
	limit, offset, err := normalizePage(query.Limit, query.Offset)
	if err != nil {
		return nil, err
	}
	list, err := s.repo.ListActive(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return list, nil
}

// ListSellerItems retrieves all items for a specific seller
func (s *Service) ListSellerItems(ctx context.Context, query ListSellerItemsQuery) ([]*Item, error) {
	limit, offset, err := normalizePage(query.Limit, query.Offset)
	if err != nil {
		return nil, err
	}
	list, err := s.repo.ListBySeller(ctx, query.SellerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list seller items: %w", err)
	}
	return list, nil
}

// DeleteItem soft deletes an item. Pending offers are rejected in the same
// transaction; a live transaction is left for its parties to settle.
func (s *Service) DeleteItem(ctx context.Context, cmd DeleteItemCommand) (*DeleteResult, error) {
	if cmd.ItemID <= 0 {
		return nil, ErrItemNotFound
	}

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	item, err := s.repo.GetByIDForUpdate(ctx, tx, cmd.ItemID)
	if err != nil {
		return nil, busy(err)
	}

	if !item.IsOwnedBy(cmd.UserID) && !cmd.IsAdmin {
		return nil, ErrUnauthorized
	}
	if item.Status == ItemStatusDeleted {
		return nil, ErrAlreadyDeleted
	}

	now := s.now()
	previous := item.Status
	if err := s.repo.UpdateStatus(ctx, tx, item.ID, ItemStatusDeleted); err != nil {
		return nil, fmt.Errorf("failed to delete item: %w", err)
	}
	item.Status = ItemStatusDeleted
	item.UpdatedAt = now

	rejected, err := s.offers.RejectOthersPending(ctx, tx, item.ID, 0, now)
	if err != nil {
		return nil, fmt.Errorf("failed to reject pending offers: %w", err)
	}

	event, err := marketevents.New(marketevents.EventTypeItemDeleted, now, marketevents.Fields{
		"item_id":            item.ID,
		"seller_id":          item.SellerID,
		"deleted_by":         cmd.UserID,
		"by_admin":           cmd.IsAdmin && !item.IsOwnedBy(cmd.UserID),
		"previous_status":    string(previous),
		"rejected_offer_ids": marketevents.IDs(lo.Map(rejected, func(o *offers.Offer, _ int) int64 { return o.ID })),
	})
	if err != nil {
		return nil, err
	}
	if err := s.outboxRepo.SaveEvent(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("failed to save outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notify(ctx, removedNotifications(item, rejected)...)
	return &DeleteResult{Item: item, Rejected: rejected}, nil
}

func busy(err error) error {
	if database.IsRetryable(err) {
		return domainerr.Wrap(domainerr.KindBusy, ErrItemBusy.Msg, err)
	}
	return err
}
