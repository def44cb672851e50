package negotiation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/floroz/bazaar/pkg/database"
	"github.com/floroz/bazaar/services/market-service/internal/domain/items"
	"github.com/floroz/bazaar/services/market-service/internal/domain/marketevents"
	"github.com/floroz/bazaar/services/market-service/internal/domain/notification"
	"github.com/floroz/bazaar/services/market-service/internal/domain/offers"
	"github.com/floroz/bazaar/services/market-service/internal/domain/transactions"
)

const defaultNotifyTimeout = 2 * time.Second

// Service is the negotiation engine. Every mutation runs in one database
// transaction that locks the item row first, then the offer or transaction row.
type Service struct {
	txManager     database.TransactionManager
	itemRepo      ItemRepository
	offerRepo     OfferRepository
	txnRepo       TransactionRepository
	outboxRepo    OutboxRepository
	notifier      notification.Notifier
	logger        *slog.Logger
	now           func() time.Time
	notifyTimeout time.Duration
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithNotifyTimeout bounds each post-commit notification call
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

// NewService creates a new negotiation engine
func NewService(
	txManager database.TransactionManager,
	itemRepo ItemRepository,
	offerRepo OfferRepository,
	txnRepo TransactionRepository,
	outboxRepo OutboxRepository,
	notifier notification.Notifier,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		txManager:     txManager,
		itemRepo:      itemRepo,
		offerRepo:     offerRepo,
		txnRepo:       txnRepo,
		outboxRepo:    outboxRepo,
		notifier:      notifier,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
		notifyTimeout: defaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CreateOffer records a pending offer from a buyer on an active item.
// The item row is locked FOR SHARE so concurrent offers proceed while an accept waits.
func (s *Service) CreateOffer(ctx context.Context, cmd CreateOfferCommand) (*offers.Offer, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	offer, err := s.createOffer(ctx, cmd)
	if err != nil {
		return nil, classify(err)
	}

	s.notify(ctx, offerReceived(offer))
	return offer, nil
}

func (s *Service) createOffer(ctx context.Context, cmd CreateOfferCommand) (*offers.Offer, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	item, err := s.itemRepo.GetForOfferLocked(ctx, tx, cmd.ItemID, items.LockForShare)
	if err != nil {
		return nil, err
	}
	if item.SellerID == cmd.BuyerID {
		return nil, ErrCannotOfferOwnItem
	}
	if item.Status != items.ItemStatusActive {
		return nil, ErrItemNotActive
	}

	existing, err := s.offerRepo.FindPendingByBuyerAndItem(ctx, tx, cmd.BuyerID, cmd.ItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending offers: %w", err)
	}
	if existing != nil {
		return nil, offers.ErrDuplicatePending
	}

	now := s.now()
	offer := &offers.Offer{
		ItemID:      cmd.ItemID,
		BuyerID:     cmd.BuyerID,
		SellerID:    item.SellerID,
		AmountCents: cmd.AmountCents,
		Message:     cmd.Message,
		Status:      offers.OfferStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.offerRepo.Create(ctx, tx, offer); err != nil {
		return nil, err
	}

	if err := s.saveEvent(ctx, tx, marketevents.EventTypeOfferCreated, now, marketevents.Fields{
		"offer_id":      offer.ID,
		"item_id":       offer.ItemID,
		"buyer_id":      offer.BuyerID,
		"seller_id":     offer.SellerID,
		"amount_cents":  offer.AmountCents,
		"is_negotiable": item.IsNegotiable,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return offer, nil
}

// AcceptOffer accepts one pending offer, rejects every other pending offer on the item,
// reserves the item, and creates (or revives) the item's transaction, all atomically.
// When two accepts on one item race, exactly one wins; the other observes the
// first one's effects and fails with InvalidState.
func (s *Service) AcceptOffer(ctx context.Context, cmd AcceptOfferCommand) (*AcceptOfferResult, error) {
	if err := validateIDs(cmd.SellerID, cmd.OfferID); err != nil {
		return nil, err
	}

	// The offer's item never changes, so an unlocked read is enough to find
	// which item row to lock first.
	pre, err := s.offerRepo.FindByID(ctx, cmd.OfferID)
	if err != nil {
		return nil, classify(err)
	}

	result, err := s.acceptOffer(ctx, cmd, pre.ItemID)
	if err != nil {
		return nil, classify(err)
	}

	s.notify(ctx, acceptedNotifications(result)...)
	return result, nil
}

func (s *Service) acceptOffer(ctx context.Context, cmd AcceptOfferCommand, itemID int64) (*AcceptOfferResult, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	item, err := s.itemRepo.GetForOfferLocked(ctx, tx, itemID, items.LockForUpdate)
	if err != nil {
		return nil, err
	}
	offer, err := s.offerRepo.FindByIDForUpdate(ctx, tx, cmd.OfferID)
	if err != nil {
		return nil, err
	}

	if item.SellerID != cmd.SellerID {
		return nil, ErrNotItemSeller
	}
	if !offer.IsPending() {
		return nil, offers.ErrOfferNotPending
	}
	if item.Status != items.ItemStatusActive && item.Status != items.ItemStatusReserved {
		return nil, ErrItemNotAcceptable
	}

	now := s.now()
	if err := s.offerRepo.SetStatus(ctx, tx, offer.ID, offers.OfferStatusAccepted, now); err != nil {
		return nil, fmt.Errorf("failed to accept offer: %w", err)
	}
	offer.Status = offers.OfferStatusAccepted
	offer.DecidedAt = &now
	offer.UpdatedAt = now

	rejected, err := s.offerRepo.RejectOthersPending(ctx, tx, item.ID, offer.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to reject competing offers: %w", err)
	}

	if err := s.itemRepo.UpdateStatus(ctx, tx, item.ID, items.ItemStatusReserved); err != nil {
		return nil, fmt.Errorf("failed to reserve item: %w", err)
	}

	txn, revived, err := s.openTransaction(ctx, tx, item, offer)
	if err != nil {
		return nil, err
	}

	if err := s.saveEvent(ctx, tx, marketevents.EventTypeOfferAccepted, now, marketevents.Fields{
		"offer_id":           offer.ID,
		"item_id":            item.ID,
		"buyer_id":           offer.BuyerID,
		"seller_id":          item.SellerID,
		"amount_cents":       offer.AmountCents,
		"transaction_id":     txn.ID,
		"revived":            revived,
		"rejected_offer_ids": marketevents.IDs(offerIDs(rejected)),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &AcceptOfferResult{
		Offer:       offer,
		Transaction: txn,
		Rejected:    rejected,
		Revived:     revived,
	}, nil
}

// openTransaction creates the item's transaction, reusing the most recent
// canceled row when one exists so an item keeps a single settlement record.
func (s *Service) openTransaction(ctx context.Context, tx pgx.Tx, item *items.OfferTarget, offer *offers.Offer) (*transactions.Transaction, bool, error) {
	latest, err := s.txnRepo.GetLatestByItemForUpdate(ctx, tx, item.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load item transaction: %w", err)
	}
	if latest != nil && latest.IsLive() {
		return nil, false, transactions.ErrLiveTransactionExists
	}

	txn := &transactions.Transaction{
		ItemID:           item.ID,
		SellerID:         item.SellerID,
		BuyerID:          offer.BuyerID,
		OfferID:          offer.ID,
		AgreedPriceCents: offer.AmountCents,
		Status:           transactions.TransactionStatusPending,
	}

	if latest != nil {
		txn.ID = latest.ID
		txn.CreatedAt = latest.CreatedAt
		if err := s.txnRepo.ReviveCanceled(ctx, tx, txn); err != nil {
			return nil, false, err
		}
		return txn, true, nil
	}

	if err := s.txnRepo.Create(ctx, tx, txn); err != nil {
		return nil, false, err
	}
	return txn, false, nil
}

// RejectOffer declines a pending offer. The item is left as it is.
func (s *Service) RejectOffer(ctx context.Context, cmd RejectOfferCommand) (*offers.Offer, error) {
	if err := validateIDs(cmd.SellerID, cmd.OfferID); err != nil {
		return nil, err
	}

	offer, err := s.decideOffer(ctx, cmd.OfferID, offers.OfferStatusRejected, func(item *items.OfferTarget, o *offers.Offer) error {
		if item.SellerID != cmd.SellerID {
			return ErrNotItemSeller
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, offerRejected(offer))
	return offer, nil
}

// WithdrawOffer retracts the buyer's own pending offer
func (s *Service) WithdrawOffer(ctx context.Context, cmd WithdrawOfferCommand) (*offers.Offer, error) {
	if err := validateIDs(cmd.BuyerID, cmd.OfferID); err != nil {
		return nil, err
	}

	offer, err := s.decideOffer(ctx, cmd.OfferID, offers.OfferStatusWithdrawn, func(_ *items.OfferTarget, o *offers.Offer) error {
		if o.BuyerID != cmd.BuyerID {
			return ErrNotOfferBuyer
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, offerWithdrawn(offer))
	return offer, nil
}

// decideOffer moves a single pending offer to a terminal status under the item lock
func (s *Service) decideOffer(
	ctx context.Context,
	offerID int64,
	to offers.OfferStatus,
	authorize func(*items.OfferTarget, *offers.Offer) error,
) (*offers.Offer, error) {
	pre, err := s.offerRepo.FindByID(ctx, offerID)
	if err != nil {
		return nil, classify(err)
	}

	offer, err := func() (*offers.Offer, error) {
		tx, err := s.txManager.BeginTx(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() {
			_ = tx.Rollback(ctx)
		}()

		item, err := s.itemRepo.GetForOfferLocked(ctx, tx, pre.ItemID, items.LockForUpdate)
		if err != nil {
			return nil, err
		}
		offer, err := s.offerRepo.FindByIDForUpdate(ctx, tx, offerID)
		if err != nil {
			return nil, err
		}

		if err := authorize(item, offer); err != nil {
			return nil, err
		}
		if !offer.IsPending() {
			return nil, offers.ErrOfferNotPending
		}

		now := s.now()
		if err := s.offerRepo.SetStatus(ctx, tx, offer.ID, to, now); err != nil {
			return nil, fmt.Errorf("failed to update offer status: %w", err)
		}
		offer.Status = to
		offer.DecidedAt = &now
		offer.UpdatedAt = now

		eventType := marketevents.EventTypeOfferRejected
		if to == offers.OfferStatusWithdrawn {
			eventType = marketevents.EventTypeOfferWithdrawn
		}
		if err := s.saveEvent(ctx, tx, eventType, now, marketevents.Fields{
			"offer_id":  offer.ID,
			"item_id":   offer.ItemID,
			"buyer_id":  offer.BuyerID,
			"seller_id": item.SellerID,
		}); err != nil {
			return nil, err
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return offer, nil
	}()
	if err != nil {
		return nil, classify(err)
	}
	return offer, nil
}

// CompleteTransaction marks a pending transaction completed and the item sold.
// Either party may complete it. A deleted item is left deleted.
func (s *Service) CompleteTransaction(ctx context.Context, cmd CompleteTransactionCommand) (*SettlementResult, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	settlement := transactions.Settlement{MetAt: cmd.MetAt, LocationNote: cmd.LocationNote}
	result, err := s.settle(ctx, cmd.UserID, cmd.TransactionID, func(ctx context.Context, tx pgx.Tx, item *items.OfferTarget, txn *transactions.Transaction, now time.Time) (items.ItemStatus, error) {
		if err := s.txnRepo.Complete(ctx, tx, txn.ID, settlement); err != nil {
			return "", err
		}
		txn.Status = transactions.TransactionStatusCompleted
		txn.CompletedAt = &now
		txn.MetAt = settlement.MetAt
		if txn.MetAt == nil {
			txn.MetAt = &now
		}
		txn.LocationNote = settlement.LocationNote

		// deleted is terminal: the deal still closes but the listing stays gone
		itemStatus := item.Status
		if item.Status != items.ItemStatusDeleted {
			itemStatus = items.ItemStatusSold
			if err := s.itemRepo.UpdateStatus(ctx, tx, item.ID, itemStatus); err != nil {
				return "", fmt.Errorf("failed to mark item sold: %w", err)
			}
		}

		return itemStatus, s.saveEvent(ctx, tx, marketevents.EventTypeTransactionCompleted, now, marketevents.Fields{
			"transaction_id":     txn.ID,
			"item_id":            txn.ItemID,
			"buyer_id":           txn.BuyerID,
			"seller_id":          txn.SellerID,
			"agreed_price_cents": txn.AgreedPriceCents,
			"completed_by":       cmd.UserID,
			"item_status":        string(itemStatus),
		})
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, transactionCompleted(result.Transaction, cmd.UserID))
	return result, nil
}

// CancelTransaction calls off a pending transaction. The item goes back to
// active unless it was deleted meanwhile, and the accepted offer is closed
// (withdrawn when the buyer cancels, rejected when the seller does).
func (s *Service) CancelTransaction(ctx context.Context, cmd CancelTransactionCommand) (*SettlementResult, error) {
	if err := validateIDs(cmd.UserID, cmd.TransactionID); err != nil {
		return nil, err
	}

	result, err := s.settle(ctx, cmd.UserID, cmd.TransactionID, func(ctx context.Context, tx pgx.Tx, item *items.OfferTarget, txn *transactions.Transaction, now time.Time) (items.ItemStatus, error) {
		if err := s.txnRepo.Cancel(ctx, tx, txn.ID); err != nil {
			return "", err
		}
		txn.Status = transactions.TransactionStatusCanceled
		txn.CanceledAt = &now

		closed := offers.OfferStatusRejected
		if cmd.UserID == txn.BuyerID {
			closed = offers.OfferStatusWithdrawn
		}
		if txn.OfferID > 0 {
			if err := s.offerRepo.SetStatus(ctx, tx, txn.OfferID, closed, now); err != nil {
				return "", fmt.Errorf("failed to close accepted offer: %w", err)
			}
		}

		itemStatus := item.Status
		if item.Status != items.ItemStatusDeleted {
			itemStatus = items.ItemStatusActive
			if err := s.itemRepo.UpdateStatus(ctx, tx, item.ID, itemStatus); err != nil {
				return "", fmt.Errorf("failed to reopen item: %w", err)
			}
		}

		return itemStatus, s.saveEvent(ctx, tx, marketevents.EventTypeTransactionCanceled, now, marketevents.Fields{
			"transaction_id": txn.ID,
			"item_id":        txn.ItemID,
			"buyer_id":       txn.BuyerID,
			"seller_id":      txn.SellerID,
			"offer_id":       txn.OfferID,
			"offer_status":   string(closed),
			"canceled_by":    cmd.UserID,
			"item_status":    string(itemStatus),
		})
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, transactionCanceled(result.Transaction, cmd.UserID))
	return result, nil
}

type settleFunc func(ctx context.Context, tx pgx.Tx, item *items.OfferTarget, txn *transactions.Transaction, now time.Time) (items.ItemStatus, error)

// settle runs apply on a pending transaction the caller is party to, holding
// the item lock and then the transaction lock
func (s *Service) settle(ctx context.Context, userID, txnID int64, apply settleFunc) (*SettlementResult, error) {
	pre, err := s.txnRepo.FindByID(ctx, txnID)
	if err != nil {
		return nil, classify(err)
	}
	if !pre.IsParty(userID) {
		return nil, transactions.ErrNotParty
	}

	result, err := func() (*SettlementResult, error) {
		tx, err := s.txManager.BeginTx(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() {
			_ = tx.Rollback(ctx)
		}()

		item, err := s.itemRepo.GetForOfferLocked(ctx, tx, pre.ItemID, items.LockForUpdate)
		if err != nil {
			return nil, err
		}
		txn, err := s.txnRepo.FindByIDForUpdate(ctx, tx, txnID)
		if err != nil {
			return nil, err
		}

		// a revival may have swapped the buyer since the unlocked read
		if !txn.IsParty(userID) {
			return nil, transactions.ErrNotParty
		}
		if txn.Status != transactions.TransactionStatusPending {
			return nil, transactions.ErrTransactionNotPending
		}

		now := s.now()
		itemStatus, err := apply(ctx, tx, item, txn, now)
		if err != nil {
			return nil, err
		}
		txn.UpdatedAt = now

		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return &SettlementResult{Transaction: txn, ItemStatus: itemStatus}, nil
	}()
	if err != nil {
		return nil, classify(err)
	}
	return result, nil
}

func (s *Service) saveEvent(ctx context.Context, tx pgx.Tx, eventType marketevents.EventType, at time.Time, fields marketevents.Fields) error {
	event, err := marketevents.New(eventType, at, fields)
	if err != nil {
		return err
	}
	if err := s.outboxRepo.SaveEvent(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}
	return nil
}

// notify delivers notifications after commit. Each call gets its own timeout
// detached from the request's cancellation; failures are only logged.
func (s *Service) notify(ctx context.Context, batch ...notification.Notification) {
	if s.notifier == nil {
		return
	}

	base := context.WithoutCancel(ctx)
	for _, n := range batch {
		nctx, cancel := context.WithTimeout(base, s.notifyTimeout)
		err := s.notifier.Notify(nctx, n)
		cancel()
		if err != nil {
			s.logger.Warn("Failed to deliver notification",
				"error", err,
				"user_id", n.UserID,
				"kind", n.Kind,
				"notification_id", n.ID,
			)
		}
	}
}
