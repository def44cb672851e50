package negotiation

import (
	"context"
	"fmt"

	"github.com/floroz/bazaar/services/market-service/internal/domain/offers"
	"github.com/floroz/bazaar/services/market-service/internal/domain/transactions"
)

// Read paths run without locks at read committed. They are advisory only.

// GetOffer returns an offer to its buyer or the item's seller
func (s *Service) GetOffer(ctx context.Context, userID, offerID int64) (*offers.Offer, error) {
	if err := validateIDs(userID, offerID); err != nil {
		return nil, err
	}
	offer, err := s.offerRepo.FindByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.BuyerID != userID && offer.SellerID != userID {
		return nil, ErrNotOfferParty
	}
	return offer, nil
}

// ListItemOffers lists every offer on an item, newest first. Only the seller may see them.
func (s *Service) ListItemOffers(ctx context.Context, sellerID, itemID int64, q ListQuery) ([]*offers.Offer, error) {
	if err := validateIDs(sellerID, itemID); err != nil {
		return nil, err
	}
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}

	item, err := s.itemRepo.GetForOffer(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.SellerID != sellerID {
		return nil, ErrNotItemSeller
	}

	list, err := s.offerRepo.ListForItem(ctx, itemID, q.Limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list item offers: %w", err)
	}
	return list, nil
}

// ListBuyerOffers lists the offers a buyer has made
func (s *Service) ListBuyerOffers(ctx context.Context, buyerID int64, q ListQuery) ([]*offers.Offer, error) {
	if err := validateIDs(buyerID); err != nil {
		return nil, err
	}
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}
	list, err := s.offerRepo.ListForBuyer(ctx, buyerID, q.Limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list buyer offers: %w", err)
	}
	return list, nil
}

// ListSellerOffers lists offers received across all of a seller's items
func (s *Service) ListSellerOffers(ctx context.Context, sellerID int64, q ListQuery) ([]*offers.Offer, error) {
	if err := validateIDs(sellerID); err != nil {
		return nil, err
	}
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}
	list, err := s.offerRepo.ListForSeller(ctx, sellerID, q.Limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list seller offers: %w", err)
	}
	return list, nil
}

// GetTransaction returns a transaction to one of its parties
func (s *Service) GetTransaction(ctx context.Context, userID, txnID int64) (*transactions.Transaction, error) {
	if err := validateIDs(userID, txnID); err != nil {
		return nil, err
	}
	txn, err := s.txnRepo.FindByID(ctx, txnID)
	if err != nil {
		return nil, err
	}
	if !txn.IsParty(userID) {
		return nil, transactions.ErrNotParty
	}
	return txn, nil
}

// GetItemTransaction returns the item's live transaction to one of its parties
func (s *Service) GetItemTransaction(ctx context.Context, userID, itemID int64) (*transactions.Transaction, error) {
	if err := validateIDs(userID, itemID); err != nil {
		return nil, err
	}
	txn, err := s.txnRepo.GetByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load item transaction: %w", err)
	}
	if txn == nil {
		return nil, transactions.ErrTransactionNotFound
	}
	if !txn.IsParty(userID) {
		return nil, transactions.ErrNotParty
	}
	return txn, nil
}
