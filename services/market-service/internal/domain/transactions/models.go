package transactions

import (
	"time"

	"github.com/floroz/bazaar/services/market-service/internal/domain/domainerr"
)

// TransactionStatus is the settlement state. Pending is the only non-terminal state.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusCanceled  TransactionStatus = "canceled"
)

// Transaction is the settlement record created once an offer is accepted.
// At most one non-canceled row exists per item.
type Transaction struct {
	ID               int64             `db:"id"`
	ItemID           int64             `db:"item_id"`
	SellerID         int64             `db:"seller_id"`
	BuyerID          int64             `db:"buyer_id"`
	OfferID          int64             `db:"offer_id"`
	AgreedPriceCents int64             `db:"agreed_price_cents"`
	Status           TransactionStatus `db:"status"`
	MetAt            *time.Time        `db:"met_at"`
	LocationNote     *string           `db:"location_note"`
	CompletedAt      *time.Time        `db:"completed_at"`
	CanceledAt       *time.Time        `db:"canceled_at"`
	CreatedAt        time.Time         `db:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at"`
}

// IsLive reports whether the transaction still holds the item
func (t *Transaction) IsLive() bool {
	return t.Status != TransactionStatusCanceled
}

// IsParty reports whether userID is the buyer or the seller
func (t *Transaction) IsParty(userID int64) bool {
	return t.BuyerID == userID || t.SellerID == userID
}

// Counterparty returns the other side of the deal
func (t *Transaction) Counterparty(userID int64) int64 {
	if userID == t.BuyerID {
		return t.SellerID
	}
	return t.BuyerID
}

// Settlement carries the optional completion details
type Settlement struct {
	MetAt        *time.Time
	LocationNote *string
}

// MaxLocationNoteLength bounds the free-text meeting note
const MaxLocationNoteLength = 500

var (
	ErrTransactionNotFound   = domainerr.New(domainerr.KindNotFound, "transaction not found")
	ErrLiveTransactionExists = domainerr.New(domainerr.KindConflict, "item already has a live transaction")
	ErrTransactionNotPending = domainerr.New(domainerr.KindInvalidState, "transaction is not pending")
	ErrNotCanceled           = domainerr.New(domainerr.KindInvalidState, "only a canceled transaction can be revived")
	ErrNotParty              = domainerr.New(domainerr.KindForbidden, "only the buyer or the seller can act on this transaction")
	ErrLocationNoteTooLong   = domainerr.New(domainerr.KindInvalidArgument, "location note is too long")
)
