package items

import (
	"time"

	"github.com/floroz/bazaar/services/market-service/internal/domain/domainerr"
)

// ItemStatus is the sale lifecycle state of a listing
type ItemStatus string

const (
	ItemStatusActive   ItemStatus = "active"
	ItemStatusReserved ItemStatus = "reserved"
	ItemStatusSold     ItemStatus = "sold"
	ItemStatusDeleted  ItemStatus = "deleted"
)

// IsValid checks if the status is one of the known values
func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemStatusActive, ItemStatusReserved, ItemStatusSold, ItemStatusDeleted:
		return true
	default:
		return false
	}
}

// Condition describes the physical state of the listed good
type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like_new"
	ConditionGood    Condition = "good"
	ConditionFair    Condition = "fair"
	ConditionPoor    Condition = "poor"
)

// IsValid checks if the condition is one of the known values
func (c Condition) IsValid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionPoor:
		return true
	default:
		return false
	}
}

// GeoPoint is an optional pickup location
type GeoPoint struct {
	Lat float64
	Lng float64
}

// Item represents a listed good
type Item struct {
	ID           int64      `db:"id"`
	SellerID     int64      `db:"seller_id"`
	Title        string     `db:"title"`
	Description  string     `db:"description"`
	Condition    Condition  `db:"condition"`
	PriceCents   int64      `db:"price_cents"`
	IsNegotiable bool       `db:"is_negotiable"`
	CategoryID   int64      `db:"category_id"`
	Location     *GeoPoint  `db:"-"`
	Status       ItemStatus `db:"status"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// IsOwnedBy checks if the user is the seller
func (i *Item) IsOwnedBy(userID int64) bool {
	return i.SellerID == userID
}

// OfferTarget is the slice of an item the negotiation engine reads
type OfferTarget struct {
	ID           int64
	SellerID     int64
	Status       ItemStatus
	IsNegotiable bool
}

// LockMode selects the row lock taken by a locked read
type LockMode int

const (
	// LockForUpdate serializes every writer on the item
	LockForUpdate LockMode = iota
	// LockForShare lets concurrent offer creation proceed but blocks behind an accept
	LockForShare
)

// SQL returns the locking clause for the mode
func (m LockMode) SQL() string {
	if m == LockForShare {
		return " FOR SHARE"
	}
	return " FOR UPDATE"
}

var (
	ErrItemNotFound     = domainerr.New(domainerr.KindNotFound, "item not found")
	ErrInvalidTitle     = domainerr.New(domainerr.KindInvalidArgument, "title must not be empty")
	ErrInvalidPrice     = domainerr.New(domainerr.KindInvalidArgument, "price must be a non-negative amount")
	ErrInvalidCondition = domainerr.New(domainerr.KindInvalidArgument, "condition must be one of new, like_new, good, fair, poor")
	ErrInvalidLocation  = domainerr.New(domainerr.KindInvalidArgument, "location is out of range")
	ErrUnauthorized     = domainerr.New(domainerr.KindForbidden, "only the seller or an admin can perform this action")
	ErrAlreadyDeleted   = domainerr.New(domainerr.KindInvalidState, "item is already deleted")
	ErrItemBusy         = domainerr.New(domainerr.KindBusy, "item is being updated by another request")
)
