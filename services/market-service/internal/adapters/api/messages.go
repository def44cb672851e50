package api

import (
	"time"

	"github.com/samber/lo"

	"github.com/floroz/bazaar/services/market-service/internal/domain/items"
	"github.com/floroz/bazaar/services/market-service/internal/domain/notification"
	"github.com/floroz/bazaar/services/market-service/internal/domain/offers"
	"github.com/floroz/bazaar/services/market-service/internal/domain/transactions"
)

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Item struct {
	ID           int64     `json:"id"`
	SellerID     int64     `json:"seller_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Condition    string    `json:"condition"`
	PriceCents   int64     `json:"price_cents"`
	IsNegotiable bool      `json:"is_negotiable"`
	CategoryID   int64     `json:"category_id,omitempty"`
	Location     *Location `json:"location,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Offer struct {
	ID          int64      `json:"id"`
	ItemID      int64      `json:"item_id"`
	BuyerID     int64      `json:"buyer_id"`
	SellerID    int64      `json:"seller_id"`
	AmountCents int64      `json:"amount_cents"`
	Message     string     `json:"message,omitempty"`
	Status      string     `json:"status"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Transaction struct {
	ID               int64      `json:"id"`
	ItemID           int64      `json:"item_id"`
	SellerID         int64      `json:"seller_id"`
	BuyerID          int64      `json:"buyer_id"`
	OfferID          int64      `json:"offer_id"`
	AgreedPriceCents int64      `json:"agreed_price_cents"`
	Status           string     `json:"status"`
	MetAt            *time.Time `json:"met_at,omitempty"`
	LocationNote     *string    `json:"location_note,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CanceledAt       *time.Time `json:"canceled_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type Notification struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Page is embedded by every list request
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type CreateItemRequest struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Condition    string    `json:"condition"`
	PriceCents   int64     `json:"price_cents"`
	IsNegotiable bool      `json:"is_negotiable"`
	CategoryID   int64     `json:"category_id"`
	Location     *Location `json:"location"`
}

type ItemRequest struct {
	ItemID int64 `json:"item_id"`
}

type ItemResponse struct {
	Item *Item `json:"item"`
}

type ListItemsRequest struct {
	Page
}

type ListSellerItemsRequest struct {
	Page
	// SellerID defaults to the caller
	SellerID int64 `json:"seller_id"`
}

type ItemsResponse struct {
	Items []*Item `json:"items"`
}

type DeleteItemResponse struct {
	Item             *Item   `json:"item"`
	RejectedOfferIDs []int64 `json:"rejected_offer_ids"`
}

type CreateOfferRequest struct {
	ItemID      int64  `json:"item_id"`
	AmountCents int64  `json:"amount_cents"`
	Message     string `json:"message"`
}

type OfferRequest struct {
	OfferID int64 `json:"offer_id"`
}

type OfferResponse struct {
	Offer *Offer `json:"offer"`
}

type AcceptOfferResponse struct {
	Offer            *Offer       `json:"offer"`
	Transaction      *Transaction `json:"transaction"`
	RejectedOfferIDs []int64      `json:"rejected_offer_ids"`
	Revived          bool         `json:"revived"`
}

type ListItemOffersRequest struct {
	Page
	ItemID int64 `json:"item_id"`
}

type ListOffersRequest struct {
	Page
}

type OffersResponse struct {
	Offers []*Offer `json:"offers"`
}

type CompleteTransactionRequest struct {
	TransactionID int64      `json:"transaction_id"`
	MetAt         *time.Time `json:"met_at"`
	LocationNote  *string    `json:"location_note"`
}

type TransactionRequest struct {
	TransactionID int64 `json:"transaction_id"`
}

type TransactionResponse struct {
	Transaction *Transaction `json:"transaction"`
}

type SettlementResponse struct {
	Transaction *Transaction `json:"transaction"`
	ItemStatus  string       `json:"item_status"`
}

type ListNotificationsRequest struct {
	Limit int64 `json:"limit"`
}

type NotificationsResponse struct {
	Notifications []*Notification `json:"notifications"`
}

func toItem(i *items.Item) *Item {
	out := &Item{
		ID:           i.ID,
		SellerID:     i.SellerID,
		Title:        i.Title,
		Description:  i.Description,
		Condition:    string(i.Condition),
		PriceCents:   i.PriceCents,
		IsNegotiable: i.IsNegotiable,
		CategoryID:   i.CategoryID,
		Status:       string(i.Status),
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
	}
	if i.Location != nil {
		out.Location = &Location{Lat: i.Location.Lat, Lng: i.Location.Lng}
	}
	return out
}

func toItems(list []*items.Item) []*Item {
	return lo.Map(list, func(i *items.Item, _ int) *Item { return toItem(i) })
}

func toOffer(o *offers.Offer) *Offer {
	return &Offer{
		ID:          o.ID,
		ItemID:      o.ItemID,
		BuyerID:     o.BuyerID,
		SellerID:    o.SellerID,
		AmountCents: o.AmountCents,
		Message:     o.Message,
		Status:      string(o.Status),
		DecidedAt:   o.DecidedAt,
		CreatedAt:   o.CreatedAt,
	}
}

func toOffers(list []*offers.Offer) []*Offer {
	return lo.Map(list, func(o *offers.Offer, _ int) *Offer { return toOffer(o) })
}

func offerIDs(list []*offers.Offer) []int64 {
	return lo.Map(list, func(o *offers.Offer, _ int) int64 { return o.ID })
}

func toTransaction(t *transactions.Transaction) *Transaction {
	return &Transaction{
		ID:               t.ID,
		ItemID:           t.ItemID,
		SellerID:         t.SellerID,
		BuyerID:          t.BuyerID,
		OfferID:          t.OfferID,
		AgreedPriceCents: t.AgreedPriceCents,
		Status:           string(t.Status),
		MetAt:            t.MetAt,
		LocationNote:     t.LocationNote,
		CompletedAt:      t.CompletedAt,
		CanceledAt:       t.CanceledAt,
		CreatedAt:        t.CreatedAt,
	}
}

func toNotifications(list []notification.Notification) []*Notification {
	return lo.Map(list, func(n notification.Notification, _ int) *Notification {
		return &Notification{
			ID:        n.ID.String(),
			Kind:      string(n.Kind),
			Title:     n.Title,
			Body:      n.Body,
			Data:      n.Data,
			CreatedAt: n.CreatedAt,
		}
	})
}
