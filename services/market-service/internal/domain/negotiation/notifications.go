package negotiation

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/floroz/bazaar/services/market-service/internal/domain/notification"
	"github.com/floroz/bazaar/services/market-service/internal/domain/offers"
	"github.com/floroz/bazaar/services/market-service/internal/domain/transactions"
)

func offerReceived(o *offers.Offer) notification.Notification {
	return notification.New(o.SellerID, notification.KindOfferReceived,
		"New offer",
		fmt.Sprintf("You received an offer of %s on item #%d", formatCents(o.AmountCents), o.ItemID),
		offerData(o),
	)
}

func offerRejected(o *offers.Offer) notification.Notification {
	return notification.New(o.BuyerID, notification.KindOfferRejected,
		"Offer declined",
		fmt.Sprintf("Your offer of %s on item #%d was declined", formatCents(o.AmountCents), o.ItemID),
		offerData(o),
	)
}

func offerWithdrawn(o *offers.Offer) notification.Notification {
	return notification.New(o.SellerID, notification.KindOfferWithdrawn,
		"Offer withdrawn",
		fmt.Sprintf("An offer of %s on item #%d was withdrawn", formatCents(o.AmountCents), o.ItemID),
		offerData(o),
	)
}

// acceptedNotifications tells the winner and every buyer whose offer lost,
// one message per buyer
func acceptedNotifications(r *AcceptOfferResult) []notification.Notification {
	data := offerData(r.Offer)
	data["transaction_id"] = r.Transaction.ID

	out := []notification.Notification{
		notification.New(r.Offer.BuyerID, notification.KindOfferAccepted,
			"Offer accepted",
			fmt.Sprintf("Your offer of %s on item #%d was accepted", formatCents(r.Offer.AmountCents), r.Offer.ItemID),
			data,
		),
	}

	losers := lo.UniqBy(r.Rejected, func(o *offers.Offer) int64 { return o.BuyerID })
	losers = lo.Filter(losers, func(o *offers.Offer, _ int) bool { return o.BuyerID != r.Offer.BuyerID })

	return append(out, lo.Map(losers, func(o *offers.Offer, _ int) notification.Notification {
		return offerRejected(o)
	})...)
}

func transactionCompleted(t *transactions.Transaction, actorID int64) notification.Notification {
	return notification.New(t.Counterparty(actorID), notification.KindTransactionCompleted,
		"Sale completed",
		fmt.Sprintf("The sale of item #%d for %s was completed", t.ItemID, formatCents(t.AgreedPriceCents)),
		transactionData(t, actorID),
	)
}

func transactionCanceled(t *transactions.Transaction, actorID int64) notification.Notification {
	return notification.New(t.Counterparty(actorID), notification.KindTransactionCanceled,
		"Sale canceled",
		fmt.Sprintf("The sale of item #%d was canceled", t.ItemID),
		transactionData(t, actorID),
	)
}

func offerData(o *offers.Offer) map[string]any {
	return map[string]any{
		"offer_id":     o.ID,
		"item_id":      o.ItemID,
		"buyer_id":     o.BuyerID,
		"seller_id":    o.SellerID,
		"amount_cents": o.AmountCents,
		"status":       string(o.Status),
	}
}

func transactionData(t *transactions.Transaction, actorID int64) map[string]any {
	return map[string]any{
		"transaction_id":     t.ID,
		"item_id":            t.ItemID,
		"agreed_price_cents": t.AgreedPriceCents,
		"status":             string(t.Status),
		"actor_id":           actorID,
	}
}

func offerIDs(list []*offers.Offer) []int64 {
	return lo.Map(list, func(o *offers.Offer, _ int) int64 { return o.ID })
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
