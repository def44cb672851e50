package items

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/floroz/bazaar/services/market-service/internal/domain/notification"
	"github.com/floroz/bazaar/services/market-service/internal/domain/offers"
)

// removedNotifications tells each buyer once that their pending offer closed with the listing
func removedNotifications(item *Item, rejected []*offers.Offer) []notification.Notification {
	buyers := lo.UniqBy(rejected, func(o *offers.Offer) int64 { return o.BuyerID })
	return lo.Map(buyers, func(o *offers.Offer, _ int) notification.Notification {
		return notification.New(o.BuyerID, notification.KindOfferRejected,
			"Offer declined",
			fmt.Sprintf("Item #%d was removed and your offer of %s was declined", item.ID, formatCents(o.AmountCents)),
			map[string]any{
				"offer_id":     o.ID,
				"item_id":      item.ID,
				"buyer_id":     o.BuyerID,
				"seller_id":    item.SellerID,
				"amount_cents": o.AmountCents,
				"status":       string(offers.OfferStatusRejected),
				"reason":       "item_deleted",
			},
		)
	})
}

// notify runs after commit; failures are logged and never surface to the caller
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

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
