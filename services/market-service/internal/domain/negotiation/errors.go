package negotiation

import (
	"errors"

	"github.com/floroz/bazaar/pkg/database"
	"github.com/floroz/bazaar/services/market-service/internal/domain/domainerr"
)

var (
	ErrInvalidID          = domainerr.New(domainerr.KindInvalidArgument, "ids must be positive")
	ErrInvalidPage        = domainerr.New(domainerr.KindInvalidArgument, "limit and offset must not be negative")
	ErrCannotOfferOwnItem = domainerr.New(domainerr.KindInvalidState, "cannot offer on own item")
	ErrItemNotActive      = domainerr.New(domainerr.KindInvalidState, "item is not accepting offers")
	ErrItemNotAcceptable  = domainerr.New(domainerr.KindInvalidState, "item can no longer accept an offer")
	ErrNotItemSeller      = domainerr.New(domainerr.KindForbidden, "only the seller can decide on this offer")
	ErrNotOfferBuyer      = domainerr.New(domainerr.KindForbidden, "only the buyer can withdraw this offer")
	ErrNotOfferParty      = domainerr.New(domainerr.KindForbidden, "only the buyer or the seller can view this offer")
	ErrItemLocked         = domainerr.New(domainerr.KindBusy, "item is being updated by another request, retry")
)

// classify turns lock contention into a retryable Busy error and leaves
// domain errors and unexpected failures untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var de *domainerr.Error
	if errors.As(err, &de) {
		return err
	}
	if database.IsRetryable(err) {
		return domainerr.Wrap(domainerr.KindBusy, ErrItemLocked.Msg, err)
	}
	return err
}
