package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floroz/bazaar/pkg/auth"
	"github.com/floroz/bazaar/services/market-service/internal/domain/domainerr"
	"github.com/floroz/bazaar/services/market-service/internal/domain/negotiation"
	"github.com/floroz/bazaar/services/market-service/internal/domain/notification"
	"github.com/floroz/bazaar/services/market-service/internal/domain/offers"
	"github.com/floroz/bazaar/services/market-service/internal/domain/transactions"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestCodeOf(t *testing.T) {
	tests := []struct {
		kind domainerr.Kind
		want connect.Code
	}{
		{domainerr.KindNotFound, connect.CodeNotFound},
		{domainerr.KindForbidden, connect.CodePermissionDenied},
		{domainerr.KindInvalidState, connect.CodeFailedPrecondition},
		{domainerr.KindInvalidArgument, connect.CodeInvalidArgument},
		{domainerr.KindConflict, connect.CodeAlreadyExists},
		{domainerr.KindBusy, connect.CodeUnavailable},
		{domainerr.KindUnknown, connect.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.kind))
		})
	}
}

func TestToConnectError(t *testing.T) {
	t.Run("domain error keeps its message", func(t *testing.T) {
		err := toConnectError(discard, "/p", fmt.Errorf("accept: %w", offers.ErrOfferNotPending))
		assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
		assert.Contains(t, err.Error(), offers.ErrOfferNotPending.Msg)
	})

	t.Run("busy hides the driver error", func(t *testing.T) {
		err := toConnectError(discard, "/p", domainerr.Wrap(domainerr.KindBusy, negotiation.ErrItemLocked.Msg, errors.New(`canceling statement due to lock timeout (SQLSTATE 55P03)`)))
		assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))
		assert.NotContains(t, err.Error(), "SQLSTATE")
	})

	t.Run("infrastructure error is generic", func(t *testing.T) {
		err := toConnectError(discard, "/p", errors.New(`duplicate key value violates unique constraint "transactions_one_live_per_item"`))
		assert.Equal(t, connect.CodeInternal, connect.CodeOf(err))
		assert.NotContains(t, err.Error(), "transactions_one_live_per_item")
	})

	t.Run("not found", func(t *testing.T) {
		err := toConnectError(discard, "/p", transactions.ErrTransactionNotFound)
		assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
	})
}

func TestJSONCodec(t *testing.T) {
	codec := JSONCodec{}
	assert.Equal(t, "json", codec.Name())

	body, err := codec.Marshal(&OfferRequest{OfferID: 7})
	require.NoError(t, err)
	assert.JSONEq(t, `{"offer_id":7}`, string(body))

	var req OfferRequest
	require.NoError(t, codec.Unmarshal(nil, &req))
	assert.Zero(t, req.OfferID)

	assert.Error(t, codec.Unmarshal([]byte("{"), &req))
}

type fakeInbox struct {
	gotUser  int64
	gotCount int64
	list     []notification.Notification
	err      error
}

func (f *fakeInbox) Recent(_ context.Context, userID int64, count int64) ([]notification.Notification, error) {
	f.gotUser, f.gotCount = userID, count
	return f.list, f.err
}

func TestListNotifications(t *testing.T) {
	ctx := auth.WithUser(context.Background(), 21, nil)
	n := notification.New(21, notification.KindOfferReceived, "New offer", "40.00", nil)
	n.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("defaults and clamps the limit", func(t *testing.T) {
		inbox := &fakeInbox{list: []notification.Notification{n}}
		h := NewMarketHandler(nil, nil, inbox, discard)

		res, err := h.ListNotifications(ctx, connect.NewRequest(&ListNotificationsRequest{}))
		require.NoError(t, err)
		require.Len(t, res.Msg.Notifications, 1)
		assert.Equal(t, n.ID.String(), res.Msg.Notifications[0].ID)
		assert.Equal(t, int64(21), inbox.gotUser)
		assert.Equal(t, int64(defaultNotificationLimit), inbox.gotCount)

		_, err = h.ListNotifications(ctx, connect.NewRequest(&ListNotificationsRequest{Limit: 1000}))
		require.NoError(t, err)
		assert.Equal(t, int64(maxNotificationLimit), inbox.gotCount)
	})

	t.Run("negative limit", func(t *testing.T) {
		h := NewMarketHandler(nil, nil, &fakeInbox{}, discard)
		_, err := h.ListNotifications(ctx, connect.NewRequest(&ListNotificationsRequest{Limit: -1}))
		assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	})

	t.Run("inbox not configured", func(t *testing.T) {
		h := NewMarketHandler(nil, nil, nil, discard)
		_, err := h.ListNotifications(ctx, connect.NewRequest(&ListNotificationsRequest{}))
		assert.Equal(t, connect.CodeUnimplemented, connect.CodeOf(err))
	})
}
