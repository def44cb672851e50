package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/floroz/bazaar/pkg/auth"
	"github.com/floroz/bazaar/services/market-service/internal/domain/items"
	"github.com/floroz/bazaar/services/market-service/internal/domain/negotiation"
	"github.com/floroz/bazaar/services/market-service/internal/domain/notification"
)

// ServiceName prefixes every procedure path
const ServiceName = "bazaar.market.v1.MarketService"

const (
	CreateItemProcedure          = "/" + ServiceName + "/CreateItem"
	GetItemProcedure             = "/" + ServiceName + "/GetItem"
	ListItemsProcedure           = "/" + ServiceName + "/ListItems"
	ListSellerItemsProcedure     = "/" + ServiceName + "/ListSellerItems"
	DeleteItemProcedure          = "/" + ServiceName + "/DeleteItem"
	CreateOfferProcedure         = "/" + ServiceName + "/CreateOffer"
	AcceptOfferProcedure         = "/" + ServiceName + "/AcceptOffer"
	RejectOfferProcedure         = "/" + ServiceName + "/RejectOffer"
	WithdrawOfferProcedure       = "/" + ServiceName + "/WithdrawOffer"
	GetOfferProcedure            = "/" + ServiceName + "/GetOffer"
	ListItemOffersProcedure      = "/" + ServiceName + "/ListItemOffers"
	ListBuyerOffersProcedure     = "/" + ServiceName + "/ListBuyerOffers"
	ListSellerOffersProcedure    = "/" + ServiceName + "/ListSellerOffers"
	CompleteTransactionProcedure = "/" + ServiceName + "/CompleteTransaction"
	CancelTransactionProcedure   = "/" + ServiceName + "/CancelTransaction"
	GetTransactionProcedure      = "/" + ServiceName + "/GetTransaction"
	GetItemTransactionProcedure  = "/" + ServiceName + "/GetItemTransaction"
	ListNotificationsProcedure   = "/" + ServiceName + "/ListNotifications"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

var errInboxDisabled = errors.New("notifications are not enabled")

// NotificationReader lists a user's recent notifications
type NotificationReader interface {
	Recent(ctx context.Context, userID int64, count int64) ([]notification.Notification, error)
}

// MarketHandler exposes the listing and negotiation services over connect
type MarketHandler struct {
	itemService *items.Service
	negotiation *negotiation.Service
	inbox       NotificationReader
	logger      *slog.Logger
}

// NewMarketHandler creates a handler. inbox may be nil.
func NewMarketHandler(itemService *items.Service, negotiationService *negotiation.Service, inbox NotificationReader, logger *slog.Logger) *MarketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarketHandler{
		itemService: itemService,
		negotiation: negotiationService,
		inbox:       inbox,
		logger:      logger,
	}
}

// Register mounts every procedure on mux. Browsing items is public; the rest
// runs behind authInterceptor.
func Register(mux *http.ServeMux, h *MarketHandler, authInterceptor connect.Interceptor) {
	public := []connect.HandlerOption{connect.WithCodec(JSONCodec{})}
	private := []connect.HandlerOption{connect.WithCodec(JSONCodec{}), connect.WithInterceptors(authInterceptor)}

	route(mux, GetItemProcedure, h.GetItem, public)
	route(mux, ListItemsProcedure, h.ListItems, public)

	route(mux, CreateItemProcedure, h.CreateItem, private)
	route(mux, ListSellerItemsProcedure, h.ListSellerItems, private)
	route(mux, DeleteItemProcedure, h.DeleteItem, private)
	route(mux, CreateOfferProcedure, h.CreateOffer, private)
	route(mux, AcceptOfferProcedure, h.AcceptOffer, private)
	route(mux, RejectOfferProcedure, h.RejectOffer, private)
	route(mux, WithdrawOfferProcedure, h.WithdrawOffer, private)
	route(mux, GetOfferProcedure, h.GetOffer, private)
	route(mux, ListItemOffersProcedure, h.ListItemOffers, private)
	route(mux, ListBuyerOffersProcedure, h.ListBuyerOffers, private)
	route(mux, ListSellerOffersProcedure, h.ListSellerOffers, private)
	route(mux, CompleteTransactionProcedure, h.CompleteTransaction, private)
	route(mux, CancelTransactionProcedure, h.CancelTransaction, private)
	route(mux, GetTransactionProcedure, h.GetTransaction, private)
	route(mux, GetItemTransactionProcedure, h.GetItemTransaction, private)
	route(mux, ListNotificationsProcedure, h.ListNotifications, private)
}

func route[Req, Res any](
	mux *http.ServeMux,
	procedure string,
	fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error),
	opts []connect.HandlerOption,
) {
	mux.Handle(procedure, connect.NewUnaryHandler(procedure, fn, opts...))
}

func (h *MarketHandler) fail(req connect.AnyRequest, err error) error {
	return toConnectError(h.logger, req.Spec().Procedure, err)
}

func (h *MarketHandler) CreateItem(
	ctx context.Context,
	req *connect.Request[CreateItemRequest],
) (*connect.Response[ItemResponse], error) {
	cmd := items.CreateItemCommand{
		SellerID:     auth.MustGetUserID(ctx),
		Title:        req.Msg.Title,
		Description:  req.Msg.Description,
		Condition:    items.Condition(req.Msg.Condition),
		PriceCents:   req.Msg.PriceCents,
		IsNegotiable: req.Msg.IsNegotiable,
		CategoryID:   req.Msg.CategoryID,
	}
	if loc := req.Msg.Location; loc != nil {
		cmd.Location = &items.GeoPoint{Lat: loc.Lat, Lng: loc.Lng}
	}

	item, err := h.itemService.CreateItem(ctx, cmd)
	if err != nil {
		return nil, h.fail(req, err)
	}
	return connect.NewResponse(&ItemResponse{Item: toItem(item)}), nil
}

func (h *MarketHandler) GetItem(
	ctx context.Context,
	req *connect.Request[ItemRequest],
) (*connect.Response[ItemResponse], error) {
	item, err := h.itemService.GetItem(ctx, req.Msg.ItemID)
	if err != nil {
		return nil, h.fail(req, err)
	}
	return connect.NewResponse(&ItemResponse{Item: toItem(item)}), nil
}

func (h *MarketHandler) ListItems(
	ctx context.Context,
	req *connect.Request[ListItemsRequest],
) (*connect.Response[ItemsResponse], error) {
	list, err := h.itemService.ListItems(ctx, items.ListItemsQuery{
		Limit:  req.Msg.Limit,
		Offset: req.Msg.Offset,
	})
	if err != nil {
		return nil, h.fail(req, err)
	}
	return connect.NewResponse(&ItemsResponse{Items: toItems(list)}), nil
}

func (h *MarketHandler) ListSellerItems(
	ctx context.Context,
	req *connect.Request[ListSellerItemsRequest],
) (*connect.Response[ItemsResponse], error) {
	sellerID := req.Msg.SellerID
	if sellerID == 0 {
		sellerID = auth.MustGetUserID(ctx)
	}

	list, err := h.itemService.ListSellerItems(ctx, items.ListSellerItemsQuery{
		SellerID: sellerID,
		Limit:    req.Msg.Limit,
		Offset:   req.Msg.Offset,
	})
	if err != nil {
		return nil, h.fail(req, err)
	}
	return connect.NewResponse(&ItemsResponse{Items: toItems(list)}), nil
}

func (h *MarketHandler) DeleteItem(
	ctx context.Context,
	req *connect.Request[ItemRequest],
) (*connect.Response[DeleteItemResponse], error) {
	res, err := h.itemService.DeleteItem(ctx, items.DeleteItemCommand{
		ItemID:  req.Msg.ItemID,
		UserID:  auth.MustGetUserID(ctx),
		IsAdmin: auth.IsAdmin(ctx),
	})
	if err != nil {
		return nil, h.fail(req, err)
	}
	return connect.NewResponse(&DeleteItemResponse{
		Item:             toItem(res.Item),
		RejectedOfferIDs: offerIDs(res.Rejected),
	}), nil
}

func (h *MarketHandler) CreateOffer(
	ctx context.Context,
	req *connect.Request[CreateOfferRequest],
) (*connect.Response[OfferResponse], error) {
	offer, err := h.negotiation.CreateOffer(ctx, negotiation.CreateOfferCommand{
		BuyerID:     auth.MustGetUserID(ctx),
		ItemID:      req.Msg.ItemID,
		AmountCents: req.Msg.AmountCents,
		Message:     req.Msg.Message,
	})
	if err != nil {
		return nil, h.fail(req, err)
	}
	return connect.NewResponse(&OfferResponse{Offer: toOffer(offer)}), nil
}

func (h *MarketHandler) AcceptOffer(
	ctx context.Context,
	req *connect.Request[OfferRequest],
) (*connect.Response[AcceptOfferResponse], error) {
	res, err := h.negotiation.AcceptOffer(ctx, negotiation.AcceptOfferCommand{
		SellerID: auth.MustGetUserID(ctx),
		OfferID:  req.Msg.OfferID,
	})
	if err != nil {
		return nil, h.fail(req, err)
	}
	return connect.NewResponse(&AcceptOfferResponse{
		Offer:            toOffer(res.Offer),
		Transaction:      toTransaction(res.Transaction),
		RejectedOfferIDs: offerIDs(res.Rejected),
		Revived:          res.Revived,
	}), nil
}

func (h *MarketHandler) RejectOffer(
	ctx context.Context,
	req *connect.Request[OfferRequest],
) (*connect.Response[OfferResponse], error) {
	offer, err := h.negotiation.RejectOffer(ctx, negotiation.RejectOfferCommand{
		SellerID: auth.MustGetUserID(ctx),
		OfferID:  req.Msg.OfferID,
	})
	if err != nil {
		return nil, h.fail(req, err)
	}
	return connect.NewResponse(&OfferResponse{Offer: toOffer(offer)}), nil
}

func (h *MarketHandler) WithdrawOffer(
	ctx context.Context,
	req *connect.Request[OfferRequest],
) (*connect.Response[OfferResponse], error) {
	offer, err := h.negotiation.WithdrawOffer(ctx, negotiation.WithdrawOfferCommand{
		BuyerID: auth.MustGetUserID(ctx),
		OfferID: req.Msg.OfferID,
	})
	if err != nil {
		return nil, h.fail(req, err)
	}
	return connect.NewResponse(&OfferResponse{Offer: toOffer(offer)}), nil
}

func (h *MarketHandler) GetOffer(
	ctx context.Context,
	req *connect.Request[OfferRequest],
) (*connect.Response[OfferResponse], error) {
	offer, err := h.negotiation.GetOffer(ctx, auth.MustGetUserID(ctx), req.Msg.OfferID)
	if err != nil {
		return nil, h.fail(req, err)
	}
	return connect.NewResponse(&OfferResponse{Offer: toOffer(offer)}), nil
}

func (h *MarketHandler) ListItemOffers(
	ctx context.Context,
	req *connect.Request[ListItemOffersRequest],
) (*connect.Response[OffersResponse], error) {
	list, err := h.negotiation.ListItemOffers(ctx, auth.MustGetUserID(ctx), req.Msg.ItemID, listQuery(req.Msg.Page))
	if err != nil {
		return nil, h.fail(req, err)
	}
	return connect.NewResponse(&OffersResponse{Offers: toOffers(list)}), nil
}

func (h *MarketHandler) ListBuyerOffers(
	ctx context.Context,
	req *connect.Request[ListOffersRequest],
) (*connect.Response[OffersResponse], error) {
	list, err := h.negotiation.ListBuyerOffers(ctx, auth.MustGetUserID(ctx), listQuery(req.Msg.Page))
	if err != nil {
		return nil, h.fail(req, err)
	}
	return connect.NewResponse(&OffersResponse{Offers: toOffers(list)}), nil
}

func (h *MarketHandler) ListSellerOffers(
	ctx context.Context,
	req *connect.Request[ListOffersRequest],
) (*connect.Response[OffersResponse], error) {
	list, err := h.negotiation.ListSellerOffers(ctx, auth.MustGetUserID(ctx), listQuery(req.Msg.Page))
	if err != nil {
		return nil, h.fail(req, err)
	}
	return connect.NewResponse(&OffersResponse{Offers: toOffers(list)}), nil
}

func (h *MarketHandler) CompleteTransaction(
	ctx context.Context,
	req *connect.Request[CompleteTransactionRequest],
) (*connect.Response[SettlementResponse], error) {
	res, err := h.negotiation.CompleteTransaction(ctx, negotiation.CompleteTransactionCommand{
		UserID:        auth.MustGetUserID(ctx),
		TransactionID: req.Msg.TransactionID,
		MetAt:         req.Msg.MetAt,
		LocationNote:  req.Msg.LocationNote,
	})
	if err != nil {
		return nil, h.fail(req, err)
	}
	return connect.NewResponse(&SettlementResponse{
		Transaction: toTransaction(res.Transaction),
		ItemStatus:  string(res.ItemStatus),
	}), nil
}

func (h *MarketHandler) CancelTransaction(
	ctx context.Context,
	req *connect.Request[TransactionRequest],
) (*connect.Response[SettlementResponse], error) {
	res, err := h.negotiation.CancelTransaction(ctx, negotiation.CancelTransactionCommand{
		UserID:        auth.MustGetUserID(ctx),
		TransactionID: req.Msg.TransactionID,
	})
	if err != nil {
		return nil, h.fail(req, err)
	}
	return connect.NewResponse(&SettlementResponse{
		Transaction: toTransaction(res.Transaction),
		ItemStatus:  string(res.ItemStatus),
	}), nil
}

func (h *MarketHandler) GetTransaction(
	ctx context.Context,
	req *connect.Request[TransactionRequest],
) (*connect.Response[TransactionResponse], error) {
	txn, err := h.negotiation.GetTransaction(ctx, auth.MustGetUserID(ctx), req.Msg.TransactionID)
	if err != nil {
		return nil, h.fail(req, err)
	}
	return connect.NewResponse(&TransactionResponse{Transaction: toTransaction(txn)}), nil
}

func (h *MarketHandler) GetItemTransaction(
	ctx context.Context,
	req *connect.Request[ItemRequest],
) (*connect.Response[TransactionResponse], error) {
	txn, err := h.negotiation.GetItemTransaction(ctx, auth.MustGetUserID(ctx), req.Msg.ItemID)
	if err != nil {
		return nil, h.fail(req, err)
	}
	return connect.NewResponse(&TransactionResponse{Transaction: toTransaction(txn)}), nil
}

func (h *MarketHandler) ListNotifications(
	ctx context.Context,
	req *connect.Request[ListNotificationsRequest],
) (*connect.Response[NotificationsResponse], error) {
	if h.inbox == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, errInboxDisabled)
	}

	limit := req.Msg.Limit
	if limit < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("limit must not be negative"))
	}
	if limit == 0 {
		limit = defaultNotificationLimit
	}
	limit = min(limit, maxNotificationLimit)

	list, err := h.inbox.Recent(ctx, auth.MustGetUserID(ctx), limit)
	if err != nil {
		return nil, h.fail(req, err)
	}
	return connect.NewResponse(&NotificationsResponse{Notifications: toNotifications(list)}), nil
}

func listQuery(p Page) negotiation.ListQuery {
	return negotiation.ListQuery{Limit: p.Limit, Offset: p.Offset}
}
