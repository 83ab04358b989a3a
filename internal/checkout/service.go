package checkout

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/kehinde-o/storefront-pay/internal/common"
	"github.com/kehinde-o/storefront-pay/internal/events"
	"github.com/kehinde-o/storefront-pay/internal/obs"
	"github.com/kehinde-o/storefront-pay/internal/payment"
)

// Session is the result of starting a checkout: the pending order and the
// configuration the storefront needs to open the payment widget.
type Session struct {
	Order Order     `json:"order"`
	SDK   SDKConfig `json:"paymentConfig"`
}

// Service owns the checkout session lifecycle: order creation, the payment
// handshake and the buy-now item that keeps a session restorable.
type Service struct {
	Orders       OrdersAPI
	Items        ItemStore
	Orchestrator *payment.Orchestrator
	SDK          SDKBuilder
	Validate     *validator.Validate
	Events       *events.Bus
	Logger       zerolog.Logger
}

// Begin validates the checkout, creates the pending order and returns the
// session. In buy-now mode the saved item is restored from Redis, so a page
// reload between product page and payment does not lose the purchase.
func (s *Service) Begin(ctx context.Context, storeID, sessionID string, in Input) (*Session, error) {
	mode := "cart"
	if in.BuyNow() {
		mode = "buy_now"
		item, err := s.Items.Load(ctx, storeID, sessionID)
		if err != nil {
			s.countCheckout(mode, "error")
			return nil, common.NewAppError("BUYNOW_UNAVAILABLE", "could not load buy now item", http.StatusServiceUnavailable, err)
		}
		if item == nil {
			s.countCheckout(mode, "invalid")
			return nil, common.NewAppError("BUYNOW_EMPTY", "no buy now item saved for this session", http.StatusBadRequest, nil)
		}
		in.Items = []Item{*item}
	}
	if len(in.Items) == 0 {
		s.countCheckout(mode, "invalid")
		return nil, common.NewAppError("EMPTY_CHECKOUT", "checkout requires at least one item", http.StatusBadRequest, nil)
	}
	if s.Validate != nil {
		if err := s.Validate.Struct(in); err != nil {
			s.countCheckout(mode, "invalid")
			return nil, common.NewAppError("VALIDATION_FAILED", "invalid checkout input", http.StatusBadRequest, err)
		}
	}

	order, err := s.Orders.Create(ctx, storeID, in)
	if err != nil {
		s.countCheckout(mode, "error")
		return nil, common.NewAppError("CHECKOUT_FAILED", "could not create order", http.StatusBadGateway, err)
	}
	s.countCheckout(mode, "created")
	s.Logger.Info().
		Str("store_id", storeID).
		Str("order_id", order.OrderID).
		Str("reference", order.TransactionReference).
		Str("mode", mode).
		Msg("order created")

	if s.Events != nil {
		if _, err := s.Events.Emit(ctx, events.TopicOrderCreated, order.TransactionReference, storeID, map[string]any{
			"orderId": order.OrderID,
			"mode":    mode,
		}); err != nil {
			s.Logger.Warn().Err(err).Str("order_id", order.OrderID).Msg("order.created emit failed")
		}
	}
	return &Session{
		Order: order,
		SDK:   s.SDK.Build(order, in.Customer.Email, storeID),
	}, nil
}

// CompletePayment resolves a success callback from the payment widget. When
// the payment settles the buy-now item is released; an uncompleted outcome
// keeps it so the shopper can try again.
func (s *Service) CompletePayment(ctx context.Context, storeID, sessionID string, ev payment.CallbackEvent) payment.Outcome {
	ev.StoreID = storeID
	out := s.Orchestrator.Resolve(ctx, ev)
	s.releaseOnSuccess(ctx, storeID, sessionID, out)
	return out
}

// ClosePayment handles the shopper dismissing the widget.
func (s *Service) ClosePayment(ctx context.Context, storeID, sessionID string, ev payment.CallbackEvent) payment.Outcome {
	ev.StoreID = storeID
	out := s.Orchestrator.ResolveClose(ctx, ev)
	s.releaseOnSuccess(ctx, storeID, sessionID, out)
	return out
}

func (s *Service) releaseOnSuccess(ctx context.Context, storeID, sessionID string, out payment.Outcome) {
	if !out.Completed() || sessionID == "" {
		return
	}
	if err := s.Items.Clear(ctx, storeID, sessionID); err != nil {
		s.Logger.Warn().Err(err).
			Str("store_id", storeID).
			Str("reference", out.Reference).
			Msg("buy now item cleanup failed")
	}
}

// SaveBuyNow stores the single-item purchase for later restoration.
func (s *Service) SaveBuyNow(ctx context.Context, storeID, sessionID string, item Item) error {
	if s.Validate != nil {
		if err := s.Validate.Struct(item); err != nil {
			return common.NewAppError("VALIDATION_FAILED", "invalid buy now item", http.StatusBadRequest, err)
		}
	}
	return s.Items.Save(ctx, storeID, sessionID, item)
}

// LoadBuyNow returns the saved buy-now item, or nil when nothing is saved.
func (s *Service) LoadBuyNow(ctx context.Context, storeID, sessionID string) (*Item, error) {
	return s.Items.Load(ctx, storeID, sessionID)
}

// ClearBuyNow drops the saved buy-now item.
func (s *Service) ClearBuyNow(ctx context.Context, storeID, sessionID string) error {
	return s.Items.Clear(ctx, storeID, sessionID)
}

func (s *Service) countCheckout(mode, result string) {
	if obs.CheckoutTotal == nil {
		return
	}
	obs.CheckoutTotal.WithLabelValues(mode, result).Inc()
}
