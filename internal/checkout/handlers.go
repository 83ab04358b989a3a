package checkout

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kehinde-o/storefront-pay/internal/common"
	"github.com/kehinde-o/storefront-pay/internal/payment"
	"github.com/kehinde-o/storefront-pay/internal/store"
)

// SessionHeader carries the device-scoped session identifier used to key
// buy-now items. The storefront generates it and sends it on every request.
const SessionHeader = "X-Session-ID"

// Handler exposes the checkout and payment completion endpoints.
type Handler struct {
	Svc    *Service
	Logger zerolog.Logger
}

// Checkout handles POST /checkout.
func (h Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	storeID, ok := store.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "STORE_REQUIRED", "store could not be resolved", nil)
		return
	}
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "could not parse checkout input", nil)
		return
	}
	session, err := h.Svc.Begin(r.Context(), storeID, sessionID(r), in)
	if err != nil {
		h.renderError(w, err)
		return
	}
	common.JSONSuccess(w, http.StatusCreated, session)
}

// Complete handles POST /payments/complete, the SDK success callback.
func (h Handler) Complete(w http.ResponseWriter, r *http.Request) {
	storeID, _ := store.FromContext(r.Context())
	var ev payment.CallbackEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "could not parse callback payload", nil)
		return
	}
	out := h.Svc.CompletePayment(r.Context(), storeID, sessionID(r), ev)
	common.JSONSuccess(w, http.StatusOK, out)
}

// Close handles POST /payments/close, fired when the shopper dismisses the
// payment widget.
func (h Handler) Close(w http.ResponseWriter, r *http.Request) {
	storeID, _ := store.FromContext(r.Context())
	var ev payment.CallbackEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "could not parse close payload", nil)
		return
	}
	out := h.Svc.ClosePayment(r.Context(), storeID, sessionID(r), ev)
	common.JSONSuccess(w, http.StatusOK, out)
}

// BuyNowSave handles PUT /buy-now.
func (h Handler) BuyNowSave(w http.ResponseWriter, r *http.Request) {
	storeID, sid, ok := h.sessionScope(w, r)
	if !ok {
		return
	}
	var item Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "could not parse item", nil)
		return
	}
	if err := h.Svc.SaveBuyNow(r.Context(), storeID, sid, item); err != nil {
		h.renderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BuyNowGet handles GET /buy-now.
func (h Handler) BuyNowGet(w http.ResponseWriter, r *http.Request) {
	storeID, sid, ok := h.sessionScope(w, r)
	if !ok {
		return
	}
	item, err := h.Svc.LoadBuyNow(r.Context(), storeID, sid)
	if err != nil {
		h.renderError(w, err)
		return
	}
	if item == nil {
		common.JSONError(w, http.StatusNotFound, "BUYNOW_EMPTY", "no buy now item saved for this session", nil)
		return
	}
	common.JSONSuccess(w, http.StatusOK, item)
}

// BuyNowDelete handles DELETE /buy-now.
func (h Handler) BuyNowDelete(w http.ResponseWriter, r *http.Request) {
	storeID, sid, ok := h.sessionScope(w, r)
	if !ok {
		return
	}
	if err := h.Svc.ClearBuyNow(r.Context(), storeID, sid); err != nil {
		h.renderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h Handler) sessionScope(w http.ResponseWriter, r *http.Request) (storeID, sid string, ok bool) {
	storeID, found := store.FromContext(r.Context())
	if !found {
		common.JSONError(w, http.StatusBadRequest, "STORE_REQUIRED", "store could not be resolved", nil)
		return "", "", false
	}
	sid = sessionID(r)
	if sid == "" {
		common.JSONError(w, http.StatusBadRequest, "SESSION_REQUIRED", "missing "+SessionHeader+" header", nil)
		return "", "", false
	}
	return storeID, sid, true
}

func (h Handler) renderError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		details := appErr.Details
		if details == nil && appErr.Err != nil {
			details = appErr.Err.Error()
		}
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, details)
		return
	}
	h.Logger.Error().Err(err).Msg("checkout handler error")
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "something went wrong", nil)
}

func sessionID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(SessionHeader))
}
