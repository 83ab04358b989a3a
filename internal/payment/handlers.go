package payment

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kehinde-o/storefront-pay/internal/common"
	"github.com/kehinde-o/storefront-pay/internal/store"
)

// Handler exposes the read-only payment status endpoint used by the callback
// page to keep watching a payment after a manual-review redirect.
type Handler struct {
	Verifier Verifier
	Logger   zerolog.Logger
}

// Status handles GET /payments/{reference}/status.
func (h Handler) Status(w http.ResponseWriter, r *http.Request) {
	reference := strings.TrimSpace(chi.URLParam(r, "reference"))
	if reference == "" {
		common.JSONError(w, http.StatusBadRequest, "INVALID_REFERENCE", "transaction reference is required", nil)
		return
	}
	storeID, _ := store.FromContext(r.Context())
	v := h.Verifier.Verify(r.Context(), reference, storeID)
	common.JSON(w, http.StatusOK, v)
}
