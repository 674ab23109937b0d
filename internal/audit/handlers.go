package audit

import (
	"context"
	"net/http"
	"strconv"

	"github.com/noah-isme/promo-pricing/internal/common"
)

// Lister reads recent audit records.
type Lister interface {
	Recent(ctx context.Context, limit int) ([]Record, error)
}

// AdminHandler exposes the audit trail over HTTP.
type AdminHandler struct {
	Store Lister
}

// List returns recent audit records, newest first.
func (h AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusServiceUnavailable, common.CodeUnavailable, "quote audit store not configured", nil)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "limit must be an integer", nil)
			return
		}
		limit = v
	}
	records, err := h.Store.Recent(r.Context(), ClampLimit(limit))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to load quote audits", nil)
		return
	}
	if records == nil {
		records = []Record{}
	}
	common.Data(w, http.StatusOK, records)
}
