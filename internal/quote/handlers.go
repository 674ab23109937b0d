package quote

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/promo-pricing/internal/common"
)

// Handler exposes quote endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

type batchRequest struct {
	Quotes []Request `json:"quotes"`
}

// Routes mounts the quote endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/quotes", h.Create)
	r.Post("/quotes/batch", h.Batch)
}

// Create handles POST /api/v1/quotes.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "quote service not configured", nil)
		return
	}
	var req Request
	if err := decodeJSON(r.Body, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.service.Quote(r.Context(), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, res)
}

// Batch handles POST /api/v1/quotes/batch.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "quote service not configured", nil)
		return
	}
	var req batchRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	entries, err := h.service.QuoteBatch(r.Context(), req.Quotes)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, entries)
}

// Rules handles GET /api/v1/pricing/rules.
func (h *Handler) Rules(w http.ResponseWriter, r *http.Request) {
	if h.service == nil || h.service.Engine == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "quote service not configured", nil)
		return
	}
	common.Data(w, http.StatusOK, h.service.Rules())
}

// decodeJSON keeps numbers as json.Number so prices reach the engine without
// a float round trip.
func decodeJSON(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return common.NewAppError(common.CodePayloadTooLarge, "request body too large", http.StatusRequestEntityTooLarge, err)
		}
		return common.NewAppError(common.CodeBadRequest, "invalid JSON body", http.StatusBadRequest, err)
	}
	return nil
}
