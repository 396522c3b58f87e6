package grant

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"aegis/internal/transport/http/shared"
	"aegis/pkg/domain"
	dErrors "aegis/pkg/domain-errors"
)

// Handler exposes the grant vault surface.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/vault/poa", h.create)
	r.Get("/vault/poa", h.list)
	r.Get("/vault/poa/{poa_id}", h.get)
	r.Delete("/vault/poa/{poa_id}", h.revoke)
}

type createRequest struct {
	SeniorID         string       `json:"senior_id"`
	AgentID          string       `json:"agent_id"`
	Scope            domain.Scope `json:"scope"`
	SpecificServices []string     `json:"specific_services"`
	SpendLimit       *float64     `json:"spend_limit"`
	ExpiryDays       int          `json:"expiry_days"`
	CreatedBy        string       `json:"created_by"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	g, err := h.service.Create(r.Context(), CreateParams{
		SeniorID:         req.SeniorID,
		AgentID:          req.AgentID,
		Scope:            req.Scope,
		SpecificServices: req.SpecificServices,
		SpendLimit:       req.SpendLimit,
		ExpiryDays:       req.ExpiryDays,
		CreatedBy:        req.CreatedBy,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, g)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseGrantID(chi.URLParam(r, "poa_id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid poa_id"))
		return
	}

	g, err := h.service.Get(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, g)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	seniorID := r.URL.Query().Get("senior_id")

	grants, err := h.service.ListBySenior(r.Context(), seniorID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if grants == nil {
		grants = []*Grant{}
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"senior_id": seniorID,
		"count":     len(grants),
		"grants":    grants,
	})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseGrantID(chi.URLParam(r, "poa_id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid poa_id"))
		return
	}

	q := r.URL.Query()
	g, err := h.service.Revoke(r.Context(), id, q.Get("revoked_by"), q.Get("reason"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, g)
}
