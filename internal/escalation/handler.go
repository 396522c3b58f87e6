package escalation

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"aegis/internal/transport/http/shared"
	"aegis/pkg/domain"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/requestcontext"
)

// Handler exposes the break-glass surface. Every route sits behind the
// advocate auth middleware; the acting advocate comes from the request
// context, never from the body.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/break-glass/verify-2fa", h.verifyCode)
	r.Post("/break-glass/verify-liveness", h.verifyLiveness)
	r.Post("/break-glass/deny", h.deny)
	r.Get("/break-glass/pending", h.listPending)
	r.Get("/break-glass/{event_id}", h.get)
}

type verifyCodeRequest struct {
	EventID string `json:"event_id"`
	Code    string `json:"code"`
}

func (h *Handler) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	id, err := domain.ParseEventID(req.EventID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid event_id"))
		return
	}

	e, err := h.service.VerifyCode(r.Context(), id, req.Code, requestcontext.ActorID(r.Context()))
	if err != nil {
		h.writeOutcome(w, e, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, e)
}

type verifyLivenessRequest struct {
	EventID string `json:"event_id"`
	Method  string `json:"method"`
	Data    string `json:"verification_data"`
}

func (h *Handler) verifyLiveness(w http.ResponseWriter, r *http.Request) {
	var req verifyLivenessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	id, err := domain.ParseEventID(req.EventID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid event_id"))
		return
	}

	e, err := h.service.VerifyLiveness(r.Context(), id, req.Method, req.Data, requestcontext.ActorID(r.Context()))
	if err != nil {
		h.writeOutcome(w, e, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, e)
}

type denyRequest struct {
	EventID  string `json:"event_id"`
	DeniedBy string `json:"denied_by"`
	Reason   string `json:"reason"`
}

func (h *Handler) deny(w http.ResponseWriter, r *http.Request) {
	var req denyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	id, err := domain.ParseEventID(req.EventID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid event_id"))
		return
	}

	// The resolving actor is the authenticated token subject. A denied_by
	// naming anyone else is rejected rather than silently overridden.
	actor := requestcontext.ActorID(r.Context())
	if req.DeniedBy != "" && req.DeniedBy != actor {
		shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, "denied_by does not match the authenticated advocate"))
		return
	}

	e, err := h.service.Deny(r.Context(), id, actor, req.Reason)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	advocateID := requestcontext.ActorID(r.Context())
	if q := r.URL.Query().Get("advocate_id"); q != "" && q != advocateID {
		shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, "advocate_id does not match the authenticated advocate"))
		return
	}

	events, err := h.service.ListPending(r.Context(), advocateID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if events == nil {
		events = []*Event{}
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"advocate_id": advocateID,
		"count":       len(events),
		"pending":     events,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseEventID(chi.URLParam(r, "event_id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid event_id"))
		return
	}

	e, err := h.service.Get(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, e)
}

// writeOutcome reports verification failures. The event state rides along
// when available so clients see where the machine actually landed.
func (h *Handler) writeOutcome(w http.ResponseWriter, e *Event, err error) {
	if e == nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, dErrors.HTTPStatus(dErrors.CodeOf(err)), map[string]any{
		"error":   string(dErrors.CodeOf(err)),
		"message": dErrors.MessageOf(err),
		"event":   e,
	})
}
