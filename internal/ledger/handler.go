package ledger

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"aegis/internal/transport/http/shared"
	"aegis/pkg/domain"
	dErrors "aegis/pkg/domain-errors"
)

// Handler exposes the audit ledger read surface.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/audit/logs/{poa_id}", h.listLogs)
	r.Get("/audit/export/{poa_id}", h.export)
	r.Post("/audit/verify/{log_id}", h.verify)
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	grantID, err := domain.ParseGrantID(chi.URLParam(r, "poa_id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid poa_id"))
		return
	}

	entries, err := h.service.List(r.Context(), grantID.String())
	if err != nil {
		h.logger.Error("list audit logs", slog.String("poa_id", grantID.String()), slog.Any("error", err))
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"poa_id": grantID,
		"count":  len(entries),
		"logs":   entries,
	})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	grantID, err := domain.ParseGrantID(chi.URLParam(r, "poa_id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid poa_id"))
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "pdf":
		pdf, err := h.service.ExportPDF(r.Context(), grantID.String())
		if err != nil {
			h.logger.Error("export audit pdf", slog.String("poa_id", grantID.String()), slog.Any("error", err))
			shared.WriteError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="audit-`+grantID.String()+`.pdf"`)
		w.WriteHeader(http.StatusOK)
		w.Write(pdf)
	case "", "json":
		doc, err := h.service.ExportJSON(r.Context(), grantID.String())
		if err != nil {
			h.logger.Error("export audit json", slog.String("poa_id", grantID.String()), slog.Any("error", err))
			shared.WriteError(w, err)
			return
		}
		body, err := doc.marshalIndent()
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	default:
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "format must be json or pdf"))
	}
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	entryID, err := domain.ParseEntryID(chi.URLParam(r, "log_id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid log_id"))
		return
	}

	result, err := h.service.VerifyEntry(r.Context(), entryID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}
