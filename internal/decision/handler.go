package decision

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"aegis/internal/policy"
	"aegis/internal/signal"
	"aegis/internal/transport/http/shared"
	"aegis/pkg/domain"
	dErrors "aegis/pkg/domain-errors"
)

// Handler exposes the decision endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/tokens/validate", h.validateToken)
	r.Post("/sentinel/voice/intercept", h.interceptVoice)
	r.Post("/sentinel/transactions/monitor", h.monitorTransaction)
}

type validateTokenRequest struct {
	POAID      string       `json:"poa_id"`
	AgentID    string       `json:"agent_id"`
	AdvocateID string       `json:"advocate_id"`
	Scope      domain.Scope `json:"scope"`
	Service    string       `json:"service_name"`
	Amount     float64      `json:"amount"`
	Action     string       `json:"action"`
}

type validateTokenResponse struct {
	Decision          domain.Decision `json:"decision"`
	Reason            string          `json:"reason"`
	Detail            string          `json:"detail,omitempty"`
	BreakGlassEventID string          `json:"break_glass_event_id,omitempty"`
	LogID             string          `json:"log_id,omitempty"`
}

func (h *Handler) validateToken(w http.ResponseWriter, r *http.Request) {
	var req validateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	grantID, err := domain.ParseGrantID(req.POAID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid poa_id"))
		return
	}

	res, err := h.service.ValidateAction(r.Context(), ActionRequest{
		GrantID:    grantID,
		AgentID:    req.AgentID,
		AdvocateID: req.AdvocateID,
		Scope:      req.Scope,
		Service:    req.Service,
		Amount:     req.Amount,
		Action:     req.Action,
	})
	if err != nil && res == nil {
		shared.WriteError(w, err)
		return
	}

	body := validateTokenResponse{
		Decision: res.Outcome,
		Reason:   res.Reason,
		Detail:   res.Detail,
	}
	if res.Escalation != nil {
		body.BreakGlassEventID = res.Escalation.ID.String()
	}
	if res.Entry != nil {
		body.LogID = res.Entry.ID.String()
	}
	shared.WriteJSON(w, decisionStatus(res, err), body)
}

type interceptVoiceRequest struct {
	UserID       string       `json:"user_id"`
	AdvocateID   string       `json:"advocate_id"`
	Transcript   string       `json:"transcript"`
	CallMetadata callMetadata `json:"call_metadata"`
}

type callMetadata struct {
	CallerNumber string `json:"caller_number"`
}

type interceptVoiceResponse struct {
	FraudScore       int                `json:"fraud_score"`
	Action           signal.Action      `json:"action"`
	Reasoning        string             `json:"reasoning"`
	Indicators       []signal.Indicator `json:"indicators"`
	AdvocateNotified bool               `json:"advocate_notified"`
	LogID            string             `json:"log_id,omitempty"`
}

func (h *Handler) interceptVoice(w http.ResponseWriter, r *http.Request) {
	var req interceptVoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	res, err := h.service.InterceptCall(r.Context(), CallRequest{
		SeniorID:     req.UserID,
		AdvocateID:   req.AdvocateID,
		CallerNumber: req.CallMetadata.CallerNumber,
		Transcript:   req.Transcript,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	body := interceptVoiceResponse{
		FraudScore:       res.Signal.Score,
		Action:           res.Signal.Action,
		Reasoning:        res.Signal.Reasoning,
		Indicators:       res.Signal.Indicators,
		AdvocateNotified: res.AdvocateNotified,
	}
	if res.Entry != nil {
		body.LogID = res.Entry.ID.String()
	}
	shared.WriteJSON(w, http.StatusOK, body)
}

type monitorTransactionRequest struct {
	UserID          string  `json:"user_id"`
	AdvocateID      string  `json:"advocate_id"`
	POAID           string  `json:"poa_id"`
	Amount          float64 `json:"amount"`
	Merchant        string  `json:"merchant"`
	Category        string  `json:"category"`
	TransactionTime string  `json:"transaction_time"`
}

type monitorTransactionResponse struct {
	RiskLevel         signal.Level       `json:"risk_level"`
	RiskScore         int                `json:"risk_score"`
	Status            signal.Action      `json:"status"`
	Reasoning         string             `json:"reasoning"`
	Flags             []signal.Indicator `json:"flags"`
	AdvocateNotified  bool               `json:"advocate_notified"`
	BreakGlassEventID string             `json:"break_glass_event_id,omitempty"`
	LogID             string             `json:"log_id,omitempty"`
}

func (h *Handler) monitorTransaction(w http.ResponseWriter, r *http.Request) {
	var req monitorTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	var grantID domain.GrantID
	if req.POAID != "" {
		parsed, err := domain.ParseGrantID(req.POAID)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid poa_id"))
			return
		}
		grantID = parsed
	}
	var occurredAt time.Time
	if req.TransactionTime != "" {
		parsed, err := time.Parse(time.RFC3339, req.TransactionTime)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "transaction_time must be RFC 3339"))
			return
		}
		occurredAt = parsed
	}

	res, err := h.service.MonitorTransaction(r.Context(), TransactionRequest{
		SeniorID:   req.UserID,
		AdvocateID: req.AdvocateID,
		GrantID:    grantID,
		Amount:     req.Amount,
		Merchant:   req.Merchant,
		Category:   req.Category,
		OccurredAt: occurredAt,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	body := monitorTransactionResponse{
		RiskLevel:        res.Signal.Level,
		RiskScore:        res.Signal.Score,
		Status:           res.Signal.Action,
		Reasoning:        res.Signal.Reasoning,
		Flags:            res.Signal.Indicators,
		AdvocateNotified: res.AdvocateNotified,
	}
	if res.Escalation != nil {
		body.BreakGlassEventID = res.Escalation.ID.String()
	}
	if res.Entry != nil {
		body.LogID = res.Entry.ID.String()
	}
	shared.WriteJSON(w, http.StatusOK, body)
}

// decisionStatus maps a token-validation result to its HTTP status. Allowed
// and break-glass decisions are successful responses; blocks carry the
// status of their violation.
func decisionStatus(res *Result, err error) int {
	if err != nil {
		return http.StatusServiceUnavailable
	}
	if res.Outcome != domain.DecisionBlocked {
		return http.StatusOK
	}
	switch res.Reason {
	case policy.ReasonScopeViolation:
		return http.StatusForbidden
	case policy.ReasonNotFound:
		return http.StatusNotFound
	case policy.ReasonExpired, policy.ReasonRevoked:
		return http.StatusForbidden
	default:
		return http.StatusForbidden
	}
}
