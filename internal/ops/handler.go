package ops

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"gradegate/internal/deadletter"
	dErrors "gradegate/pkg/domain-errors"
	"gradegate/pkg/platform/httputil"
)

// Handler exposes the operator endpoints. Authentication is applied by the
// router; everything here assumes an already-validated operator context.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates the operator handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Register mounts the operator routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/ops/failed-webhooks", h.HandleListFailed)
	r.Post("/ops/failed-webhooks/{id}/retry", h.HandleRetry)
	r.Get("/ops/audit/{submission_id}", h.HandleAuditTrail)
}

type failedWebhookResponse struct {
	ID           string     `json:"id"`
	SubmissionID int64      `json:"submission_id"`
	Error        string     `json:"error"`
	IsTransient  bool       `json:"is_transient"`
	Status       string     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	LastRetryAt  *time.Time `json:"last_retry_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func toFailedResponse(record deadletter.FailedWebhook) failedWebhookResponse {
	return failedWebhookResponse{
		ID:           record.ID.String(),
		SubmissionID: record.SubmissionID,
		Error:        record.Error,
		IsTransient:  record.IsTransient,
		Status:       string(record.Status),
		RetryCount:   record.RetryCount,
		LastRetryAt:  record.LastRetryAt,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

// HandleListFailed implements GET /ops/failed-webhooks?status=pending&limit=50.
func (h *Handler) HandleListFailed(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be an integer"))
			return
		}
		limit = parsed
	}

	records, err := h.service.ListFailed(r.Context(),
		deadletter.Status(r.URL.Query().Get("status")), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]failedWebhookResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toFailedResponse(record))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"failed_webhooks": out,
		"count":           len(out),
	})
}

// HandleRetry implements POST /ops/failed-webhooks/{id}/retry.
func (h *Handler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "id must be a UUID"))
		return
	}

	record, retryErr := h.service.Retry(r.Context(), id)
	if retryErr != nil && record == nil {
		httputil.WriteError(w, retryErr)
		return
	}

	status := http.StatusOK
	response := map[string]any{"failed_webhook": toFailedResponse(*record)}
	if retryErr != nil {
		// The retry ran and failed; report the updated record alongside.
		status = http.StatusBadGateway
		response["error"] = retryErr.Error()
	}
	httputil.WriteJSON(w, status, response)
}

// HandleAuditTrail implements GET /ops/audit/{submission_id}.
func (h *Handler) HandleAuditTrail(w http.ResponseWriter, r *http.Request) {
	submissionID, err := strconv.ParseInt(chi.URLParam(r, "submission_id"), 10, 64)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "submission id must be an integer"))
		return
	}

	events, err := h.service.AuditTrail(r.Context(), submissionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	type eventResponse struct {
		ID        string         `json:"id"`
		Type      string         `json:"event_type"`
		Details   map[string]any `json:"details,omitempty"`
		Actor     string         `json:"actor,omitempty"`
		RequestID string         `json:"request_id,omitempty"`
		Timestamp time.Time      `json:"timestamp"`
	}
	out := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, eventResponse{
			ID:        ev.ID.String(),
			Type:      string(ev.Type),
			Details:   ev.Details,
			Actor:     ev.Actor,
			RequestID: ev.RequestID,
			Timestamp: ev.Timestamp,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"submission_id": submissionID,
		"events":        out,
	})
}
