package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gradegate/pkg/platform/httputil"
	"gradegate/pkg/requestcontext"
)

// SignatureHeader carries the hex-encoded HMAC of the raw request body.
const SignatureHeader = "X-Webhook-Signature"

// Handler exposes the grading-result webhook endpoint.
type Handler struct {
	processor *Processor
	timeout   time.Duration
	logger    *slog.Logger
}

// NewHandler creates the webhook handler. timeout bounds one delivery end to
// end, retries included.
func NewHandler(processor *Processor, timeout time.Duration, logger *slog.Logger) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{processor: processor, timeout: timeout, logger: logger}
}

// Register mounts the webhook route.
func (h *Handler) Register(r chi.Router) {
	r.Post("/webhooks/grading", h.HandleGradingResult)
}

// HandleGradingResult implements POST /webhooks/grading.
func (h *Handler) HandleGradingResult(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read webhook body",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error:            "validation",
			ErrorDescription: "unreadable request body",
		})
		return
	}

	if err := h.processor.Process(ctx, body, r.Header.Get(SignatureHeader)); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
