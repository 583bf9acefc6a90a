// internal/handler/webhook_handler.go
package handler

import (
	"errors"
	"io"
	"net/http"

	"funding-service/config"
	"funding-service/internal/domain"
	"funding-service/internal/usecase"

	"go.uber.org/zap"
)

type WebhookHandler struct {
	reconcileUC     *usecase.ReconcileUsecase
	signatureHeader string
	maxBodyBytes    int64
	logger          *zap.Logger
}

func NewWebhookHandler(reconcileUC *usecase.ReconcileUsecase, cfg config.WebhookConfig, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconcileUC:     reconcileUC,
		signatureHeader: cfg.SignatureHeader,
		maxBodyBytes:    cfg.MaxBodyBytes,
		logger:          logger,
	}
}

// HandleMonnifyWebhook authenticates and applies a Monnify notification. The
// body is read once as raw bytes; the signature covers exactly those bytes.
func (h *WebhookHandler) HandleMonnifyWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(w, r, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		sendError(w, r, http.StatusBadRequest, "failed to read request body")
		return
	}

	res, err := h.reconcileUC.ReconcileByWebhook(r.Context(), body, r.Header.Get(h.signatureHeader))
	if err != nil {
		if domain.IsKind(err, domain.KindSignature) {
			h.logger.Warn("rejected webhook with invalid signature",
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()))
		}
		sendDomainError(w, r, h.logger, err)
		return
	}

	status := "ignored"
	if res.Accepted {
		status = "success"
	}
	sendSuccess(w, r, http.StatusOK, "webhook processed", map[string]string{"status": status})
}
