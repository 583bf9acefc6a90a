// internal/handler/response.go
package handler

import (
	"errors"
	"net/http"

	"funding-service/internal/domain"

	"github.com/go-chi/render"
	"go.uber.org/zap"
)

func sendSuccess(w http.ResponseWriter, r *http.Request, statusCode int, message string, data interface{}) {
	render.Status(r, statusCode)
	render.JSON(w, r, map[string]interface{}{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func sendError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	render.Status(r, statusCode)
	render.JSON(w, r, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// sendDomainError maps an error kind to a status. Gateway and internal
// failures get a generic message so upstream details never reach clients.
func sendDomainError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		msg := "invalid request"
		var de *domain.Error
		if errors.As(err, &de) && de.Msg != "" {
			msg = de.Msg
		}
		sendError(w, r, http.StatusBadRequest, msg)
	case domain.KindNotFound:
		sendError(w, r, http.StatusNotFound, "transaction not found")
	case domain.KindSignature:
		sendError(w, r, http.StatusUnauthorized, "invalid signature")
	case domain.KindConflict:
		sendError(w, r, http.StatusConflict, "request conflicts with an existing transaction")
	case domain.KindAuth, domain.KindGateway:
		sendError(w, r, http.StatusBadGateway, "payment gateway unavailable, please try again")
	default:
		logger.Error("unhandled error", zap.String("path", r.URL.Path), zap.Error(err))
		sendError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
