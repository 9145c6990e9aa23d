package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_market/internal/domain"
	"github.com/fjod/go_market/pkg/logger"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.WithTrace(r.Context(), logger.FromContext(r.Context())).
			Error("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, r, status, ErrorResponse{Error: message, Code: code})
}

func respondUnauthorized(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, http.StatusUnauthorized, "unauthorized", "missing user authentication")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// handleError maps service errors to HTTP responses.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *domain.ValidationError
		notFound   *domain.ProductNotFoundError
		stock      *domain.StockError
		voucher    *domain.VoucherError
		invalid    *domain.InvalidTransitionError
		forbidden  *domain.ForbiddenTransitionError
		conflict   *domain.ConflictError
	)

	switch {
	case errors.As(err, &validation):
		respondJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: validation.Error(), Code: "invalid_" + validation.Field})
	case errors.As(err, &notFound):
		respondJSON(w, r, http.StatusUnprocessableEntity, ErrorResponse{Error: notFound.Error(), Code: "product_not_found"})
	case errors.As(err, &stock):
		respondJSON(w, r, http.StatusConflict, ErrorResponse{Error: stock.Error(), Code: "insufficient_stock", Details: stock.Shortages})
	case errors.As(err, &voucher):
		respondJSON(w, r, http.StatusUnprocessableEntity, ErrorResponse{Error: voucher.Error(), Code: "voucher_" + string(voucher.Code)})
	case errors.As(err, &invalid):
		respondError(w, r, http.StatusConflict, "invalid_transition", invalid.Error())
	case errors.As(err, &forbidden):
		respondError(w, r, http.StatusForbidden, "forbidden_transition", forbidden.Error())
	case errors.As(err, &conflict):
		respondError(w, r, http.StatusConflict, "conflict", conflict.Error())
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, r, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		logger.WithTrace(r.Context(), logger.FromContext(r.Context())).Error("request failed", zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
