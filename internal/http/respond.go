package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/addressbook"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/rs/zerolog"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// errorStatus maps a service error onto an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrReturnRequestNotFound),
		errors.Is(err, addressbook.ErrAddressNotFound),
		errors.Is(err, storage.ErrImageNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrImagesRequired):
		return http.StatusBadRequest, "images_required"
	case errors.Is(err, storage.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge, "invalid_request"
	case errors.Is(err, addressbook.ErrInvalidID),
		errors.Is(err, storage.ErrInvalidImageID),
		errors.Is(err, storage.ErrNotAnImage),
		errors.Is(err, storage.ErrEmptyImage),
		errors.Is(err, storage.ErrTooManyImages):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrIllegalTransition):
		return http.StatusUnprocessableEntity, "illegal_transition"
	case errors.Is(err, domain.ErrActionNotAllowed),
		errors.Is(err, domain.ErrReturnNotEligible),
		errors.Is(err, domain.ErrRequestAlreadyFinal):
		return http.StatusUnprocessableEntity, "action_not_allowed"
	case errors.Is(err, repository.ErrDuplicateReturnRequest):
		return http.StatusConflict, "duplicate_return_request"
	case errors.Is(err, repository.ErrConcurrentUpdate),
		errors.Is(err, repository.ErrDuplicateCheckout):
		return http.StatusConflict, "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		reqLog := logger.FromContext(r.Context(), log)
		reqLog.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondError(w, status, code, "internal server error")
		return
	}

	resp := ErrorResponse{Error: err.Error(), Code: code}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Details = verr.Field
	}
	respondJSON(w, status, resp)
}
