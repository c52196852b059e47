package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/matichattellino/euphoria-iva/src/database"
	"github.com/matichattellino/euphoria-iva/src/parsers"
	"github.com/matichattellino/euphoria-iva/src/security/validation"
	"github.com/matichattellino/euphoria-iva/src/services"
	"github.com/matichattellino/euphoria-iva/src/utils"
)

// statusFor maps a service error to the HTTP status reported to the client.
func statusFor(err error) int {
	var transportErr *services.RemoteTransportError
	var jobErr *services.RemoteJobFailed

	switch {
	case errors.Is(err, services.ErrInvalidPeriod),
		errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, validation.ErrValidationFailed),
		errors.Is(err, parsers.ErrMissingEntry):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrPeriodNotFound), errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, services.ErrRemoteTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &transportErr), errors.As(err, &jobErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// sendServiceError logs err and answers with its mapped status. Internal
// failures are reported without their details.
func sendServiceError(w http.ResponseWriter, log *zerolog.Logger, err error, action string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg(action + " failed")
		utils.SendJSONError(w, "An internal error occurred. Please try again later.", status)
		return
	}
	log.Warn().Err(err).Int("status", status).Msg(action + " rejected")
	utils.SendJSONError(w, err.Error(), status)
}
