package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"smartqueue/internal/status"
)

// httpError maps the engine's error taxonomy onto HTTP statuses. Lock
// timeouts surface as 503 so callers know to retry, not to re-validate.
func httpError(err error) error {
	switch {
	case errors.Is(err, status.ErrQueueNotFound),
		errors.Is(err, status.ErrTicketNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, status.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, status.ErrQueueInactive),
		errors.Is(err, status.ErrQueueFull),
		errors.Is(err, status.ErrInvalidTransition),
		errors.Is(err, status.ErrQueueNotEmpty),
		errors.Is(err, status.ErrQueueExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, status.ErrLockTimeout),
		errors.Is(err, status.ErrUpstream):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
