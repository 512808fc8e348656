package handlers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"smartqueue/models"
	"smartqueue/services"
)

type StatsHandler struct {
	svc *services.QueueService
}

func NewStatsHandler(svc *services.QueueService) *StatsHandler {
	return &StatsHandler{svc: svc}
}

// UpdateServed ingests a service-completion report from the counter side.
func (h *StatsHandler) UpdateServed(c echo.Context) error {
	var req models.UpdateStatsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.QueueID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "queue_id is required")
	}

	err := h.svc.UpdateServedStats(c.Request().Context(), req.QueueID, req.Count, req.WindowSec)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"queue_id": req.QueueID,
		"ack":      true,
	})
}
