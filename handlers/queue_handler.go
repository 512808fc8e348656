package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"

	"smartqueue/models"
	"smartqueue/services"
)

type QueueHandler struct {
	svc *services.QueueService
}

func NewQueueHandler(svc *services.QueueService) *QueueHandler {
	return &QueueHandler{svc: svc}
}

func (h *QueueHandler) Join(c echo.Context) error {
	queueID := c.PathParam("queueId")

	var req models.JoinQueueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resp, err := h.svc.JoinQueue(c.Request().Context(), queueID, req.HolderID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *QueueHandler) Status(c echo.Context) error {
	queueID := c.PathParam("queueId")
	ticketID := c.PathParam("ticketId")

	resp, err := h.svc.GetStatus(c.Request().Context(), queueID, ticketID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *QueueHandler) ProcessNext(c echo.Context) error {
	queueID := c.PathParam("queueId")

	var req models.ProcessNextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Count <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "count must be positive")
	}

	resp, err := h.svc.ProcessNext(c.Request().Context(), queueID, req.Count)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *QueueHandler) Cancel(c echo.Context) error {
	queueID := c.PathParam("queueId")
	ticketID := c.PathParam("ticketId")

	if err := h.svc.CancelTicket(c.Request().Context(), queueID, ticketID); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"ticket_id": ticketID,
		"status":    models.StatusCancelled,
	})
}

// Expire removes a no-show ticket from the line. Counter-side action, so it
// lives next to process-next rather than under the holder's cancel.
func (h *QueueHandler) Expire(c echo.Context) error {
	queueID := c.PathParam("queueId")
	ticketID := c.PathParam("ticketId")

	if err := h.svc.ExpireTicket(c.Request().Context(), queueID, ticketID); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"ticket_id": ticketID,
		"status":    models.StatusExpired,
	})
}

// Eta serves position-only estimates, for callers that track their own
// position (or dashboards probing hypothetical ones).
func (h *QueueHandler) Eta(c echo.Context) error {
	queueID := c.PathParam("queueId")

	position, err := strconv.Atoi(c.QueryParam("position"))
	if err != nil || position <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "position must be a positive integer")
	}
	ticketID := c.QueryParam("ticket_id")

	return c.JSON(http.StatusOK, h.svc.Estimate(c.Request().Context(), queueID, ticketID, position))
}

func (h *QueueHandler) Stats(c echo.Context) error {
	queueID := c.PathParam("queueId")

	stats, err := h.svc.Stats(c.Request().Context(), queueID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}
