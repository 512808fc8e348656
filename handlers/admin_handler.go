package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"

	"smartqueue/models"
	"smartqueue/services"
	"smartqueue/storage"
)

type AdminHandler struct {
	svc     *services.QueueService
	archive *storage.Archive // nil when archiving is disabled
}

func NewAdminHandler(svc *services.QueueService, archive *storage.Archive) *AdminHandler {
	return &AdminHandler{svc: svc, archive: archive}
}

func (h *AdminHandler) CreateQueue(c echo.Context) error {
	var req models.CreateQueueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	queue, err := h.svc.CreateQueue(c.Request().Context(), &req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, queue)
}

func (h *AdminHandler) ListQueues(c echo.Context) error {
	queues, err := h.svc.ListQueues(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, queues)
}

func (h *AdminHandler) GetQueue(c echo.Context) error {
	queue, err := h.svc.GetQueue(c.Request().Context(), c.PathParam("queueId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, queue)
}

func (h *AdminHandler) UpdateQueue(c echo.Context) error {
	var req models.UpdateQueueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	queue, err := h.svc.UpdateQueue(c.Request().Context(), c.PathParam("queueId"), &req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, queue)
}

func (h *AdminHandler) DeleteQueue(c echo.Context) error {
	if err := h.svc.DeleteQueue(c.Request().Context(), c.PathParam("queueId")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// StatsHistory returns archived (closed) stats windows, newest first.
func (h *AdminHandler) StatsHistory(c echo.Context) error {
	if h.archive == nil {
		return echo.NewHTTPError(http.StatusNotFound, "stats archive is disabled")
	}

	limit := 24
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	history, err := h.archive.WindowHistory(c.Request().Context(), c.PathParam("queueId"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, history)
}
