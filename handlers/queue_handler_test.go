package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartqueue/config"
	"smartqueue/models"
	"smartqueue/monitoring"
	"smartqueue/services"
	"smartqueue/storage"
)

// newTestRouter wires the full API against the in-memory store so handler
// tests exercise real routing, binding, and error mapping.
func newTestRouter(t *testing.T) *echo.Echo {
	t.Helper()

	cfg := &config.Config{
		EmaAlpha:            0.3,
		DefaultServiceRate:  1.0,
		MinServiceRate:      0.1,
		DefaultMaxCapacity:  100,
		MeasurementWindow:   60 * time.Second,
		LockTimeout:         time.Second,
		StoreTimeout:        time.Second,
		EtaNotifyThreshold:  10,
		PositionSweepPeriod: time.Minute,
	}

	store := storage.NewMemoryStore()
	ledger := services.NewTicketLedger(store)
	estimator := services.NewRateEstimator(store, nil, cfg)
	predictor := services.NewEtaPredictor(estimator, cfg)
	svc := services.NewQueueService(store, ledger, estimator, predictor,
		&services.NoopNotifier{}, nil, monitoring.NewMonitor(), cfg)
	t.Cleanup(svc.Stop)

	queueHandler := NewQueueHandler(svc)
	statsHandler := NewStatsHandler(svc)
	adminHandler := NewAdminHandler(svc, nil)

	e := echo.New()
	api := e.Group("/api")
	api.POST("/queues/:queueId/join", queueHandler.Join)
	api.GET("/queues/:queueId/tickets/:ticketId", queueHandler.Status)
	api.POST("/queues/:queueId/tickets/:ticketId/cancel", queueHandler.Cancel)
	api.POST("/queues/:queueId/tickets/:ticketId/expire", queueHandler.Expire)
	api.POST("/queues/:queueId/process-next", queueHandler.ProcessNext)
	api.GET("/queues/:queueId/eta", queueHandler.Eta)
	api.GET("/queues/:queueId/stats", queueHandler.Stats)
	api.POST("/stats/served", statsHandler.UpdateServed)
	api.POST("/queues", adminHandler.CreateQueue)
	api.GET("/queues", adminHandler.ListQueues)
	api.GET("/queues/:queueId", adminHandler.GetQueue)
	api.PATCH("/queues/:queueId", adminHandler.UpdateQueue)
	api.DELETE("/queues/:queueId", adminHandler.DeleteQueue)
	api.GET("/queues/:queueId/stats/history", adminHandler.StatsHistory)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func createQueue(t *testing.T, e *echo.Echo, id string, capacity, openSlots int) {
	t.Helper()
	body, err := json.Marshal(models.CreateQueueRequest{
		ID: id, Name: id, MaxCapacity: capacity, OpenSlots: openSlots,
	})
	require.NoError(t, err)
	rec := doJSON(t, e, http.MethodPost, "/api/queues", string(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestQueueLifecycleOverHTTP(t *testing.T) {
	e := newTestRouter(t)
	createQueue(t, e, "Q1", 100, 50)

	// Join.
	rec := doJSON(t, e, http.MethodPost, "/api/queues/Q1/join", `{"holder_id":"alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var joined models.JoinQueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &joined))
	assert.Equal(t, 1, joined.Position)
	require.NotEmpty(t, joined.TicketID)

	// Status.
	rec = doJSON(t, e, http.MethodGet, "/api/queues/Q1/tickets/"+joined.TicketID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st models.QueueStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, models.StatusWaiting, st.Status)
	assert.Equal(t, 1, st.Position)
	assert.Positive(t, st.EstimatedWaitMinutes)

	// Serve.
	rec = doJSON(t, e, http.MethodPost, "/api/queues/Q1/process-next", `{"count":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var processed models.ProcessNextResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &processed))
	assert.Equal(t, 1, processed.ServedCount)

	rec = doJSON(t, e, http.MethodGet, "/api/queues/Q1/tickets/"+joined.TicketID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, models.StatusServed, st.Status)
}

func TestJoinHTTPErrors(t *testing.T) {
	e := newTestRouter(t)

	rec := doJSON(t, e, http.MethodPost, "/api/queues/ghost/join", `{"holder_id":"alice"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	createQueue(t, e, "full", 100, 0)
	rec = doJSON(t, e, http.MethodPost, "/api/queues/full/join", `{"holder_id":"alice"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	createQueue(t, e, "Q1", 100, 10)
	rec = doJSON(t, e, http.MethodPost, "/api/queues/Q1/join", `{"holder_id":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelOverHTTP(t *testing.T) {
	e := newTestRouter(t)
	createQueue(t, e, "Q1", 100, 10)

	rec := doJSON(t, e, http.MethodPost, "/api/queues/Q1/join", `{"holder_id":"alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var joined models.JoinQueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &joined))

	rec = doJSON(t, e, http.MethodPost, "/api/queues/Q1/tickets/"+joined.TicketID+"/cancel", "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Cancelling twice is an invalid transition.
	rec = doJSON(t, e, http.MethodPost, "/api/queues/Q1/tickets/"+joined.TicketID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, e, http.MethodPost, "/api/queues/Q1/tickets/nope/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExpireOverHTTP(t *testing.T) {
	e := newTestRouter(t)
	createQueue(t, e, "Q1", 100, 10)

	rec := doJSON(t, e, http.MethodPost, "/api/queues/Q1/join", `{"holder_id":"alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var joined models.JoinQueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &joined))

	rec = doJSON(t, e, http.MethodPost, "/api/queues/Q1/tickets/"+joined.TicketID+"/expire", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, e, http.MethodGet, "/api/queues/Q1/tickets/"+joined.TicketID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st models.QueueStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, models.StatusExpired, st.Status)
}

func TestProcessNextValidation(t *testing.T) {
	e := newTestRouter(t)
	createQueue(t, e, "Q1", 100, 10)

	rec := doJSON(t, e, http.MethodPost, "/api/queues/Q1/process-next", `{"count":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, e, http.MethodPost, "/api/queues/ghost/process-next", `{"count":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEtaEndpoint(t *testing.T) {
	e := newTestRouter(t)
	createQueue(t, e, "Q1", 100, 10)

	rec := doJSON(t, e, http.MethodGet, "/api/queues/Q1/eta?position=5", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var eta models.EtaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eta))
	assert.Equal(t, "Q1", eta.QueueID)
	assert.Positive(t, eta.EstimatedWaitMinutes)

	rec = doJSON(t, e, http.MethodGet, "/api/queues/Q1/eta?position=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, e, http.MethodGet, "/api/queues/Q1/eta", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServedStatsEndpoint(t *testing.T) {
	e := newTestRouter(t)

	rec := doJSON(t, e, http.MethodPost, "/api/stats/served", `{"queue_id":"Q1","count":6,"window_sec":120}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The report lazily registered the queue and seeded its rate.
	rec = doJSON(t, e, http.MethodGet, "/api/queues/Q1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats models.EtaStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.InDelta(t, 3.0, stats.EmaServiceRate, 1e-9)

	rec = doJSON(t, e, http.MethodPost, "/api/stats/served", `{"count":1,"window_sec":60}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, e, http.MethodPost, "/api/stats/served", `{"queue_id":"Q1","count":-1,"window_sec":60}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminQueueEndpoints(t *testing.T) {
	e := newTestRouter(t)
	createQueue(t, e, "Q1", 100, 10)

	// Duplicate create conflicts.
	body := `{"id":"Q1","max_capacity":100,"open_slots":10}`
	rec := doJSON(t, e, http.MethodPost, "/api/queues", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, e, http.MethodGet, "/api/queues/Q1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var queue models.Queue
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queue))
	assert.Equal(t, 100, queue.MaxCapacity)

	rec = doJSON(t, e, http.MethodPatch, "/api/queues/Q1", `{"name":"Front Desk"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queue))
	assert.Equal(t, "Front Desk", queue.Name)

	rec = doJSON(t, e, http.MethodGet, "/api/queues", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var queues []models.Queue
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queues))
	assert.Len(t, queues, 1)

	rec = doJSON(t, e, http.MethodDelete, "/api/queues/Q1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, e, http.MethodGet, "/api/queues/Q1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteOccupiedQueueOverHTTP(t *testing.T) {
	e := newTestRouter(t)
	createQueue(t, e, "Q1", 100, 10)

	rec := doJSON(t, e, http.MethodPost, "/api/queues/Q1/join", `{"holder_id":"alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, e, http.MethodDelete, "/api/queues/Q1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatsHistoryDisabled(t *testing.T) {
	e := newTestRouter(t)
	createQueue(t, e, "Q1", 100, 10)

	// The test router runs without an archive.
	rec := doJSON(t, e, http.MethodGet, "/api/queues/Q1/stats/history", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
