package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartqueue/models"
	"smartqueue/storage"
)

func newTestPredictor(t *testing.T, store storage.Store) *EtaPredictor {
	t.Helper()
	cfg := testConfig()
	est := NewRateEstimator(store, nil, cfg)
	est.SetNow(func() time.Time { return at(10, 30) })
	pred := NewEtaPredictor(est, cfg)
	pred.SetNow(func() time.Time { return at(10, 30) })
	return pred
}

// failingStatsStore breaks statistics reads while leaving the rest of the
// store intact.
type failingStatsStore struct {
	*storage.MemoryStore
}

func (s *failingStatsStore) LoadStats(ctx context.Context, queueID, window string) (*models.EtaStats, error) {
	return nil, errors.New("stats backend down")
}

func (s *failingStatsStore) LatestStats(ctx context.Context, queueID string) (*models.EtaStats, error) {
	return nil, errors.New("stats backend down")
}

func TestPredict_PeakHourWeekday(t *testing.T) {
	// Position 5 at the default 1.0/min rate on a Tuesday at 10:30: peak
	// scaling takes the rate to 0.7, 5/0.7 = 7.14 minutes, the reliability
	// buffer lifts it to 7.5, and the ceiling lands on 8.
	pred := newTestPredictor(t, storage.NewMemoryStore())

	eta := pred.Predict(context.Background(), "Q1", 5)
	assert.Equal(t, 8, eta)
}

func TestPredict_OffPeakWeekday(t *testing.T) {
	pred := newTestPredictor(t, storage.NewMemoryStore())
	pred.SetNow(func() time.Time { return at(13, 45) })

	// No category applies at 13:45 Tuesday: 5/1.0 * 1.05 = 5.25, ceil 6.
	eta := pred.Predict(context.Background(), "Q1", 5)
	assert.Equal(t, 6, eta)
}

func TestPredict_CategoriesCompose(t *testing.T) {
	pred := newTestPredictor(t, storage.NewMemoryStore())
	// Saturday 10:30: peak (0.7) and weekend (0.8) both apply, then the
	// Saturday day factor (0.90). 5/0.56 * 0.90 * 1.05 = 8.44, ceil 9.
	pred.SetNow(func() time.Time { return time.Date(2024, 6, 8, 10, 30, 0, 0, time.UTC) })

	eta := pred.Predict(context.Background(), "Q1", 5)
	assert.Equal(t, 9, eta)
}

func TestPredict_LongQueueBuffer(t *testing.T) {
	pred := newTestPredictor(t, storage.NewMemoryStore())
	pred.SetNow(func() time.Time { return at(13, 45) })

	// At position 10 no buffer: 10 * 1.05 = 10.5, ceil 11.
	assert.Equal(t, 11, pred.Predict(context.Background(), "Q1", 10))
	// At position 11 the 1.1 buffer kicks in: 11 * 1.1 * 1.05 = 12.705.
	assert.Equal(t, 13, pred.Predict(context.Background(), "Q1", 11))
}

func TestPredict_NeverBelowOneMinute(t *testing.T) {
	store := storage.NewMemoryStore()
	pred := newTestPredictor(t, store)
	pred.SetNow(func() time.Time { return at(13, 45) })

	// A very fast queue still reports at least one minute of wait.
	require.NoError(t, store.SaveStats(context.Background(), &models.EtaStats{
		QueueID:        "Q1",
		TimeWindow:     WindowKey(at(13, 45)),
		EmaServiceRate: 50.0,
	}))
	assert.Equal(t, 1, pred.Predict(context.Background(), "Q1", 1))
}

func TestPredict_MonotonicInPosition(t *testing.T) {
	pred := newTestPredictor(t, storage.NewMemoryStore())

	prev := 0
	for position := 1; position <= 30; position++ {
		eta := pred.Predict(context.Background(), "Q1", position)
		assert.GreaterOrEqual(t, eta, prev, "position %d", position)
		prev = eta
	}
}

func TestPredict_FallbackWhenStatsUnavailable(t *testing.T) {
	store := &failingStatsStore{MemoryStore: storage.NewMemoryStore()}
	pred := newTestPredictor(t, store)

	assert.Equal(t, 25, pred.Predict(context.Background(), "Q1", 5))
	assert.Equal(t, 10, pred.Predict(context.Background(), "Q1", 0))
	assert.Equal(t, 10, pred.Predict(context.Background(), "Q1", -2))
}

func TestPredict_UsesMeasuredRate(t *testing.T) {
	store := storage.NewMemoryStore()
	pred := newTestPredictor(t, store)
	pred.SetNow(func() time.Time { return at(13, 45) })

	// 2.0/min off-peak: 5/2.0 * 1.05 = 2.625, ceil 3.
	require.NoError(t, store.SaveStats(context.Background(), &models.EtaStats{
		QueueID:        "Q1",
		TimeWindow:     WindowKey(at(13, 45)),
		EmaServiceRate: 2.0,
	}))
	assert.Equal(t, 3, pred.Predict(context.Background(), "Q1", 5))
}

func TestEstimate_FullPayload(t *testing.T) {
	store := storage.NewMemoryStore()
	pred := newTestPredictor(t, store)

	resp := pred.Estimate(context.Background(), "Q1", "T1", 5)
	require.NotNil(t, resp)
	assert.Equal(t, "Q1", resp.QueueID)
	assert.Equal(t, "T1", resp.TicketID)
	assert.Equal(t, 8, resp.EstimatedWaitMinutes)
	assert.InDelta(t, 0.7, resp.ServiceRate, 1e-9)
	assert.Equal(t, defaultP50Minutes, resp.P50WaitMinutes)
	assert.Equal(t, defaultP90Minutes, resp.P90WaitMinutes)
	assert.Equal(t, at(10, 30), resp.UpdatedAt)
}

func TestEstimate_FallbackPayload(t *testing.T) {
	store := &failingStatsStore{MemoryStore: storage.NewMemoryStore()}
	pred := newTestPredictor(t, store)

	resp := pred.Estimate(context.Background(), "Q1", "T1", 4)
	require.NotNil(t, resp)
	assert.Equal(t, 20, resp.EstimatedWaitMinutes)
	assert.Equal(t, 1.0, resp.ServiceRate)
}
