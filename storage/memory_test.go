package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartqueue/internal/status"
	"smartqueue/models"
)

func TestMemoryQueueRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.LoadQueue(ctx, "Q1")
	assert.ErrorIs(t, err, status.ErrQueueNotFound)

	queue := &models.Queue{ID: "Q1", Name: "Q1", Active: true, MaxCapacity: 10, OpenSlots: 10}
	require.NoError(t, store.SaveQueue(ctx, queue))

	got, err := store.LoadQueue(ctx, "Q1")
	require.NoError(t, err)
	assert.Equal(t, queue, got)

	// The store hands out copies; mutating a read result must not leak back.
	got.OpenSlots = 0
	again, err := store.LoadQueue(ctx, "Q1")
	require.NoError(t, err)
	assert.Equal(t, 10, again.OpenSlots)

	require.NoError(t, store.DeleteQueue(ctx, "Q1"))
	assert.ErrorIs(t, store.DeleteQueue(ctx, "Q1"), status.ErrQueueNotFound)
}

func TestMemoryListInLineTickets(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.SaveTickets(ctx, []*models.Ticket{
		{ID: "t1", QueueID: "Q1", Status: models.StatusWaiting},
		{ID: "t2", QueueID: "Q1", Status: models.StatusNotified},
		{ID: "t3", QueueID: "Q1", Status: models.StatusServed},
		{ID: "t4", QueueID: "other", Status: models.StatusWaiting},
	}))

	inLine, err := store.ListInLineTickets(ctx, "Q1")
	require.NoError(t, err)
	require.Len(t, inLine, 2)
	ids := []string{inLine[0].ID, inLine[1].ID}
	assert.ElementsMatch(t, []string{"t1", "t2"}, ids)

	// Cancelling drops the ticket from the in-line view but not the record.
	require.NoError(t, store.SaveTicket(ctx, &models.Ticket{ID: "t1", QueueID: "Q1", Status: models.StatusCancelled}))
	inLine, err = store.ListInLineTickets(ctx, "Q1")
	require.NoError(t, err)
	assert.Len(t, inLine, 1)

	cancelled, err := store.LoadTicket(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
}

func TestMemoryLatestStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.LatestStats(ctx, "Q1")
	assert.ErrorIs(t, err, ErrStatsNotFound)

	require.NoError(t, store.SaveStats(ctx, &models.EtaStats{
		QueueID: "Q1", TimeWindow: "2024-06-04T09", EmaServiceRate: 1.5,
	}))
	require.NoError(t, store.SaveStats(ctx, &models.EtaStats{
		QueueID: "Q1", TimeWindow: "2024-06-04T10", EmaServiceRate: 2.5,
	}))

	latest, err := store.LatestStats(ctx, "Q1")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-04T10", latest.TimeWindow)

	// Closed windows stay readable by key.
	prev, err := store.LoadStats(ctx, "Q1", "2024-06-04T09")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, prev.EmaServiceRate, 1e-9)

	_, err = store.LoadStats(ctx, "Q1", "2024-06-04T08")
	assert.ErrorIs(t, err, ErrStatsNotFound)
}
