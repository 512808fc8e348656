// Package storage holds the persistence boundary of the queue engine.
// The core only sees these interfaces; one backend is picked at process
// startup and injected by constructor.
package storage

import (
	"context"
	"errors"

	"smartqueue/models"
)

// ErrStatsNotFound is returned when no statistics row exists yet for a
// (queue, window) pair. Callers seed from it rather than failing.
var ErrStatsNotFound = errors.New("stats: no row for window")

type QueueRepository interface {
	LoadQueue(ctx context.Context, id string) (*models.Queue, error)
	SaveQueue(ctx context.Context, queue *models.Queue) error
	ListQueues(ctx context.Context) ([]*models.Queue, error)
	DeleteQueue(ctx context.Context, id string) error
}

type TicketRepository interface {
	LoadTicket(ctx context.Context, id string) (*models.Ticket, error)
	SaveTicket(ctx context.Context, ticket *models.Ticket) error
	// SaveTickets persists a batch atomically: either every ticket in the
	// batch is written or none is.
	SaveTickets(ctx context.Context, tickets []*models.Ticket) error
	// ListInLineTickets returns every WAITING or NOTIFIED ticket of the
	// queue, in no particular order.
	ListInLineTickets(ctx context.Context, queueID string) ([]*models.Ticket, error)
}

type StatsRepository interface {
	LoadStats(ctx context.Context, queueID, window string) (*models.EtaStats, error)
	SaveStats(ctx context.Context, stats *models.EtaStats) error
	// LatestStats returns the most recently updated window row for the
	// queue, or ErrStatsNotFound if the queue has no statistics at all.
	LatestStats(ctx context.Context, queueID string) (*models.EtaStats, error)
}

// Store is the full persistence surface the orchestrator is wired with.
type Store interface {
	QueueRepository
	TicketRepository
	StatsRepository
}
