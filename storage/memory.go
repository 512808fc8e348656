package storage

import (
	"context"
	"sync"

	"smartqueue/internal/status"
	"smartqueue/models"
)

// MemoryStore is the reference Store implementation: an arena of record
// copies guarded by a single RWMutex. Per-queue serialization happens a
// level up (services.QueueService); the mutex here only protects the maps
// during the short copy-in/copy-out sections, so readers always observe
// whole records, never one mid-transition.
type MemoryStore struct {
	mu      sync.RWMutex
	queues  map[string]models.Queue
	tickets map[string]models.Ticket
	stats   map[string]models.EtaStats // keyed queueID#window
	latest  map[string]string          // queueID -> most recent window key
	byQueue map[string][]string        // queueID -> ticket IDs ever issued
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queues:  make(map[string]models.Queue),
		tickets: make(map[string]models.Ticket),
		stats:   make(map[string]models.EtaStats),
		latest:  make(map[string]string),
		byQueue: make(map[string][]string),
	}
}

func (m *MemoryStore) LoadQueue(ctx context.Context, id string) (*models.Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.queues[id]
	if !ok {
		return nil, status.ErrQueueNotFound
	}
	out := q
	return &out, nil
}

func (m *MemoryStore) SaveQueue(ctx context.Context, queue *models.Queue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queues[queue.ID] = *queue
	return nil
}

func (m *MemoryStore) ListQueues(ctx context.Context) ([]*models.Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Queue, 0, len(m.queues))
	for _, q := range m.queues {
		c := q
		out = append(out, &c)
	}
	return out, nil
}

func (m *MemoryStore) DeleteQueue(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.queues[id]; !ok {
		return status.ErrQueueNotFound
	}
	delete(m.queues, id)
	return nil
}

func (m *MemoryStore) LoadTicket(ctx context.Context, id string) (*models.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tickets[id]
	if !ok {
		return nil, status.ErrTicketNotFound
	}
	out := t
	return &out, nil
}

func (m *MemoryStore) SaveTicket(ctx context.Context, ticket *models.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saveTicketLocked(ticket)
	return nil
}

func (m *MemoryStore) SaveTickets(ctx context.Context, tickets []*models.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range tickets {
		m.saveTicketLocked(t)
	}
	return nil
}

func (m *MemoryStore) saveTicketLocked(ticket *models.Ticket) {
	if _, exists := m.tickets[ticket.ID]; !exists {
		m.byQueue[ticket.QueueID] = append(m.byQueue[ticket.QueueID], ticket.ID)
	}
	m.tickets[ticket.ID] = *ticket
}

func (m *MemoryStore) ListInLineTickets(ctx context.Context, queueID string) ([]*models.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Ticket
	for _, id := range m.byQueue[queueID] {
		t, ok := m.tickets[id]
		if !ok || !t.Status.InLine() {
			continue
		}
		c := t
		out = append(out, &c)
	}
	return out, nil
}

func (m *MemoryStore) LoadStats(ctx context.Context, queueID, window string) (*models.EtaStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.stats[queueID+"#"+window]
	if !ok {
		return nil, ErrStatsNotFound
	}
	out := s
	return &out, nil
}

func (m *MemoryStore) SaveStats(ctx context.Context, stats *models.EtaStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats[stats.Key()] = *stats
	m.latest[stats.QueueID] = stats.TimeWindow
	return nil
}

func (m *MemoryStore) LatestStats(ctx context.Context, queueID string) (*models.EtaStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	window, ok := m.latest[queueID]
	if !ok {
		return nil, ErrStatsNotFound
	}
	s := m.stats[queueID+"#"+window]
	out := s
	return &out, nil
}
