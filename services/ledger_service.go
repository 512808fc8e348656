package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"smartqueue/internal/status"
	"smartqueue/models"
	"smartqueue/storage"
	"smartqueue/utils"
)

// TicketLedger owns the ordered set of in-line tickets per queue. Positions
// are never cached incrementally: every mutation re-derives them from a full
// sort on (JoinedAt, ID), so the in-line set always reads back as a dense
// 1..N sequence even if wall clocks were adjusted between joins.
//
// The ledger assumes the caller already holds the queue's serialization
// lock (see QueueService).
type TicketLedger struct {
	store storage.Store
	now   func() time.Time
}

func NewTicketLedger(store storage.Store) *TicketLedger {
	return &TicketLedger{
		store: store,
		now:   time.Now,
	}
}

// Join creates a WAITING ticket at the back of the queue and returns it
// with its assigned position.
func (l *TicketLedger) Join(ctx context.Context, queueID, holderID string) (*models.Ticket, error) {
	if holderID == "" {
		return nil, fmt.Errorf("%w: holder identity is required", status.ErrValidation)
	}

	queue, err := l.store.LoadQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if !queue.Active {
		return nil, fmt.Errorf("%w: %s", status.ErrQueueInactive, queueID)
	}
	if queue.OpenSlots <= 0 {
		return nil, fmt.Errorf("%w: %s", status.ErrQueueFull, queueID)
	}

	ticket := &models.Ticket{
		ID:       utils.NewTicketID(),
		QueueID:  queueID,
		HolderID: holderID,
		Status:   models.StatusWaiting,
		JoinedAt: l.now(),
	}
	if err := l.store.SaveTicket(ctx, ticket); err != nil {
		return nil, err
	}

	inLine, err := l.resortPositions(ctx, queueID)
	if err != nil {
		return nil, err
	}
	for _, t := range inLine {
		if t.ID == ticket.ID {
			return t, nil
		}
	}
	// A concurrent writer would be the only way to lose the ticket between
	// the save and the re-sort, and the queue lock excludes that.
	return nil, status.ErrTicketNotFound
}

// PositionOf returns the ticket's current 1-based rank among in-line
// tickets, or its last known position once it has left the line.
func (l *TicketLedger) PositionOf(ctx context.Context, queueID, ticketID string) (int, error) {
	ticket, err := l.store.LoadTicket(ctx, ticketID)
	if err != nil {
		return 0, err
	}
	if ticket.QueueID != queueID {
		return 0, fmt.Errorf("%w: ticket %s does not belong to queue %s", status.ErrTicketNotFound, ticketID, queueID)
	}
	if !ticket.Status.InLine() {
		return ticket.Position, nil
	}

	inLine, err := l.listSorted(ctx, queueID)
	if err != nil {
		return 0, err
	}
	for i, t := range inLine {
		if t.ID == ticketID {
			return i + 1, nil
		}
	}
	return 0, status.ErrTicketNotFound
}

// ServeNext transitions up to count earliest-joined in-line tickets to
// SERVED and returns them in join order. Serves fewer than count when the
// queue holds fewer; serving an empty queue is not an error.
func (l *TicketLedger) ServeNext(ctx context.Context, queueID string, count int) ([]*models.Ticket, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", status.ErrValidation)
	}
	if _, err := l.store.LoadQueue(ctx, queueID); err != nil {
		return nil, err
	}

	inLine, err := l.listSorted(ctx, queueID)
	if err != nil {
		return nil, err
	}

	n := count
	if n > len(inLine) {
		n = len(inLine)
	}
	if n == 0 {
		return nil, nil
	}

	batch := make([]*models.Ticket, 0, len(inLine))
	served := inLine[:n]
	for _, t := range served {
		t.Status = models.StatusServed
		batch = append(batch, t)
	}
	// Remaining tickets slide forward; their positions are part of the
	// same atomic write.
	for i, t := range inLine[n:] {
		if t.Position != i+1 {
			t.Position = i + 1
			batch = append(batch, t)
		}
	}
	if err := l.store.SaveTickets(ctx, batch); err != nil {
		return nil, err
	}
	return served, nil
}

// Cancel takes an in-line ticket out of the queue.
func (l *TicketLedger) Cancel(ctx context.Context, ticketID string) error {
	return l.leaveLine(ctx, ticketID, models.StatusCancelled)
}

// Expire marks an in-line ticket as expired (holder never showed).
func (l *TicketLedger) Expire(ctx context.Context, ticketID string) error {
	return l.leaveLine(ctx, ticketID, models.StatusExpired)
}

func (l *TicketLedger) leaveLine(ctx context.Context, ticketID string, to models.TicketStatus) error {
	ticket, err := l.store.LoadTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if !ticket.Status.InLine() {
		return fmt.Errorf("%w: ticket %s is %s", status.ErrInvalidTransition, ticketID, ticket.Status)
	}

	ticket.Status = to
	if err := l.store.SaveTicket(ctx, ticket); err != nil {
		return err
	}
	_, err = l.resortPositions(ctx, ticket.QueueID)
	return err
}

// listSorted returns the queue's in-line tickets in serving order:
// join timestamp ascending, ticket ID as the deterministic tie-break.
func (l *TicketLedger) listSorted(ctx context.Context, queueID string) ([]*models.Ticket, error) {
	tickets, err := l.store.ListInLineTickets(ctx, queueID)
	if err != nil {
		return nil, err
	}
	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].JoinedAt.Equal(tickets[j].JoinedAt) {
			return tickets[i].ID < tickets[j].ID
		}
		return tickets[i].JoinedAt.Before(tickets[j].JoinedAt)
	})
	return tickets, nil
}

// resortPositions re-derives the dense 1..N positions and persists every
// ticket whose stored position drifted.
func (l *TicketLedger) resortPositions(ctx context.Context, queueID string) ([]*models.Ticket, error) {
	inLine, err := l.listSorted(ctx, queueID)
	if err != nil {
		return nil, err
	}

	var changed []*models.Ticket
	for i, t := range inLine {
		if t.Position != i+1 {
			t.Position = i + 1
			changed = append(changed, t)
		}
	}
	if len(changed) > 0 {
		if err := l.store.SaveTickets(ctx, changed); err != nil {
			return nil, err
		}
	}
	return inLine, nil
}

// SetNow overrides the clock. Tests only.
func (l *TicketLedger) SetNow(now func() time.Time) {
	l.now = now
}
