package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"smartqueue/config"
	"smartqueue/internal/status"
	"smartqueue/models"
	"smartqueue/monitoring"
	"smartqueue/storage"
	"smartqueue/utils"
)

// NotificationLogger records notification attempts for audit. Optional;
// a nil logger disables the audit trail, never delivery.
type NotificationLogger interface {
	SaveNotification(ctx context.Context, entry *models.NotificationLog) error
}

// QueueService is the façade the HTTP layer talks to. It owns per-queue
// serialization: every mutation of a queue's tickets, open slots, or
// statistics runs inside that queue's lock, so positions stay dense and
// operations on different queues proceed in parallel. A call that cannot
// take the lock within the configured timeout applies no effects at all.
type QueueService struct {
	store     storage.Store
	ledger    *TicketLedger
	estimator *RateEstimator
	predictor *EtaPredictor
	notifier  Notifier
	logs      NotificationLogger
	monitor   *monitoring.Monitor
	cfg       *config.Config

	locks *utils.QueueLock
	now   func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewQueueService(
	store storage.Store,
	ledger *TicketLedger,
	estimator *RateEstimator,
	predictor *EtaPredictor,
	notifier Notifier,
	logs NotificationLogger,
	monitor *monitoring.Monitor,
	cfg *config.Config,
) *QueueService {
	return &QueueService{
		store:     store,
		ledger:    ledger,
		estimator: estimator,
		predictor: predictor,
		notifier:  notifier,
		logs:      logs,
		monitor:   monitor,
		cfg:       cfg,
		locks:     utils.NewQueueLock(),
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

func (s *QueueService) lockQueue(ctx context.Context, queueID string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTimeout)
	defer cancel()

	release, err := s.locks.Acquire(lockCtx, queueID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", status.ErrLockTimeout, queueID)
	}
	return release, nil
}

// JoinQueue adds a holder to the back of the queue and returns the new
// ticket's ID and position. Notification of the join is fire-and-forget.
func (s *QueueService) JoinQueue(ctx context.Context, queueID, holderID string) (*models.JoinQueueResponse, error) {
	release, err := s.lockQueue(ctx, queueID)
	if err != nil {
		s.monitor.RecordOperation("join", queueID, "lock_timeout")
		return nil, err
	}
	ticket, err := s.ledger.Join(ctx, queueID, holderID)
	release()

	if err != nil {
		s.monitor.RecordOperation("join", queueID, "error")
		return nil, err
	}

	s.monitor.RecordOperation("join", queueID, "ok")
	s.monitor.SetQueueLength(queueID, ticket.Position)
	s.notifyAsync(ticket.ID, models.ChannelPush,
		fmt.Sprintf("You joined %s at position %d", queueID, ticket.Position))

	return &models.JoinQueueResponse{
		TicketID: ticket.ID,
		QueueID:  queueID,
		Position: ticket.Position,
	}, nil
}

// GetStatus returns the ticket's position, status, and wait estimate. A
// degraded (fallback) ETA is fine; a missing ticket is an error. Tickets
// that already left the line report their last known position and no wait.
func (s *QueueService) GetStatus(ctx context.Context, queueID, ticketID string) (*models.QueueStatusResponse, error) {
	release, err := s.lockQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	defer release()

	ticket, err := s.store.LoadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.QueueID != queueID {
		return nil, fmt.Errorf("%w: ticket %s does not belong to queue %s", status.ErrTicketNotFound, ticketID, queueID)
	}

	resp := &models.QueueStatusResponse{
		TicketID: ticketID,
		QueueID:  queueID,
		Status:   ticket.Status,
		Position: ticket.Position,
	}
	if !ticket.Status.InLine() {
		return resp, nil
	}

	position, err := s.ledger.PositionOf(ctx, queueID, ticketID)
	if err != nil {
		return nil, err
	}
	resp.Position = position

	eta := s.predictor.Predict(ctx, queueID, position)
	resp.EstimatedWaitMinutes = eta
	s.monitor.ObserveEta(queueID, eta)

	// Best-effort bookkeeping; a failed write here never degrades the read.
	ticket.Position = position
	ticket.LastEtaMinutes = eta
	if saveErr := s.store.SaveTicket(ctx, ticket); saveErr != nil {
		slog.Warn("failed to persist last computed ETA", "ticket_id", ticketID, "error", saveErr)
	}

	return resp, nil
}

// ProcessNext serves up to count tickets from the front of the queue,
// frees their slots, and feeds the measured throughput to the rate
// estimator. Serving fewer tickets than asked is not an error.
func (s *QueueService) ProcessNext(ctx context.Context, queueID string, count int) (*models.ProcessNextResponse, error) {
	release, err := s.lockQueue(ctx, queueID)
	if err != nil {
		s.monitor.RecordOperation("process_next", queueID, "lock_timeout")
		return nil, err
	}

	served, err := s.ledger.ServeNext(ctx, queueID, count)
	if err != nil {
		release()
		s.monitor.RecordOperation("process_next", queueID, "error")
		return nil, err
	}

	queue, err := s.store.LoadQueue(ctx, queueID)
	if err != nil {
		release()
		return nil, err
	}
	queue.OpenSlots += len(served)
	if queue.OpenSlots > queue.MaxCapacity {
		queue.OpenSlots = queue.MaxCapacity
	}
	queue.UpdatedAt = s.now()
	if err := s.store.SaveQueue(ctx, queue); err != nil {
		release()
		return nil, err
	}
	release()

	if len(served) > 0 {
		window := int(s.cfg.MeasurementWindow.Seconds())
		if err := s.recordStats(ctx, queueID, len(served), window); err != nil {
			// The serve already happened; a failed stats update only
			// degrades future ETA accuracy.
			slog.Warn("failed to record service stats", "queue_id", queueID, "error", err)
		}
	}

	for _, t := range served {
		s.notifyAsync(t.ID, models.ChannelPush, "It's your turn, please proceed to the counter")
	}

	s.monitor.RecordOperation("process_next", queueID, "ok")
	s.monitor.AddServed(queueID, len(served))

	return &models.ProcessNextResponse{
		QueueID:      queueID,
		ServedCount:  len(served),
		NewOpenSlots: queue.OpenSlots,
	}, nil
}

// UpdateServedStats ingests an externally measured service batch. Unlike
// the ETA read path, a failed stats write here is surfaced: the caller
// asked for a durable update.
func (s *QueueService) UpdateServedStats(ctx context.Context, queueID string, servedCount, windowSeconds int) error {
	if err := s.recordStats(ctx, queueID, servedCount, windowSeconds); err != nil {
		s.monitor.RecordOperation("update_stats", queueID, "error")
		return err
	}
	s.monitor.RecordOperation("update_stats", queueID, "ok")
	return nil
}

// recordStats serializes stats mutations under the same per-queue lock as
// ticket mutations.
func (s *QueueService) recordStats(ctx context.Context, queueID string, servedCount, windowSeconds int) error {
	release, err := s.lockQueue(ctx, queueID)
	if err != nil {
		return err
	}
	defer release()
	return s.estimator.RecordService(ctx, queueID, servedCount, windowSeconds)
}

// CancelTicket voluntarily removes an in-line ticket from its queue.
func (s *QueueService) CancelTicket(ctx context.Context, queueID, ticketID string) error {
	return s.leaveLine(ctx, queueID, ticketID, s.ledger.Cancel)
}

// ExpireTicket removes an in-line ticket whose holder never showed up.
func (s *QueueService) ExpireTicket(ctx context.Context, queueID, ticketID string) error {
	return s.leaveLine(ctx, queueID, ticketID, s.ledger.Expire)
}

func (s *QueueService) leaveLine(ctx context.Context, queueID, ticketID string, transition func(context.Context, string) error) error {
	release, err := s.lockQueue(ctx, queueID)
	if err != nil {
		return err
	}
	defer release()

	ticket, err := s.store.LoadTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.QueueID != queueID {
		return fmt.Errorf("%w: ticket %s does not belong to queue %s", status.ErrTicketNotFound, ticketID, queueID)
	}
	return transition(ctx, ticketID)
}

// Estimate computes a standalone ETA for a position without a ticket.
func (s *QueueService) Estimate(ctx context.Context, queueID, ticketID string, position int) *models.EtaResponse {
	resp := s.predictor.Estimate(ctx, queueID, ticketID, position)
	s.monitor.ObserveEta(queueID, resp.EstimatedWaitMinutes)
	return resp
}

// Stats returns the freshest statistics row for the queue.
func (s *QueueService) Stats(ctx context.Context, queueID string) (*models.EtaStats, error) {
	return s.estimator.LatestStats(ctx, queueID)
}

// CreateQueue registers a queue explicitly.
func (s *QueueService) CreateQueue(ctx context.Context, req *models.CreateQueueRequest) (*models.Queue, error) {
	if req.ID == "" || req.MaxCapacity <= 0 {
		return nil, fmt.Errorf("%w: id and a positive max_capacity are required", status.ErrValidation)
	}
	if req.OpenSlots < 0 || req.OpenSlots > req.MaxCapacity {
		return nil, fmt.Errorf("%w: open_slots must be within [0, max_capacity]", status.ErrValidation)
	}

	release, err := s.lockQueue(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := s.store.LoadQueue(ctx, req.ID); err == nil {
		return nil, fmt.Errorf("%w: %s", status.ErrQueueExists, req.ID)
	} else if !errors.Is(err, status.ErrQueueNotFound) {
		return nil, err
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	name := req.Name
	if name == "" {
		name = req.ID
	}

	now := s.now()
	queue := &models.Queue{
		ID:          req.ID,
		Name:        name,
		Active:      active,
		MaxCapacity: req.MaxCapacity,
		OpenSlots:   req.OpenSlots,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.SaveQueue(ctx, queue); err != nil {
		return nil, err
	}
	return queue, nil
}

func (s *QueueService) GetQueue(ctx context.Context, queueID string) (*models.Queue, error) {
	return s.store.LoadQueue(ctx, queueID)
}

func (s *QueueService) ListQueues(ctx context.Context) ([]*models.Queue, error) {
	return s.store.ListQueues(ctx)
}

func (s *QueueService) UpdateQueue(ctx context.Context, queueID string, req *models.UpdateQueueRequest) (*models.Queue, error) {
	release, err := s.lockQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	defer release()

	queue, err := s.store.LoadQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		queue.Name = *req.Name
	}
	if req.MaxCapacity != nil {
		if *req.MaxCapacity <= 0 {
			return nil, fmt.Errorf("%w: max_capacity must be positive", status.ErrValidation)
		}
		queue.MaxCapacity = *req.MaxCapacity
	}
	if req.OpenSlots != nil {
		if *req.OpenSlots < 0 || *req.OpenSlots > queue.MaxCapacity {
			return nil, fmt.Errorf("%w: open_slots must be within [0, max_capacity]", status.ErrValidation)
		}
		queue.OpenSlots = *req.OpenSlots
	}
	if req.Active != nil {
		queue.Active = *req.Active
	}
	queue.UpdatedAt = s.now()

	if err := s.store.SaveQueue(ctx, queue); err != nil {
		return nil, err
	}
	return queue, nil
}

// DeleteQueue removes a queue record. Refused while any ticket is still in
// line; served/cancelled history does not block deletion.
func (s *QueueService) DeleteQueue(ctx context.Context, queueID string) error {
	release, err := s.lockQueue(ctx, queueID)
	if err != nil {
		return err
	}
	defer release()

	if _, err := s.store.LoadQueue(ctx, queueID); err != nil {
		return err
	}
	inLine, err := s.store.ListInLineTickets(ctx, queueID)
	if err != nil {
		return err
	}
	if len(inLine) > 0 {
		return fmt.Errorf("%w: %s has %d waiting tickets", status.ErrQueueNotEmpty, queueID, len(inLine))
	}
	return s.store.DeleteQueue(ctx, queueID)
}

// StartSweeper launches the background position sweep: it periodically
// publishes position updates for every in-line ticket and flips tickets to
// NOTIFIED once their predicted wait drops under the notify threshold.
func (s *QueueService) StartSweeper() {
	s.wg.Add(1)
	go s.positionSweeper()
}

func (s *QueueService) positionSweeper() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PositionSweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnce(context.Background())
		case <-s.stopChan:
			return
		}
	}
}

func (s *QueueService) sweepOnce(ctx context.Context) {
	queues, err := s.store.ListQueues(ctx)
	if err != nil {
		slog.Warn("position sweep: failed to list queues", "error", err)
		return
	}
	for _, q := range queues {
		s.sweepQueue(ctx, q.ID)
	}
}

func (s *QueueService) sweepQueue(ctx context.Context, queueID string) {
	release, err := s.lockQueue(ctx, queueID)
	if err != nil {
		// A busy queue just waits for the next sweep.
		return
	}
	defer release()

	inLine, err := s.ledger.listSorted(ctx, queueID)
	if err != nil {
		slog.Warn("position sweep: failed to list tickets", "queue_id", queueID, "error", err)
		return
	}
	s.monitor.SetQueueLength(queueID, len(inLine))

	var changed []*models.Ticket
	for i, t := range inLine {
		position := i + 1
		eta := s.predictor.Predict(ctx, queueID, position)

		s.notifyAsync(t.ID, models.ChannelPush,
			fmt.Sprintf("Position update: you are number %d, about %d min to go", position, eta))

		if eta <= s.cfg.EtaNotifyThreshold && t.Status == models.StatusWaiting {
			now := s.now()
			t.Status = models.StatusNotified
			t.LastNotifiedAt = &now
			t.NotificationCount++
			t.LastEtaMinutes = eta
			changed = append(changed, t)
		}
	}
	if len(changed) > 0 {
		if err := s.store.SaveTickets(ctx, changed); err != nil {
			slog.Warn("position sweep: failed to persist notified tickets", "queue_id", queueID, "error", err)
		}
	}
}

func (s *QueueService) notifyAsync(ticketID string, channel models.NotificationChannel, message string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
		defer cancel()

		outcome := "SENT"
		if err := s.notifier.Notify(ctx, ticketID, channel, message); err != nil {
			outcome = "FAILED"
			slog.Warn("notification failed", "ticket_id", ticketID, "channel", channel, "error", err)
		}
		s.monitor.RecordNotification(string(channel), outcome)

		if s.logs == nil {
			return
		}
		entry := &models.NotificationLog{
			ID:        utils.NewNotificationID(),
			TicketID:  ticketID,
			Channel:   channel,
			Message:   message,
			Status:    outcome,
			CreatedAt: time.Now(),
		}
		if err := s.logs.SaveNotification(ctx, entry); err != nil {
			slog.Warn("failed to write notification log", "ticket_id", ticketID, "error", err)
		}
	}()
}

// Stop halts the sweeper and waits for in-flight notifications.
func (s *QueueService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}
