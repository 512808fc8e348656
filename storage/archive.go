package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	_ "modernc.org/sqlite"

	"smartqueue/models"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS eta_stats_history (
	queue_id         TEXT NOT NULL,
	time_window      TEXT NOT NULL,
	window_start     TIMESTAMP NOT NULL,
	served_count     INTEGER NOT NULL,
	ema_service_rate REAL NOT NULL,
	p50_wait_minutes INTEGER NOT NULL,
	p90_wait_minutes INTEGER NOT NULL,
	updated_at       TIMESTAMP NOT NULL,
	PRIMARY KEY (queue_id, time_window)
);
CREATE TABLE IF NOT EXISTS notification_log (
	id         TEXT PRIMARY KEY,
	ticket_id  TEXT NOT NULL,
	channel    TEXT NOT NULL,
	message    TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notification_ticket ON notification_log (ticket_id);
`

// Archive is the immutable-history side of the stats model: once an hourly
// window closes it is written here and never touched again. Also keeps the
// notification audit log.
type Archive struct {
	db *dbx.DB
}

func OpenArchive(path string) (*Archive, error) {
	db, err := dbx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open stats archive: %w", err)
	}
	if _, err := db.NewQuery(archiveSchema).Execute(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init stats archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

type statsRow struct {
	QueueID        string    `db:"queue_id"`
	TimeWindow     string    `db:"time_window"`
	WindowStart    time.Time `db:"window_start"`
	ServedCount    int       `db:"served_count"`
	EmaServiceRate float64   `db:"ema_service_rate"`
	P50WaitMinutes int       `db:"p50_wait_minutes"`
	P90WaitMinutes int       `db:"p90_wait_minutes"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// SaveWindow stores a closed stats window. Replaces on conflict so a retry
// after a partial failure stays idempotent.
func (a *Archive) SaveWindow(ctx context.Context, stats *models.EtaStats) error {
	_, err := a.db.NewQuery(`
		INSERT OR REPLACE INTO eta_stats_history
			(queue_id, time_window, window_start, served_count, ema_service_rate,
			 p50_wait_minutes, p90_wait_minutes, updated_at)
		VALUES
			({:queue_id}, {:time_window}, {:window_start}, {:served_count}, {:ema_service_rate},
			 {:p50_wait_minutes}, {:p90_wait_minutes}, {:updated_at})`).
		Bind(dbx.Params{
			"queue_id":         stats.QueueID,
			"time_window":      stats.TimeWindow,
			"window_start":     stats.WindowStart,
			"served_count":     stats.ServedCount,
			"ema_service_rate": stats.EmaServiceRate,
			"p50_wait_minutes": stats.P50WaitMinutes,
			"p90_wait_minutes": stats.P90WaitMinutes,
			"updated_at":       stats.UpdatedAt,
		}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return fmt.Errorf("archive stats window %s: %w", stats.Key(), err)
	}
	return nil
}

// WindowHistory returns the newest archived windows for a queue.
func (a *Archive) WindowHistory(ctx context.Context, queueID string, limit int) ([]*models.EtaStats, error) {
	var rows []statsRow
	err := a.db.Select().
		From("eta_stats_history").
		Where(dbx.HashExp{"queue_id": queueID}).
		OrderBy("window_start DESC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("load stats history for %s: %w", queueID, err)
	}

	out := make([]*models.EtaStats, len(rows))
	for i, r := range rows {
		out[i] = &models.EtaStats{
			QueueID:        r.QueueID,
			TimeWindow:     r.TimeWindow,
			WindowStart:    r.WindowStart,
			ServedCount:    r.ServedCount,
			EmaServiceRate: r.EmaServiceRate,
			P50WaitMinutes: r.P50WaitMinutes,
			P90WaitMinutes: r.P90WaitMinutes,
			UpdatedAt:      r.UpdatedAt,
		}
	}
	return out, nil
}

// SaveNotification appends to the notification audit log.
func (a *Archive) SaveNotification(ctx context.Context, entry *models.NotificationLog) error {
	_, err := a.db.Insert("notification_log", dbx.Params{
		"id":         entry.ID,
		"ticket_id":  entry.TicketID,
		"channel":    string(entry.Channel),
		"message":    entry.Message,
		"status":     entry.Status,
		"created_at": entry.CreatedAt,
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("log notification %s: %w", entry.ID, err)
	}
	return nil
}
