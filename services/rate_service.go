package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"smartqueue/config"
	"smartqueue/internal/status"
	"smartqueue/models"
	"smartqueue/storage"
)

// StatsArchiver receives closed hourly windows. Archiving is best effort:
// a failed archive write is logged and never fails the stats update.
type StatsArchiver interface {
	SaveWindow(ctx context.Context, stats *models.EtaStats) error
}

const (
	defaultP50Minutes = 5
	defaultP90Minutes = 10
)

// RateEstimator tracks the smoothed tickets-served-per-minute signal per
// queue. It is the sole owner of EtaStats rows: one row per (queue, hourly
// window), updated in place while the window is current.
type RateEstimator struct {
	store   storage.Store
	archive StatsArchiver
	cfg     *config.Config
	now     func() time.Time
}

func NewRateEstimator(store storage.Store, archive StatsArchiver, cfg *config.Config) *RateEstimator {
	return &RateEstimator{
		store:   store,
		archive: archive,
		cfg:     cfg,
		now:     time.Now,
	}
}

/// RecordService folds one service-completion batch into the queue's EMA:
// instantaneous rate = servedCount / (windowSeconds/60), blended with the
// prior value as alpha*rate + (1-alpha)*old. The first report in a window
// seeds the EMA directly unless CarryForwardEma is set, in which case the
// previous window's EMA is used as the seed for the blend.
func (e *RateEstimator) RecordService(ctx context.Context, queueID string, servedCount, windowSeconds int) error {
	if queueID == "" || servedCount < 0 || windowSeconds <= 0 {
		return fmt.Errorf("%w: servedCount must be >= 0 and windowSeconds > 0", status.ErrValidation)
	}

	instantRate := float64(servedCount) / (float64(windowSeconds) / 60.0)

	now := e.now()
	window := WindowKey(now)

	queue, err := e.ensureQueue(ctx, queueID, now)
	if err != nil {
		return err
	}

	stats, err := e.store.LoadStats(ctx, queueID, window)
	switch {
	case errors.Is(err, storage.ErrStatsNotFound):
		stats, err = e.openWindow(ctx, queueID, window, now, instantRate)
		if err != nil {
			return err
		}
		stats.ServedCount = servedCount
	case err != nil:
		return err
	default:
		stats.EmaServiceRate = e.cfg.EmaAlpha*instantRate + (1-e.cfg.EmaAlpha)*stats.EmaServiceRate
		stats.ServedCount += servedCount
	}

	if stats.EmaServiceRate < e.cfg.MinServiceRate {
		stats.EmaServiceRate = e.cfg.MinServiceRate
	}
	stats.UpdatedAt = now

	if err := e.store.SaveStats(ctx, stats); err != nil {
		return err
	}

	queue.ServiceRateEma = stats.EmaServiceRate
	queue.UpdatedAt = now
	return e.store.SaveQueue(ctx, queue)
}

// openWindow starts a fresh stats row, archiving whichever window was
// current before this one.
func (e *RateEstimator) openWindow(ctx context.Context, queueID, window string, now time.Time, instantRate float64) (*models.EtaStats, error) {
	ema := instantRate

	prev, err := e.store.LatestStats(ctx, queueID)
	if err == nil && prev.TimeWindow != window {
		if e.cfg.CarryForwardEma {
			ema = e.cfg.EmaAlpha*instantRate + (1-e.cfg.EmaAlpha)*prev.EmaServiceRate
		}
		if e.archive != nil {
			if archiveErr := e.archive.SaveWindow(ctx, prev); archiveErr != nil {
				slog.Warn("failed to archive closed stats window",
					"queue_id", queueID, "window", prev.TimeWindow, "error", archiveErr)
			}
		}
	} else if err != nil && !errors.Is(err, storage.ErrStatsNotFound) {
		return nil, err
	}

	return &models.EtaStats{
		QueueID:        queueID,
		TimeWindow:     window,
		WindowStart:    now.Truncate(time.Hour),
		EmaServiceRate: ema,
		P50WaitMinutes: defaultP50Minutes,
		P90WaitMinutes: defaultP90Minutes,
	}, nil
}

// ensureQueue creates the queue lazily on its first statistics update.
func (e *RateEstimator) ensureQueue(ctx context.Context, queueID string, now time.Time) (*models.Queue, error) {
	queue, err := e.store.LoadQueue(ctx, queueID)
	if err == nil {
		return queue, nil
	}
	if !errors.Is(err, status.ErrQueueNotFound) {
		return nil, err
	}

	queue = &models.Queue{
		ID:          queueID,
		Name:        queueID,
		Active:      true,
		MaxCapacity: e.cfg.DefaultMaxCapacity,
		OpenSlots:   e.cfg.DefaultMaxCapacity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.SaveQueue(ctx, queue); err != nil {
		return nil, err
	}
	return queue, nil
}

// CurrentRate returns the smoothed service rate for the queue right now:
// the current window's EMA, falling back to the most recent window, then
// to the configured default. Never below the configured floor.
func (e *RateEstimator) CurrentRate(ctx context.Context, queueID string) (float64, error) {
	stats, err := e.store.LoadStats(ctx, queueID, WindowKey(e.now()))
	if errors.Is(err, storage.ErrStatsNotFound) {
		stats, err = e.store.LatestStats(ctx, queueID)
		if errors.Is(err, storage.ErrStatsNotFound) {
			return e.floor(e.cfg.DefaultServiceRate), nil
		}
	}
	if err != nil {
		return 0, err
	}
	return e.floor(stats.EmaServiceRate), nil
}

// CurrentPercentiles returns the stored p50/p90 wait estimates in minutes,
// defaulting when the queue has no statistics.
func (e *RateEstimator) CurrentPercentiles(ctx context.Context, queueID string) (p50, p90 int, err error) {
	stats, err := e.store.LatestStats(ctx, queueID)
	if errors.Is(err, storage.ErrStatsNotFound) {
		return defaultP50Minutes, defaultP90Minutes, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return stats.P50WaitMinutes, stats.P90WaitMinutes, nil
}

// LatestStats returns the freshest stats row for the queue, synthesizing a
// defaults-only row when none exists.
func (e *RateEstimator) LatestStats(ctx context.Context, queueID string) (*models.EtaStats, error) {
	stats, err := e.store.LatestStats(ctx, queueID)
	if errors.Is(err, storage.ErrStatsNotFound) {
		now := e.now()
		return &models.EtaStats{
			QueueID:        queueID,
			TimeWindow:     WindowKey(now),
			WindowStart:    now.Truncate(time.Hour),
			EmaServiceRate: e.cfg.DefaultServiceRate,
			P50WaitMinutes: defaultP50Minutes,
			P90WaitMinutes: defaultP90Minutes,
			UpdatedAt:      now,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (e *RateEstimator) floor(rate float64) float64 {
	if rate < e.cfg.MinServiceRate {
		return e.cfg.MinServiceRate
	}
	return rate
}

// SetNow overrides the clock. Tests only.
func (e *RateEstimator) SetNow(now func() time.Time) {
	e.now = now
}
