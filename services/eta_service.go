package services

import (
	"context"
	"log/slog"
	"math"
	"time"

	"smartqueue/config"
	"smartqueue/models"
	"smartqueue/utils"
)

const (
	peakMultiplier    = 0.7
	lunchMultiplier   = 0.5
	weekendMultiplier = 0.8
	eveningMultiplier = 1.2

	longQueueThreshold = 10
	longQueueBuffer    = 1.1
	reliabilityBuffer  = 1.05

	fallbackMinutesPerPosition = 5
	fallbackMinutes            = 10
)

// EtaPredictor converts (position, service rate, time of day) into a wait
// estimate in whole minutes. Prediction never fails: when the statistics
// lookup is unavailable (or its breaker is open) the predictor degrades to
// a fixed per-position heuristic instead of propagating the error.
type EtaPredictor struct {
	estimator *RateEstimator
	breaker   *utils.CircuitBreaker
	cfg       *config.Config
	now       func() time.Time
}

func NewEtaPredictor(estimator *RateEstimator, cfg *config.Config) *EtaPredictor {
	return &EtaPredictor{
		estimator: estimator,
		breaker:   utils.NewCircuitBreaker("eta-stats"),
		cfg:       cfg,
		now:       time.Now,
	}
}

// Predict returns the estimated wait in minutes for the given position,
// minimum 1.
func (p *EtaPredictor) Predict(ctx context.Context, queueID string, position int) int {
	return p.predictAt(ctx, queueID, position, p.now())
}

func (p *EtaPredictor) predictAt(ctx context.Context, queueID string, position int, now time.Time) int {
	baseRate, err := p.lookupRate(ctx, queueID)
	if err != nil {
		slog.Warn("stats lookup failed, using fallback ETA", "queue_id", queueID, "error", err)
		return p.fallback(position)
	}

	smartRate := p.smartRate(baseRate, now)
	eta := float64(position) / smartRate

	if position > longQueueThreshold {
		eta *= longQueueBuffer
	}
	eta *= DayOfWeekFactor(now)
	eta *= reliabilityBuffer

	minutes := int(math.Ceil(eta))
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// Estimate is the full prediction payload: the minute estimate plus the
// percentile context and the effective service rate. Like Predict it always
// returns an answer.
func (p *EtaPredictor) Estimate(ctx context.Context, queueID, ticketID string, position int) *models.EtaResponse {
	now := p.now()

	resp := &models.EtaResponse{
		QueueID:   queueID,
		TicketID:  ticketID,
		UpdatedAt: now,
	}

	baseRate, err := p.lookupRate(ctx, queueID)
	if err != nil {
		resp.EstimatedWaitMinutes = p.fallback(position)
		resp.P50WaitMinutes = defaultP50Minutes
		resp.P90WaitMinutes = defaultP90Minutes
		resp.ServiceRate = p.cfg.DefaultServiceRate
		return resp
	}

	resp.EstimatedWaitMinutes = p.predictAt(ctx, queueID, position, now)
	resp.ServiceRate = p.smartRate(baseRate, now)

	p50, p90, err := p.estimator.CurrentPercentiles(ctx, queueID)
	if err != nil {
		p50, p90 = defaultP50Minutes, defaultP90Minutes
	}
	resp.P50WaitMinutes = p50
	resp.P90WaitMinutes = p90
	return resp
}

// smartRate scales the measured rate by the time-of-day categories.
// Overlapping categories compose multiplicatively.
func (p *EtaPredictor) smartRate(baseRate float64, now time.Time) float64 {
	multiplier := 1.0
	if IsPeakHour(now) {
		multiplier *= peakMultiplier
	}
	if IsLunchHour(now) {
		multiplier *= lunchMultiplier
	}
	if IsWeekend(now) {
		multiplier *= weekendMultiplier
	}
	if IsEveningRush(now) {
		multiplier *= eveningMultiplier
	}

	rate := baseRate * multiplier
	if rate < p.cfg.MinServiceRate {
		rate = p.cfg.MinServiceRate
	}
	return rate
}

func (p *EtaPredictor) lookupRate(ctx context.Context, queueID string) (float64, error) {
	result, err := p.breaker.Execute(ctx, func() (any, error) {
		return p.estimator.CurrentRate(ctx, queueID)
	})
	if err != nil {
		return 0, err
	}
	return result.(float64), nil
}

func (p *EtaPredictor) fallback(position int) int {
	if position <= 0 {
		return fallbackMinutes
	}
	return position * fallbackMinutesPerPosition
}

// SetNow overrides the clock. Tests only.
func (p *EtaPredictor) SetNow(now func() time.Time) {
	p.now = now
}
