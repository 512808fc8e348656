package models

import (
	"fmt"
	"time"
)

// EtaStats is one statistics row per (queue, hourly window). The row for
// the current window is updated in place; closed windows are immutable
// history and get archived.
type EtaStats struct {
	QueueID        string    `json:"queue_id"`
	TimeWindow     string    `json:"time_window"`
	WindowStart    time.Time `json:"window_start"`
	ServedCount    int       `json:"served_count"`
	EmaServiceRate float64   `json:"ema_service_rate"`
	P50WaitMinutes int       `json:"p50_wait_minutes"`
	P90WaitMinutes int       `json:"p90_wait_minutes"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (s *EtaStats) Key() string {
	return fmt.Sprintf("%s#%s", s.QueueID, s.TimeWindow)
}

type UpdateStatsRequest struct {
	QueueID   string `json:"queue_id"`
	Count     int    `json:"count"`
	WindowSec int    `json:"window_sec"`
}

type EtaResponse struct {
	QueueID              string    `json:"queue_id"`
	TicketID             string    `json:"ticket_id,omitempty"`
	EstimatedWaitMinutes int       `json:"estimated_wait_minutes"`
	P50WaitMinutes       int       `json:"p50_wait_minutes"`
	P90WaitMinutes       int       `json:"p90_wait_minutes"`
	ServiceRate          float64   `json:"service_rate"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "EMAIL"
	ChannelSMS   NotificationChannel = "SMS"
	ChannelPush  NotificationChannel = "PUSH"
)

// NotificationLog records a best-effort notification attempt. Delivery is
// fire-and-forget; the log is for audit, not retry.
type NotificationLog struct {
	ID        string              `json:"id"`
	TicketID  string              `json:"ticket_id"`
	Channel   NotificationChannel `json:"channel"`
	Message   string              `json:"message"`
	Status    string              `json:"status"` // PENDING, SENT, FAILED
	CreatedAt time.Time           `json:"created_at"`
}
