package models

import (
	"time"
)

type TicketStatus string

const (
	StatusWaiting   TicketStatus = "WAITING"
	StatusNotified  TicketStatus = "NOTIFIED"
	StatusServed    TicketStatus = "SERVED"
	StatusCancelled TicketStatus = "CANCELLED"
	StatusExpired   TicketStatus = "EXPIRED"
)

// InLine reports whether a ticket still holds a place in its queue.
// NOTIFIED tickets have been pinged that their turn is near but are
// still waiting, so they keep their position.
func (s TicketStatus) InLine() bool {
	return s == StatusWaiting || s == StatusNotified
}

type Ticket struct {
	ID                string       `json:"id"`
	QueueID           string       `json:"queue_id"`
	HolderID          string       `json:"holder_id"`
	Status            TicketStatus `json:"status"`
	Position          int          `json:"position"`
	JoinedAt          time.Time    `json:"joined_at"`
	LastNotifiedAt    *time.Time   `json:"last_notified_at,omitempty"`
	NotificationCount int          `json:"notification_count"`
	LastEtaMinutes    int          `json:"last_eta_minutes"`
}

type JoinQueueRequest struct {
	HolderID string `json:"holder_id"`
}

type JoinQueueResponse struct {
	TicketID string `json:"ticket_id"`
	QueueID  string `json:"queue_id"`
	Position int    `json:"position"`
}

type QueueStatusResponse struct {
	TicketID             string       `json:"ticket_id"`
	QueueID              string       `json:"queue_id"`
	Position             int          `json:"position"`
	EstimatedWaitMinutes int          `json:"estimated_wait_minutes"`
	Status               TicketStatus `json:"status"`
}

type ProcessNextRequest struct {
	Count int `json:"count"`
}

type ProcessNextResponse struct {
	QueueID      string `json:"queue_id"`
	ServedCount  int    `json:"served_count"`
	NewOpenSlots int    `json:"new_open_slots"`
}
