package models

import (
	"time"
)

type Queue struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Active         bool      `json:"active"`
	MaxCapacity    int       `json:"max_capacity"`
	OpenSlots      int       `json:"open_slots"`
	ServiceRateEma float64   `json:"service_rate_ema"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CreateQueueRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MaxCapacity int    `json:"max_capacity"`
	OpenSlots   int    `json:"open_slots"`
	Active      *bool  `json:"active"`
}

type UpdateQueueRequest struct {
	Name        *string `json:"name"`
	MaxCapacity *int    `json:"max_capacity"`
	OpenSlots   *int    `json:"open_slots"`
	Active      *bool   `json:"active"`
}
