package status

import "errors"

var (
	ErrQueueNotFound     = errors.New("queue: queue not found")
	ErrTicketNotFound    = errors.New("ticket: ticket not found")
	ErrQueueInactive     = errors.New("queue: queue is inactive")
	ErrQueueFull         = errors.New("queue: no open slots")
	ErrInvalidTransition = errors.New("ticket: invalid status transition")
	ErrQueueNotEmpty     = errors.New("queue: queue still has tickets in line")
	ErrQueueExists       = errors.New("queue: queue already exists")
	ErrValidation        = errors.New("request: validation failed")
	ErrUpstream          = errors.New("upstream: store unavailable")
	ErrLockTimeout       = errors.New("queue: timed out waiting for queue lock")
)
