package ws

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventJobSnapshot EventType = "job.snapshot"
	EventJobState    EventType = "job.state"
	EventJobProgress EventType = "job.progress"
	EventError       EventType = "error"
)

type Event struct {
	JobID     uuid.UUID `json:"job_id"`
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	// final closes every client of the job after delivery.
	final bool
}
