package entity

import "time"

type EventType string

const (
	EventRequestCreated       EventType = "request.created"
	EventRequestStatusChanged EventType = "request.status_changed"
	EventDonorRequestCreated  EventType = "donor_request.created"
	EventDonorRequestStatus   EventType = "donor_request.status_changed"
	EventFanoutCompleted      EventType = "fanout.completed"
)

// DomainEvent is appended to the event log after a committed change.
type DomainEvent struct {
	Type        EventType              `json:"type"`
	AggregateID string                 `json:"aggregate_id"`
	ActorID     string                 `json:"actor_id,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}
