package entity

import (
	"time"
)

type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Read        bool      `json:"read"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id,omitempty"`
	Location    string    `json:"location,omitempty"`
	Urgency     Urgency   `json:"urgency,omitempty"`
	Units       int       `json:"units,omitempty"`
}

const (
	TitleNewBloodRequest = "New Blood Request"
	TitleStatusUpdated   = "Request Status Updated"
)
