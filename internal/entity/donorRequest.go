package entity

import "time"

// DonorRequest is a direct request from one profile to a specific donor.
type DonorRequest struct {
	ID        string        `json:"id"`
	FromID    string        `json:"from"`
	ToID      string        `json:"to"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// StatusChange is a conditional status write. It only applies while the
// stored status still equals From.
type StatusChange struct {
	ID        string
	From      RequestStatus
	To        RequestStatus
	DonorID   string
	DonorName string
	At        time.Time

	// CreditProfileID gets its donation count incremented in the same write.
	CreditProfileID string
	// Notification is stored in the same write when set.
	Notification *Notification
}
