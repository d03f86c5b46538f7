package entity

import (
	"strings"
	"time"
)

type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusAccepted  RequestStatus = "accepted"
	StatusDeclined  RequestStatus = "declined"
	StatusCompleted RequestStatus = "completed"
)

type Urgency string

const (
	UrgencyLow    Urgency = "Low"
	UrgencyMedium Urgency = "Medium"
	UrgencyHigh   Urgency = "High"
)

type BloodRequest struct {
	ID            string        `json:"id"`
	RequesterID   string        `json:"requester_id,omitempty"`
	RequesterName string        `json:"name"`
	BloodType     string        `json:"blood"`
	Units         int           `json:"units"`
	Location      string        `json:"location"`
	Urgency       Urgency       `json:"urgency"`
	Contact       string        `json:"contact"`
	Notes         string        `json:"notes,omitempty"`
	NeededBy      string        `json:"date,omitempty"`
	Hospital      string        `json:"hospital,omitempty"`
	PatientID     string        `json:"patient_id,omitempty"`
	Status        RequestStatus `json:"status"`
	DonorID       string        `json:"donor_id,omitempty"`
	DonorName     string        `json:"donor,omitempty"`
	Suspicious    bool          `json:"suspicious"`
	FlagReasons   []string      `json:"flag_reasons,omitempty"`
	Notified      bool          `json:"notified"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// MissingSubmissionFields lists the blank fields a submitter is expected to fill.
func (r *BloodRequest) MissingSubmissionFields() []string {
	var missing []string
	if strings.TrimSpace(r.RequesterName) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(r.BloodType) == "" {
		missing = append(missing, "blood")
	}
	if strings.TrimSpace(r.Location) == "" {
		missing = append(missing, "location")
	}
	if strings.TrimSpace(r.Contact) == "" {
		missing = append(missing, "contact")
	}
	return missing
}
