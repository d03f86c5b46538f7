package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ds124wfegd/smartblood/internal/database"
	"github.com/ds124wfegd/smartblood/internal/entity"
	"github.com/ds124wfegd/smartblood/internal/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SubmitRequest is the body of a new blood request
type SubmitRequest struct {
	Name      string         `json:"name" validate:"max=200"`
	BloodType string         `json:"blood" validate:"omitempty,requestblood"`
	Units     json.Number    `json:"units"`
	Location  string         `json:"location" validate:"max=500"`
	Urgency   entity.Urgency `json:"urgency" validate:"omitempty,oneof=Low Medium High"`
	Contact   string         `json:"contact" validate:"max=200"`
	Notes     string         `json:"notes" validate:"max=2000"`
	NeededBy  string         `json:"date"`
	Hospital  string         `json:"hospital" validate:"max=200"`
	PatientID string         `json:"patient_id" validate:"max=100"`
}

// FlaggedRequest is one row of the admin review list
type FlaggedRequest struct {
	Request      *entity.BloodRequest `json:"request"`
	Reasons      []string             `json:"reasons"`
	Suspicious   bool                 `json:"suspicious"`
	AdminFlagged bool                 `json:"admin_flagged"`
}

// RequestStats feeds the dashboard charts
type RequestStats struct {
	Total        int                          `json:"total"`
	ByStatus     map[entity.RequestStatus]int `json:"by_status"`
	ByBloodGroup map[string]int               `json:"by_blood_group"`
	Suspicious   int                          `json:"suspicious"`
	Flagged      int                          `json:"flagged"`
}

type requestService struct {
	requests database.RequestRepository
	fraud    *FraudDetector
	events   EventPublisher
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewRequestService(requests database.RequestRepository, fraud *FraudDetector, events EventPublisher, m *metrics.Metrics, now func() time.Time) RequestService {
	return &requestService{
		requests: requests,
		fraud:    fraud,
		events:   events,
		metrics:  m,
		now:      now,
	}
}

func parseUnits(raw json.Number, required bool) (int, error) {
	if raw == "" {
		if required {
			return 0, entity.NewValidationError("units", "is required")
		}
		return 0, nil
	}
	n, err := raw.Int64()
	if err != nil {
		return 0, entity.NewValidationError("units", "must be a whole number")
	}
	if n <= 0 {
		return 0, entity.NewValidationError("units", "must be gt 0")
	}
	return int(n), nil
}

// Submit stores a request from a signed-in profile. Name and contact fall
// back to the caller's identity.
func (s *requestService) Submit(ctx context.Context, actor Actor, req *SubmitRequest) (*entity.BloodRequest, error) {
	if err := entity.Validate(req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.BloodType) == "" {
		return nil, entity.NewValidationError("blood", "is required")
	}
	if strings.TrimSpace(req.Location) == "" {
		return nil, entity.NewValidationError("location", "is required")
	}
	units, err := parseUnits(req.Units, true)
	if err != nil {
		return nil, err
	}

	request := s.build(req, units)
	request.RequesterID = actor.ProfileID
	if strings.TrimSpace(request.RequesterName) == "" {
		request.RequesterName = actor.Name
	}
	if strings.TrimSpace(request.Contact) == "" {
		request.Contact = actor.Contact
	}

	return s.store(ctx, request, actor.ProfileID)
}

// SubmitAdmin accepts partial records; missing fields only flag them.
func (s *requestService) SubmitAdmin(ctx context.Context, req *SubmitRequest) (*entity.BloodRequest, error) {
	if err := entity.Validate(req); err != nil {
		return nil, err
	}
	units, err := parseUnits(req.Units, false)
	if err != nil {
		return nil, err
	}
	return s.store(ctx, s.build(req, units), "")
}

func (s *requestService) build(req *SubmitRequest, units int) *entity.BloodRequest {
	now := s.now()
	urgency := req.Urgency
	if urgency == "" {
		urgency = entity.UrgencyMedium
	}
	return &entity.BloodRequest{
		ID:            uuid.NewString(),
		RequesterName: strings.TrimSpace(req.Name),
		BloodType:     strings.TrimSpace(req.BloodType),
		Units:         units,
		Location:      strings.TrimSpace(req.Location),
		Urgency:       urgency,
		Contact:       strings.TrimSpace(req.Contact),
		Notes:         req.Notes,
		NeededBy:      req.NeededBy,
		Hospital:      strings.TrimSpace(req.Hospital),
		PatientID:     strings.TrimSpace(req.PatientID),
		Status:        entity.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *requestService) store(ctx context.Context, request *entity.BloodRequest, actorID string) (*entity.BloodRequest, error) {
	verdict := s.fraud.Classify(ctx, request)
	request.Suspicious = verdict.Suspicious
	request.FlagReasons = verdict.Reasons

	if err := s.requests.Create(ctx, request); err != nil {
		return nil, err
	}
	s.metrics.IncrementSubmitted(request.Suspicious)

	entry := logrus.WithFields(logrus.Fields{
		"request_id": request.ID,
		"blood":      request.BloodType,
		"units":      request.Units,
	})
	if request.Suspicious {
		entry.WithField("reasons", request.FlagReasons).Warn("Blood request flagged as suspicious")
	} else {
		entry.Info("Blood request submitted")
	}

	emit(ctx, s.events, entity.DomainEvent{
		Type:        entity.EventRequestCreated,
		AggregateID: request.ID,
		ActorID:     actorID,
		Data: map[string]interface{}{
			"blood":      request.BloodType,
			"units":      request.Units,
			"urgency":    request.Urgency,
			"suspicious": request.Suspicious,
		},
		OccurredAt: request.CreatedAt,
	})

	return request, nil
}

func (s *requestService) Get(ctx context.Context, id string) (*entity.BloodRequest, error) {
	return s.requests.GetByID(ctx, id)
}

// List hides requests flagged at submission.
func (s *requestService) List(ctx context.Context) ([]*entity.BloodRequest, error) {
	all, err := s.requests.List(ctx)
	if err != nil {
		return nil, err
	}

	visible := make([]*entity.BloodRequest, 0, len(all))
	for _, r := range all {
		if !r.Suspicious {
			visible = append(visible, r)
		}
	}
	return visible, nil
}

func (s *requestService) Flagged(ctx context.Context) ([]*FlaggedRequest, error) {
	all, err := s.requests.List(ctx)
	if err != nil {
		return nil, err
	}

	flagged := make([]*FlaggedRequest, 0)
	for _, r := range all {
		if row := flag(r); row != nil {
			flagged = append(flagged, row)
		}
	}
	return flagged, nil
}

func flag(r *entity.BloodRequest) *FlaggedRequest {
	admin, adminReasons := AdminFlagged(r)
	if !r.Suspicious && !admin {
		return nil
	}
	reasons := make([]string, 0, len(r.FlagReasons)+len(adminReasons))
	reasons = append(reasons, r.FlagReasons...)
	reasons = append(reasons, adminReasons...)
	return &FlaggedRequest{
		Request:      r,
		Reasons:      reasons,
		Suspicious:   r.Suspicious,
		AdminFlagged: admin,
	}
}

func (s *requestService) Stats(ctx context.Context) (*RequestStats, error) {
	all, err := s.requests.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &RequestStats{
		Total:        len(all),
		ByStatus:     make(map[entity.RequestStatus]int),
		ByBloodGroup: make(map[string]int),
	}
	for _, r := range all {
		stats.ByStatus[r.Status]++
		group := r.BloodType
		if group == "" {
			group = entity.BloodTypeUnknown
		}
		stats.ByBloodGroup[group]++
		if r.Suspicious {
			stats.Suspicious++
		}
		if flag(r) != nil {
			stats.Flagged++
		}
	}
	return stats, nil
}
