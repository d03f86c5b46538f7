package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ds124wfegd/smartblood/internal/database"
	"github.com/ds124wfegd/smartblood/internal/entity"
	"github.com/ds124wfegd/smartblood/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func completeRequest() *entity.BloodRequest {
	return &entity.BloodRequest{
		ID:            "new",
		RequesterName: "Asha",
		BloodType:     "O-",
		Units:         2,
		Location:      "City Hospital",
		Contact:       "555-0100",
		CreatedAt:     baseTime,
	}
}

func prior(id, blood string, units int, ago time.Duration) *entity.BloodRequest {
	return &entity.BloodRequest{
		ID:        id,
		BloodType: blood,
		Units:     units,
		Contact:   "555-0100",
		CreatedAt: baseTime.Add(-ago),
	}
}

func TestClassifyWith(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(r *entity.BloodRequest)
		recent     []*entity.BloodRequest
		suspicious bool
		reasons    []string
	}{
		{
			name:       "complete request",
			suspicious: false,
		},
		{
			name:       "missing name",
			mutate:     func(r *entity.BloodRequest) { r.RequesterName = "  " },
			suspicious: true,
			reasons:    []string{ReasonMissingFields},
		},
		{
			name:       "missing contact",
			mutate:     func(r *entity.BloodRequest) { r.Contact = "" },
			suspicious: true,
			reasons:    []string{ReasonMissingFields},
		},
		{
			name:       "unknown blood type",
			mutate:     func(r *entity.BloodRequest) { r.BloodType = entity.BloodTypeUnknown },
			suspicious: true,
			reasons:    []string{ReasonUnknownBloodType},
		},
		{
			name:       "units at limit",
			mutate:     func(r *entity.BloodRequest) { r.Units = 5 },
			suspicious: false,
		},
		{
			name:       "units over limit",
			mutate:     func(r *entity.BloodRequest) { r.Units = 6 },
			suspicious: true,
			reasons:    []string{ReasonTooManyUnits},
		},
		{
			name:       "one earlier different request",
			recent:     []*entity.BloodRequest{prior("a", "A+", 1, 10*time.Minute)},
			suspicious: false,
		},
		{
			name: "third request in the hour",
			recent: []*entity.BloodRequest{
				prior("a", "A+", 1, 10*time.Minute),
				prior("b", "B+", 3, 20*time.Minute),
			},
			suspicious: true,
			reasons:    []string{ReasonTooManyRecent},
		},
		{
			name: "earlier requests outside the window",
			recent: []*entity.BloodRequest{
				prior("a", "A+", 1, 61*time.Minute),
				prior("b", "B+", 3, 2*time.Hour),
			},
			suspicious: false,
		},
		{
			name:       "duplicate blood and units",
			recent:     []*entity.BloodRequest{prior("a", "O-", 2, 5*time.Minute)},
			suspicious: true,
			reasons:    []string{ReasonDuplicate},
		},
		{
			name:       "own id is ignored",
			recent:     []*entity.BloodRequest{prior("new", "O-", 2, 0)},
			suspicious: false,
		},
		{
			name: "several rules at once",
			mutate: func(r *entity.BloodRequest) {
				r.Location = ""
				r.Units = 9
			},
			recent: []*entity.BloodRequest{
				prior("a", "O-", 9, time.Minute),
				prior("b", "O-", 1, 2*time.Minute),
			},
			suspicious: true,
			reasons:    []string{ReasonMissingFields, ReasonTooManyRecent, ReasonDuplicate, ReasonTooManyUnits},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := completeRequest()
			if tt.mutate != nil {
				tt.mutate(r)
			}

			v := ClassifyWith(DefaultFraudConfig(), r, tt.recent, baseTime)

			assert.Equal(t, tt.suspicious, v.Suspicious)
			assert.Equal(t, tt.reasons, v.Reasons)
		})
	}
}

func TestAdminFlagged(t *testing.T) {
	tests := []struct {
		name      string
		hospital  string
		patientID string
		blood     string
		flagged   bool
		reasons   []string
	}{
		{"complete", "General", "P-1", "A+", false, nil},
		{"missing hospital", "", "P-1", "A+", true, []string{ReasonMissingHospital}},
		{"unknown patient", "General", "Unknown", "A+", true, []string{ReasonMissingPatientID}},
		{"unknown blood", "General", "P-1", "Unknown", true, []string{ReasonMissingBlood}},
		{"nothing filled", " ", "", "", true, []string{ReasonMissingHospital, ReasonMissingPatientID, ReasonMissingBlood}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flagged, reasons := AdminFlagged(&entity.BloodRequest{
				Hospital:  tt.hospital,
				PatientID: tt.patientID,
				BloodType: tt.blood,
			})
			assert.Equal(t, tt.flagged, flagged)
			assert.Equal(t, tt.reasons, reasons)
		})
	}
}

type failingHistory struct {
	database.RequestRepository
}

func (failingHistory) ListByContactSince(context.Context, string, time.Time) ([]*entity.BloodRequest, error) {
	return nil, entity.Unavailable("list by contact", errors.New("connection refused"))
}

func TestFraudDetector_FailsOpen(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	detector := NewFraudDetector(failingHistory{}, FraudConfig{}, m, func() time.Time { return baseTime })

	v := detector.Classify(context.Background(), completeRequest())
	assert.False(t, v.Suspicious)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FraudFailOpen))

	// rules that need no history still apply
	over := completeRequest()
	over.Units = 8
	v = detector.Classify(context.Background(), over)
	assert.True(t, v.Suspicious)
	assert.Equal(t, []string{ReasonTooManyUnits}, v.Reasons)
}

func TestFraudDetector_SkipsLookupWithoutContact(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	detector := NewFraudDetector(failingHistory{}, FraudConfig{}, m, func() time.Time { return baseTime })

	r := completeRequest()
	r.Contact = ""
	v := detector.Classify(context.Background(), r)

	assert.True(t, v.Suspicious)
	assert.Equal(t, []string{ReasonMissingFields}, v.Reasons)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.FraudFailOpen))
}
