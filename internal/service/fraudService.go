package service

import (
	"context"
	"strings"
	"time"

	"github.com/ds124wfegd/smartblood/internal/database"
	"github.com/ds124wfegd/smartblood/internal/entity"
	"github.com/ds124wfegd/smartblood/internal/metrics"

	"github.com/sirupsen/logrus"
)

// Flag reasons recorded on a request
const (
	ReasonMissingFields    = "missing_fields"
	ReasonUnknownBloodType = "unknown_blood_type"
	ReasonTooManyRecent    = "too_many_recent_requests"
	ReasonDuplicate        = "duplicate_request"
	ReasonTooManyUnits     = "units_exceed_limit"

	ReasonMissingHospital  = "missing_hospital"
	ReasonMissingPatientID = "missing_patient_id"
	ReasonMissingBlood     = "missing_blood_type"
)

type FraudConfig struct {
	// Window is the trailing period searched for earlier requests.
	Window time.Duration
	// MaxRecent is how many requests from one contact inside Window,
	// counting the new one, make it suspicious.
	MaxRecent int
	MaxUnits  int
}

func DefaultFraudConfig() FraudConfig {
	return FraudConfig{
		Window:    time.Hour,
		MaxRecent: 3,
		MaxUnits:  5,
	}
}

func (c FraudConfig) withDefaults() FraudConfig {
	d := DefaultFraudConfig()
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.MaxRecent <= 0 {
		c.MaxRecent = d.MaxRecent
	}
	if c.MaxUnits <= 0 {
		c.MaxUnits = d.MaxUnits
	}
	return c
}

type Verdict struct {
	Suspicious bool     `json:"suspicious"`
	Reasons    []string `json:"reasons,omitempty"`
}

func (v *Verdict) flag(reason string) {
	v.Suspicious = true
	v.Reasons = append(v.Reasons, reason)
}

type FraudDetector struct {
	requests database.RequestRepository
	cfg      FraudConfig
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewFraudDetector(requests database.RequestRepository, cfg FraudConfig, m *metrics.Metrics, now func() time.Time) *FraudDetector {
	if now == nil {
		now = time.Now
	}
	return &FraudDetector{
		requests: requests,
		cfg:      cfg.withDefaults(),
		metrics:  m,
		now:      now,
	}
}

// Classify loads the contact's recent history and applies every rule.
// When history cannot be read, the history rules are skipped and the
// request is judged on its own fields.
func (d *FraudDetector) Classify(ctx context.Context, request *entity.BloodRequest) Verdict {
	now := d.now()

	var recent []*entity.BloodRequest
	if contact := strings.TrimSpace(request.Contact); contact != "" {
		history, err := d.requests.ListByContactSince(ctx, contact, now.Add(-d.cfg.Window))
		if err != nil {
			logrus.WithError(err).WithField("contact", contact).Error("Fraud history lookup failed, failing open")
			d.metrics.IncrementFraudFailOpen()
		} else {
			recent = history
		}
	}

	return ClassifyWith(d.cfg, request, recent, now)
}

// ClassifyWith is the pure rule set. recent holds earlier requests from the
// same contact; entries outside the window or with the request's own id are
// ignored.
func ClassifyWith(cfg FraudConfig, request *entity.BloodRequest, recent []*entity.BloodRequest, now time.Time) Verdict {
	cfg = cfg.withDefaults()
	var v Verdict

	if len(request.MissingSubmissionFields()) > 0 {
		v.flag(ReasonMissingFields)
	}
	if request.BloodType == entity.BloodTypeUnknown {
		v.flag(ReasonUnknownBloodType)
	}

	since := now.Add(-cfg.Window)
	count, duplicate := 1, false
	for _, prior := range recent {
		if prior.ID == request.ID || prior.Contact != request.Contact {
			continue
		}
		if prior.CreatedAt.Before(since) || prior.CreatedAt.After(now) {
			continue
		}
		count++
		if prior.BloodType == request.BloodType && prior.Units == request.Units {
			duplicate = true
		}
	}
	if count >= cfg.MaxRecent {
		v.flag(ReasonTooManyRecent)
	}
	if duplicate {
		v.flag(ReasonDuplicate)
	}

	if request.Units > cfg.MaxUnits {
		v.flag(ReasonTooManyUnits)
	}
	return v
}

func isBlankOrUnknown(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == entity.BloodTypeUnknown
}

// AdminFlagged is the record-completeness check used by the admin view.
func AdminFlagged(request *entity.BloodRequest) (bool, []string) {
	var reasons []string
	if isBlankOrUnknown(request.Hospital) {
		reasons = append(reasons, ReasonMissingHospital)
	}
	if isBlankOrUnknown(request.PatientID) {
		reasons = append(reasons, ReasonMissingPatientID)
	}
	if isBlankOrUnknown(request.BloodType) {
		reasons = append(reasons, ReasonMissingBlood)
	}
	return len(reasons) > 0, reasons
}
