package service

import (
	"context"
	"strings"
	"time"

	"github.com/ds124wfegd/smartblood/internal/database"
	"github.com/ds124wfegd/smartblood/internal/entity"

	"github.com/sirupsen/logrus"
)

// UpsertProfileRequest is what a user fills in at registration or later
// from the profile page.
type UpsertProfileRequest struct {
	Name      string          `json:"name" validate:"required,max=200"`
	Role      entity.Role     `json:"role" validate:"required,oneof=donor patient"`
	BloodType string          `json:"blood_type" validate:"omitempty,bloodtype"`
	Location  entity.Location `json:"location"`
	Email     string          `json:"email" validate:"omitempty,email"`
	Phone     string          `json:"phone" validate:"max=50"`
}

type profileService struct {
	profiles database.ProfileRepository
	now      func() time.Time
}

func NewProfileService(profiles database.ProfileRepository, now func() time.Time) ProfileService {
	return &profileService{profiles: profiles, now: now}
}

// Upsert creates the profile with a zero donation count or updates its
// editable fields. The donation count is never taken from the caller.
func (s *profileService) Upsert(ctx context.Context, id string, req *UpsertProfileRequest) (*entity.Profile, error) {
	if strings.TrimSpace(id) == "" {
		return nil, entity.NewValidationError("id", "is required")
	}
	if err := entity.Validate(req); err != nil {
		return nil, err
	}

	now := s.now()
	profile := &entity.Profile{
		ID:        id,
		Name:      strings.TrimSpace(req.Name),
		Role:      req.Role,
		BloodType: req.BloodType,
		Location:  req.Location,
		Email:     req.Email,
		Phone:     req.Phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := entity.Validate(profile); err != nil {
		return nil, err
	}

	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"profile_id": profile.ID,
		"role":       profile.Role,
	}).Info("Profile saved")

	return profile, nil
}

func (s *profileService) Get(ctx context.Context, id string) (*entity.Profile, error) {
	return s.profiles.GetByID(ctx, id)
}
