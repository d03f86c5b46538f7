package database

import (
	"context"
	"time"

	"github.com/ds124wfegd/smartblood/internal/entity"
)

type ProfileRepository interface {
	Upsert(ctx context.Context, profile *entity.Profile) error
	GetByID(ctx context.Context, id string) (*entity.Profile, error)

	// List returns profiles in registration order.
	List(ctx context.Context) ([]*entity.Profile, error)
	ListDonorsByBloodType(ctx context.Context, bloodType string) ([]*entity.Profile, error)
}

type RequestRepository interface {
	Create(ctx context.Context, request *entity.BloodRequest) error
	GetByID(ctx context.Context, id string) (*entity.BloodRequest, error)

	// List returns requests newest first.
	List(ctx context.Context) ([]*entity.BloodRequest, error)
	ListByContactSince(ctx context.Context, contact string, since time.Time) ([]*entity.BloodRequest, error)
	ListUnnotified(ctx context.Context, limit int) ([]*entity.BloodRequest, error)

	// UpdateStatus applies the change only while the stored status equals
	// change.From. It reports false when the status had already moved on.
	UpdateStatus(ctx context.Context, change entity.StatusChange) (bool, error)

	// ClaimFanout flips notified from false to true. Only one caller wins.
	ClaimFanout(ctx context.Context, id string) (bool, error)
	ReleaseFanout(ctx context.Context, id string) error
}

type DonorRequestRepository interface {
	// Create stores the request together with the recipient's notification.
	Create(ctx context.Context, request *entity.DonorRequest, notification *entity.Notification) error
	GetByID(ctx context.Context, id string) (*entity.DonorRequest, error)
	ListByRecipient(ctx context.Context, toID string) ([]*entity.DonorRequest, error)
	ListBySender(ctx context.Context, fromID string) ([]*entity.DonorRequest, error)
	UpdateStatus(ctx context.Context, change entity.StatusChange) (bool, error)
}

type NotificationRepository interface {
	// Create is a no-op when a notification with the same id already exists
	// for the recipient.
	Create(ctx context.Context, notification *entity.Notification) error
	ListByRecipient(ctx context.Context, recipientID string) ([]*entity.Notification, error)
	MarkRead(ctx context.Context, recipientID, id string) error
}

type Repositories struct {
	Profiles      ProfileRepository
	Requests      RequestRepository
	DonorRequests DonorRequestRepository
	Notifications NotificationRepository
}
