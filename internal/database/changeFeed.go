package database

import (
	"context"

	"github.com/ds124wfegd/smartblood/internal/entity"
	"github.com/ds124wfegd/smartblood/internal/realtime"

	"github.com/sirupsen/logrus"
)

// WithChangeFeed wraps the repositories so every committed write is
// published to the realtime collaborator. Publish failures are logged and
// never undo the write; the fan-out sweeper covers lost request events.
func WithChangeFeed(repos *Repositories, pub realtime.Publisher) *Repositories {
	feed := &changeFeed{pub: pub, profiles: repos.Profiles}
	return &Repositories{
		Profiles:      &feedProfiles{ProfileRepository: repos.Profiles, feed: feed},
		Requests:      &feedRequests{RequestRepository: repos.Requests, feed: feed},
		DonorRequests: &feedDonorRequests{DonorRequestRepository: repos.DonorRequests, feed: feed},
		Notifications: &feedNotifications{NotificationRepository: repos.Notifications, feed: feed},
	}
}

type changeFeed struct {
	pub      realtime.Publisher
	profiles ProfileRepository
}

func (f *changeFeed) write(ctx context.Context, path string, value interface{}) {
	event, err := realtime.Write(path, value)
	if err != nil {
		logrus.WithError(err).WithField("path", path).Error("Failed to build change event")
		return
	}
	f.publish(ctx, event)
}

func (f *changeFeed) update(ctx context.Context, path string, fields map[string]interface{}) {
	f.publish(ctx, realtime.Update(path, fields))
}

func (f *changeFeed) publish(ctx context.Context, event realtime.ChangeEvent) {
	if err := f.pub.Publish(ctx, event); err != nil {
		logrus.WithError(err).WithField("path", event.Path).Warn("Failed to publish change event")
	}
}

func (f *changeFeed) notification(ctx context.Context, n *entity.Notification) {
	if n == nil {
		return
	}
	f.write(ctx, realtime.Join(realtime.PathNotifications, n.RecipientID, n.ID), n)
}

// credited republishes the profile whose donation count just moved.
func (f *changeFeed) credited(ctx context.Context, profileID string) {
	if profileID == "" {
		return
	}
	p, err := f.profiles.GetByID(ctx, profileID)
	if err != nil {
		logrus.WithError(err).WithField("profile_id", profileID).Warn("Failed to reload credited profile")
		return
	}
	f.write(ctx, realtime.Join(realtime.PathProfiles, p.ID), p)
}

func (f *changeFeed) statusFields(change entity.StatusChange) map[string]interface{} {
	fields := map[string]interface{}{
		"status":     change.To,
		"updated_at": change.At,
	}
	if change.DonorID != "" {
		fields["donor_id"] = change.DonorID
		fields["donor"] = change.DonorName
	}
	return fields
}

type feedProfiles struct {
	ProfileRepository
	feed *changeFeed
}

func (r *feedProfiles) Upsert(ctx context.Context, profile *entity.Profile) error {
	if err := r.ProfileRepository.Upsert(ctx, profile); err != nil {
		return err
	}
	r.feed.write(ctx, realtime.Join(realtime.PathProfiles, profile.ID), profile)
	return nil
}

type feedRequests struct {
	RequestRepository
	feed *changeFeed
}

func (r *feedRequests) Create(ctx context.Context, request *entity.BloodRequest) error {
	if err := r.RequestRepository.Create(ctx, request); err != nil {
		return err
	}
	r.feed.write(ctx, realtime.Join(realtime.PathRequests, request.ID), request)
	return nil
}

func (r *feedRequests) UpdateStatus(ctx context.Context, change entity.StatusChange) (bool, error) {
	applied, err := r.RequestRepository.UpdateStatus(ctx, change)
	if err != nil || !applied {
		return applied, err
	}
	r.feed.update(ctx, realtime.Join(realtime.PathRequests, change.ID), r.feed.statusFields(change))
	r.feed.credited(ctx, change.CreditProfileID)
	r.feed.notification(ctx, change.Notification)
	return true, nil
}

func (r *feedRequests) ClaimFanout(ctx context.Context, id string) (bool, error) {
	claimed, err := r.RequestRepository.ClaimFanout(ctx, id)
	if err != nil || !claimed {
		return claimed, err
	}
	r.feed.update(ctx, realtime.Join(realtime.PathRequests, id), map[string]interface{}{"notified": true})
	return true, nil
}

func (r *feedRequests) ReleaseFanout(ctx context.Context, id string) error {
	if err := r.RequestRepository.ReleaseFanout(ctx, id); err != nil {
		return err
	}
	r.feed.update(ctx, realtime.Join(realtime.PathRequests, id), map[string]interface{}{"notified": false})
	return nil
}

type feedDonorRequests struct {
	DonorRequestRepository
	feed *changeFeed
}

func (r *feedDonorRequests) Create(ctx context.Context, request *entity.DonorRequest, notification *entity.Notification) error {
	if err := r.DonorRequestRepository.Create(ctx, request, notification); err != nil {
		return err
	}
	r.feed.write(ctx, realtime.Join(realtime.PathDonorRequests, request.ID), request)
	r.feed.notification(ctx, notification)
	return nil
}

func (r *feedDonorRequests) UpdateStatus(ctx context.Context, change entity.StatusChange) (bool, error) {
	applied, err := r.DonorRequestRepository.UpdateStatus(ctx, change)
	if err != nil || !applied {
		return applied, err
	}
	r.feed.update(ctx, realtime.Join(realtime.PathDonorRequests, change.ID), r.feed.statusFields(change))
	r.feed.credited(ctx, change.CreditProfileID)
	r.feed.notification(ctx, change.Notification)
	return true, nil
}

type feedNotifications struct {
	NotificationRepository
	feed *changeFeed
}

func (r *feedNotifications) Create(ctx context.Context, notification *entity.Notification) error {
	if err := r.NotificationRepository.Create(ctx, notification); err != nil {
		return err
	}
	r.feed.notification(ctx, notification)
	return nil
}

func (r *feedNotifications) MarkRead(ctx context.Context, recipientID, id string) error {
	if err := r.NotificationRepository.MarkRead(ctx, recipientID, id); err != nil {
		return err
	}
	r.feed.update(ctx, realtime.Join(realtime.PathNotifications, recipientID, id), map[string]interface{}{"read": true})
	return nil
}
