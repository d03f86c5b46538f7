package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ds124wfegd/smartblood/internal/entity"
)

// memoryStore keeps every collection behind one mutex so a status change,
// its donation credit and its notification land together.
type memoryStore struct {
	mu sync.Mutex

	profiles      map[string]*entity.Profile
	profileOrder  []string
	requests      map[string]*entity.BloodRequest
	donorRequests map[string]*entity.DonorRequest
	notifications map[string]map[string]*entity.Notification
}

func NewMemoryRepositories() *Repositories {
	s := &memoryStore{
		profiles:      make(map[string]*entity.Profile),
		requests:      make(map[string]*entity.BloodRequest),
		donorRequests: make(map[string]*entity.DonorRequest),
		notifications: make(map[string]map[string]*entity.Notification),
	}
	return &Repositories{
		Profiles:      &memoryProfiles{s},
		Requests:      &memoryRequests{s},
		DonorRequests: &memoryDonorRequests{s},
		Notifications: &memoryNotifications{s},
	}
}

func copyProfile(p *entity.Profile) *entity.Profile {
	c := *p
	return &c
}

func copyRequest(r *entity.BloodRequest) *entity.BloodRequest {
	c := *r
	c.FlagReasons = append([]string(nil), r.FlagReasons...)
	return &c
}

func copyDonorRequest(r *entity.DonorRequest) *entity.DonorRequest {
	c := *r
	return &c
}

func copyNotification(n *entity.Notification) *entity.Notification {
	c := *n
	return &c
}

// addNotification must be called with mu held.
func (s *memoryStore) addNotification(n *entity.Notification) {
	inbox, ok := s.notifications[n.RecipientID]
	if !ok {
		inbox = make(map[string]*entity.Notification)
		s.notifications[n.RecipientID] = inbox
	}
	if _, exists := inbox[n.ID]; exists {
		return
	}
	inbox[n.ID] = copyNotification(n)
}

// credit must be called with mu held.
func (s *memoryStore) credit(profileID string, at time.Time) {
	if profileID == "" {
		return
	}
	if p, ok := s.profiles[profileID]; ok {
		p.DonationCount++
		p.UpdatedAt = at
	}
}

type memoryProfiles struct{ s *memoryStore }

func (r *memoryProfiles) Upsert(ctx context.Context, profile *entity.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if existing, ok := r.s.profiles[profile.ID]; ok {
		// the counter only moves through completed transitions
		profile.DonationCount = existing.DonationCount
		profile.CreatedAt = existing.CreatedAt
	} else {
		r.s.profileOrder = append(r.s.profileOrder, profile.ID)
	}
	r.s.profiles[profile.ID] = copyProfile(profile)
	return nil
}

func (r *memoryProfiles) GetByID(ctx context.Context, id string) (*entity.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.profiles[id]
	if !ok {
		return nil, entity.ErrProfileNotFound
	}
	return copyProfile(p), nil
}

func (r *memoryProfiles) List(ctx context.Context) ([]*entity.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	profiles := make([]*entity.Profile, 0, len(r.s.profileOrder))
	for _, id := range r.s.profileOrder {
		profiles = append(profiles, copyProfile(r.s.profiles[id]))
	}
	return profiles, nil
}

func (r *memoryProfiles) ListDonorsByBloodType(ctx context.Context, bloodType string) ([]*entity.Profile, error) {
	all, _ := r.List(ctx)

	var donors []*entity.Profile
	for _, p := range all {
		if p.IsDonor() && p.BloodType == bloodType {
			donors = append(donors, p)
		}
	}
	return donors, nil
}

type memoryRequests struct{ s *memoryStore }

func (r *memoryRequests) Create(ctx context.Context, request *entity.BloodRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.requests[request.ID] = copyRequest(request)
	return nil
}

func (r *memoryRequests) GetByID(ctx context.Context, id string) (*entity.BloodRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	req, ok := r.s.requests[id]
	if !ok {
		return nil, entity.ErrRequestNotFound
	}
	return copyRequest(req), nil
}

func (r *memoryRequests) filter(keep func(*entity.BloodRequest) bool) []*entity.BloodRequest {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*entity.BloodRequest
	for _, req := range r.s.requests {
		if keep(req) {
			out = append(out, copyRequest(req))
		}
	}
	return out
}

func newestFirst(requests []*entity.BloodRequest) {
	sort.SliceStable(requests, func(i, j int) bool {
		if requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].ID < requests[j].ID
		}
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})
}

func (r *memoryRequests) List(ctx context.Context) ([]*entity.BloodRequest, error) {
	out := r.filter(func(*entity.BloodRequest) bool { return true })
	newestFirst(out)
	return out, nil
}

func (r *memoryRequests) ListByContactSince(ctx context.Context, contact string, since time.Time) ([]*entity.BloodRequest, error) {
	out := r.filter(func(req *entity.BloodRequest) bool {
		return req.Contact == contact && !req.CreatedAt.Before(since)
	})
	newestFirst(out)
	return out, nil
}

func (r *memoryRequests) ListUnnotified(ctx context.Context, limit int) ([]*entity.BloodRequest, error) {
	out := r.filter(func(req *entity.BloodRequest) bool { return !req.Notified })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRequests) UpdateStatus(ctx context.Context, change entity.StatusChange) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	req, ok := r.s.requests[change.ID]
	if !ok {
		return false, entity.ErrRequestNotFound
	}
	if req.Status != change.From {
		return false, nil
	}

	req.Status = change.To
	req.UpdatedAt = change.At
	if req.DonorID == "" && change.DonorID != "" {
		req.DonorID = change.DonorID
		req.DonorName = change.DonorName
	}
	r.s.credit(change.CreditProfileID, change.At)
	if change.Notification != nil {
		r.s.addNotification(change.Notification)
	}
	return true, nil
}

func (r *memoryRequests) ClaimFanout(ctx context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	req, ok := r.s.requests[id]
	if !ok {
		return false, entity.ErrRequestNotFound
	}
	if req.Notified {
		return false, nil
	}
	req.Notified = true
	return true, nil
}

func (r *memoryRequests) ReleaseFanout(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	req, ok := r.s.requests[id]
	if !ok {
		return entity.ErrRequestNotFound
	}
	req.Notified = false
	return nil
}

type memoryDonorRequests struct{ s *memoryStore }

func (r *memoryDonorRequests) Create(ctx context.Context, request *entity.DonorRequest, notification *entity.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.donorRequests[request.ID] = copyDonorRequest(request)
	if notification != nil {
		r.s.addNotification(notification)
	}
	return nil
}

func (r *memoryDonorRequests) GetByID(ctx context.Context, id string) (*entity.DonorRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	dr, ok := r.s.donorRequests[id]
	if !ok {
		return nil, entity.ErrDonorRequestNotFound
	}
	return copyDonorRequest(dr), nil
}

func (r *memoryDonorRequests) list(keep func(*entity.DonorRequest) bool) []*entity.DonorRequest {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*entity.DonorRequest
	for _, dr := range r.s.donorRequests {
		if keep(dr) {
			out = append(out, copyDonorRequest(dr))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *memoryDonorRequests) ListByRecipient(ctx context.Context, toID string) ([]*entity.DonorRequest, error) {
	return r.list(func(dr *entity.DonorRequest) bool { return dr.ToID == toID }), nil
}

func (r *memoryDonorRequests) ListBySender(ctx context.Context, fromID string) ([]*entity.DonorRequest, error) {
	return r.list(func(dr *entity.DonorRequest) bool { return dr.FromID == fromID }), nil
}

func (r *memoryDonorRequests) UpdateStatus(ctx context.Context, change entity.StatusChange) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	dr, ok := r.s.donorRequests[change.ID]
	if !ok {
		return false, entity.ErrDonorRequestNotFound
	}
	if dr.Status != change.From {
		return false, nil
	}

	dr.Status = change.To
	dr.UpdatedAt = change.At
	r.s.credit(change.CreditProfileID, change.At)
	if change.Notification != nil {
		r.s.addNotification(change.Notification)
	}
	return true, nil
}

type memoryNotifications struct{ s *memoryStore }

func (r *memoryNotifications) Create(ctx context.Context, notification *entity.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.addNotification(notification)
	return nil
}

func (r *memoryNotifications) ListByRecipient(ctx context.Context, recipientID string) ([]*entity.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*entity.Notification
	for _, n := range r.s.notifications[recipientID] {
		out = append(out, copyNotification(n))
	}
	sortNotifications(out)
	return out, nil
}

func (r *memoryNotifications) MarkRead(ctx context.Context, recipientID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n, ok := r.s.notifications[recipientID][id]
	if !ok {
		return entity.ErrNotificationNotFound
	}
	n.Read = true
	return nil
}

func sortNotifications(notifications []*entity.Notification) {
	sort.SliceStable(notifications, func(i, j int) bool {
		if notifications[i].Timestamp.Equal(notifications[j].Timestamp) {
			return notifications[i].ID < notifications[j].ID
		}
		return notifications[i].Timestamp.After(notifications[j].Timestamp)
	})
}
