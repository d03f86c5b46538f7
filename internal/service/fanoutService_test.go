package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ds124wfegd/smartblood/internal/database"
	"github.com/ds124wfegd/smartblood/internal/entity"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.profile(t, "d1", "Ravi", entity.RoleDonor, "O-")
	f.profile(t, "d2", "Mina", entity.RoleDonor, "O-")
	f.profile(t, "d3", "Karl", entity.RoleDonor, "A+")
	f.profile(t, "p2", "Lee", entity.RolePatient, "O-")
	// the requester is an O- donor too and must not be notified
	f.profile(t, "d4", "Asha", entity.RoleDonor, "O-")

	request := f.submit(t, Actor{ProfileID: "d4", Name: "Asha", Contact: "555-0100"}, "O-", "2")

	sent, err := f.services.Fanout.FanOut(ctx, request.ID)
	require.NoError(t, err)

	recipients := make([]string, 0, len(sent))
	for _, n := range sent {
		recipients = append(recipients, n.RecipientID)
		assert.Equal(t, "New blood request from Asha (O-)", n.Message)
		assert.Equal(t, entity.TitleNewBloodRequest, n.Title)
		assert.False(t, n.Read)
		assert.Equal(t, baseTime, n.Timestamp)
		assert.Equal(t, request.ID, n.RequestID)
	}
	assert.ElementsMatch(t, []string{"d1", "d2"}, recipients)

	again, err := f.services.Fanout.FanOut(ctx, request.ID)
	require.NoError(t, err)
	assert.Empty(t, again)

	stored, err := f.services.Requests.Get(ctx, request.ID)
	require.NoError(t, err)
	assert.True(t, stored.Notified)

	for _, id := range []string{"d3", "p2", "d4"} {
		inbox, err := f.services.Notifications.List(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, inbox.Notifications, id)
	}

	assert.Contains(t, f.events.Types(), entity.EventFanoutCompleted)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FanoutRuns.WithLabelValues(FanoutCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FanoutRuns.WithLabelValues(FanoutSkipped)))
}

func TestFanOut_ConcurrentCallsNotifyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	donors := []string{"d1", "d2", "d3"}
	for _, id := range donors {
		f.profile(t, id, "Donor "+id, entity.RoleDonor, "AB+")
	}
	request := f.submit(t, Actor{ProfileID: "p1", Name: "Asha", Contact: "555-0100"}, "AB+", "1")

	const callers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sent, err := f.services.Fanout.FanOut(ctx, request.ID)
			assert.NoError(t, err)

			mu.Lock()
			total += len(sent)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, len(donors), total)
	for _, id := range donors {
		inbox, err := f.services.Notifications.List(ctx, id)
		require.NoError(t, err)
		assert.Len(t, inbox.Notifications, 1, id)
	}
}

type flakyNotifications struct {
	database.NotificationRepository
	mu    sync.Mutex
	fails int
}

func (n *flakyNotifications) Create(ctx context.Context, notification *entity.Notification) error {
	n.mu.Lock()
	if n.fails > 0 {
		n.fails--
		n.mu.Unlock()
		return entity.Unavailable("create notification", errors.New("timeout"))
	}
	n.mu.Unlock()
	return n.NotificationRepository.Create(ctx, notification)
}

func TestFanOut_ReleasesClaimOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.profile(t, "d1", "Ravi", entity.RoleDonor, "O+")
	f.profile(t, "d2", "Mina", entity.RoleDonor, "O+")
	request := f.submit(t, Actor{ProfileID: "p1", Name: "Asha", Contact: "555-0100"}, "O+", "1")

	flaky := &flakyNotifications{NotificationRepository: f.repos.Notifications, fails: 1}
	fanout := NewFanoutService(f.repos.Requests, f.repos.Profiles, flaky, f.events, f.metrics, f.clock.Now)

	_, err := fanout.FanOut(ctx, request.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, entity.ErrStoreUnavailable))

	stored, err := f.repos.Requests.GetByID(ctx, request.ID)
	require.NoError(t, err)
	assert.False(t, stored.Notified)

	sent, err := fanout.FanOut(ctx, request.ID)
	require.NoError(t, err)
	assert.Len(t, sent, 2)

	for _, id := range []string{"d1", "d2"} {
		inbox, err := f.services.Notifications.List(ctx, id)
		require.NoError(t, err)
		assert.Len(t, inbox.Notifications, 1, id)
	}
}

func TestFanOut_UnknownRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.services.Fanout.FanOut(context.Background(), "missing")
	assert.True(t, errors.Is(err, entity.ErrNotFound))
}
