package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ds124wfegd/smartblood/internal/entity"
	"github.com/ds124wfegd/smartblood/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextEvent(t *testing.T, events <-chan realtime.ChangeEvent) realtime.ChangeEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change event")
		return realtime.ChangeEvent{}
	}
}

func TestChangeFeed_PublishesCommittedWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := realtime.NewHub()
	repos := WithChangeFeed(NewMemoryRepositories(), hub)

	requests, err := hub.Subscribe(ctx, realtime.PathRequests)
	require.NoError(t, err)
	profiles, err := hub.Subscribe(ctx, realtime.PathProfiles)
	require.NoError(t, err)
	notifications, err := hub.Subscribe(ctx, realtime.Join(realtime.PathNotifications, "patient-1"))
	require.NoError(t, err)

	require.NoError(t, repos.Profiles.Upsert(ctx, donor("d1", "O-", 0)))
	ev := nextEvent(t, profiles)
	assert.Equal(t, "profiles/d1", ev.Path)

	require.NoError(t, repos.Requests.Create(ctx, bloodRequest("r1", "c1", 0)))
	ev = nextEvent(t, requests)
	assert.Equal(t, realtime.OpWrite, ev.Op)
	assert.Equal(t, "r1", ev.Key())

	var decoded entity.BloodRequest
	require.NoError(t, ev.Decode(&decoded))
	assert.False(t, decoded.Notified)

	claimed, err := repos.Requests.ClaimFanout(ctx, "r1")
	require.NoError(t, err)
	require.True(t, claimed)
	ev = nextEvent(t, requests)
	assert.Equal(t, realtime.OpUpdate, ev.Op)
	assert.Equal(t, true, ev.Fields["notified"])

	applied, err := repos.Requests.UpdateStatus(ctx, entity.StatusChange{
		ID: "r1", From: entity.StatusPending, To: entity.StatusCompleted,
		DonorID: "d1", DonorName: "Donor d1", At: baseTime, CreditProfileID: "d1",
		Notification: &entity.Notification{ID: "n1", RecipientID: "patient-1", Message: "done", Timestamp: baseTime},
	})
	require.NoError(t, err)
	require.True(t, applied)

	ev = nextEvent(t, requests)
	assert.Equal(t, entity.StatusCompleted, ev.Fields["status"])

	ev = nextEvent(t, profiles)
	var credited entity.Profile
	require.NoError(t, ev.Decode(&credited))
	assert.Equal(t, 1, credited.DonationCount)

	ev = nextEvent(t, notifications)
	assert.Equal(t, "notifications/patient-1/n1", ev.Path)
}

func TestChangeFeed_SkipsRejectedWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := realtime.NewHub()
	repos := WithChangeFeed(NewMemoryRepositories(), hub)
	require.NoError(t, repos.Requests.Create(ctx, bloodRequest("r1", "c1", 0)))

	events, err := hub.Subscribe(ctx, realtime.PathRequests)
	require.NoError(t, err)

	applied, err := repos.Requests.UpdateStatus(ctx, entity.StatusChange{
		ID: "r1", From: entity.StatusAccepted, To: entity.StatusCompleted,
	})
	require.NoError(t, err)
	assert.False(t, applied)

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, event realtime.ChangeEvent) error {
	return errors.New("broker down")
}

func TestChangeFeed_PublishFailureKeepsWrite(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryRepositories()
	repos := WithChangeFeed(inner, failingPublisher{})

	require.NoError(t, repos.Requests.Create(ctx, bloodRequest("r1", "c1", 0)))

	got, err := inner.Requests.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)
}
