package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ds124wfegd/smartblood/internal/database"
	"github.com/ds124wfegd/smartblood/internal/entity"
	"github.com/ds124wfegd/smartblood/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: baseTime}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []entity.DomainEvent
}

func (r *recordingEvents) Publish(ctx context.Context, event entity.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) Types() []entity.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]entity.EventType, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

type fixture struct {
	repos    *database.Repositories
	services *Services
	clock    *testClock
	events   *recordingEvents
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repos:   database.NewMemoryRepositories(),
		clock:   newTestClock(),
		events:  &recordingEvents{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.services = NewServices(f.repos, Dependencies{
		Events:  f.events,
		Metrics: f.metrics,
		Clock:   f.clock.Now,
	})
	return f
}

func (f *fixture) profile(t *testing.T, id, name string, role entity.Role, blood string) *entity.Profile {
	t.Helper()
	p, err := f.services.Profiles.Upsert(context.Background(), id, &UpsertProfileRequest{
		Name:      name,
		Role:      role,
		BloodType: blood,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) submit(t *testing.T, actor Actor, blood string, units string) *entity.BloodRequest {
	t.Helper()
	r, err := f.services.Requests.Submit(context.Background(), actor, &SubmitRequest{
		BloodType: blood,
		Units:     json.Number(units),
		Location:  "City Hospital",
		Urgency:   entity.UrgencyHigh,
	})
	require.NoError(t, err)
	return r
}

func floatPtr(f float64) *float64 { return &f }
