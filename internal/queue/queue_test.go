package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ds124wfegd/smartblood/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "store unavailable", err: entity.Unavailable("claim fan-out", errors.New("timeout")), want: true},
		{name: "request gone", err: entity.ErrRequestNotFound, want: false},
		{name: "wrapped not found", err: fmt.Errorf("fan-out: %w", entity.ErrNotFound), want: false},
		{name: "validation", err: entity.NewValidationError("units", "must be gt 0"), want: false},
		{name: "transition", err: entity.ErrNotAuthorized, want: false},
		{name: "unknown", err: errors.New("boom"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestRetryManager_ShouldRetry(t *testing.T) {
	rm := NewRetryManager(3, 100*time.Millisecond)
	transient := entity.Unavailable("list donors", errors.New("i/o timeout"))

	tests := []struct {
		name      string
		attempt   int
		err       error
		wantRetry bool
		minDelay  time.Duration
		maxDelay  time.Duration
	}{
		{name: "first failure", attempt: 0, err: transient, wantRetry: true, minDelay: 75 * time.Millisecond, maxDelay: 125 * time.Millisecond},
		{name: "second failure backs off", attempt: 1, err: transient, wantRetry: true, minDelay: 150 * time.Millisecond, maxDelay: 250 * time.Millisecond},
		{name: "attempts exhausted", attempt: 3, err: transient, wantRetry: false},
		{name: "permanent error", attempt: 0, err: entity.ErrRequestNotFound, wantRetry: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retry, delay := rm.ShouldRetry(&FanoutTask{RequestID: "r1", Attempt: tt.attempt}, tt.err)
			assert.Equal(t, tt.wantRetry, retry)
			if tt.wantRetry {
				assert.GreaterOrEqual(t, delay, tt.minDelay)
				assert.LessOrEqual(t, delay, tt.maxDelay)
			}
		})
	}
}

func TestRetryManager_BackoffCapped(t *testing.T) {
	rm := NewRetryManager(20, 10*time.Millisecond)
	for attempt := 1; attempt < 12; attempt++ {
		assert.LessOrEqual(t, rm.calculateBackoff(attempt), 160*time.Millisecond)
	}
}

func TestMemoryQueue_DeliversInOrderToSingleConsumer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemoryQueue()
	defer q.Close()

	var mu sync.Mutex
	var got []string
	var inFlight, maxInFlight int32
	done := make(chan struct{})

	require.NoError(t, q.Consume(ctx, func(message []byte) error {
		n := atomic.AddInt32(&inFlight, 1)
		if n > atomic.LoadInt32(&maxInFlight) {
			atomic.StoreInt32(&maxInFlight, n)
		}
		defer atomic.AddInt32(&inFlight, -1)

		var task FanoutTask
		assert.NoError(t, json.Unmarshal(message, &task))

		mu.Lock()
		got = append(got, task.RequestID)
		if len(got) == 5 {
			close(done)
		}
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Publish(ctx, NewFanoutTask(fmt.Sprintf("r%d", i), SourceObserver)))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("messages not delivered")
	}

	assert.Equal(t, []string{"r0", "r1", "r2", "r3", "r4"}, got)
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
	assert.ErrorIs(t, q.Consume(ctx, func([]byte) error { return nil }), ErrAlreadyConsuming)
}

func TestMemoryQueue_RequeuesOnHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemoryQueue()
	defer q.Close()

	var calls int32
	done := make(chan struct{})
	require.NoError(t, q.Consume(ctx, func([]byte) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return errors.New("try again")
		}
		close(done)
		return nil
	}))

	require.NoError(t, q.Publish(ctx, NewFanoutTask("r1", SourceManual)))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("message was not redelivered")
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMemoryQueue_PublishWithDelay(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()

	require.NoError(t, q.PublishWithDelay(context.Background(), NewFanoutTask("r1", SourceRetry), 30*time.Millisecond))
	assert.Equal(t, 0, q.Len())

	assert.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestMemoryQueue_Closed(t *testing.T) {
	q := NewMemoryQueue()
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Publish(context.Background(), NewFanoutTask("r1", SourceManual)), ErrQueueClosed)
	assert.ErrorIs(t, q.Consume(context.Background(), func([]byte) error { return nil }), ErrQueueClosed)
}
