package worker

import (
	"context"
	"time"

	"github.com/ds124wfegd/smartblood/internal/database"
	"github.com/ds124wfegd/smartblood/internal/queue"

	"github.com/sirupsen/logrus"
)

// Sweeper re-queues requests that are still waiting for fan-out, covering
// lost change events and released claims.
type Sweeper struct {
	requests database.RequestRepository
	queue    queue.Queue
	interval time.Duration
	batch    int
}

func NewSweeper(requests database.RequestRepository, q queue.Queue, interval time.Duration, batch int) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{
		requests: requests,
		queue:    q,
		interval: interval,
		batch:    batch,
	}
}

func (w *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logrus.Info("Fan-out sweeper started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Fan-out sweeper stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep enqueues one batch and returns how many tasks were published.
func (w *Sweeper) Sweep(ctx context.Context) int {
	pending, err := w.requests.ListUnnotified(ctx, w.batch)
	if err != nil {
		logrus.Errorf("Failed to list requests awaiting fan-out: %v", err)
		return 0
	}
	if len(pending) == 0 {
		return 0
	}

	published, failed := 0, 0
	for _, request := range pending {
		select {
		case <-ctx.Done():
			return published
		default:
		}

		if err := w.queue.Publish(ctx, queue.NewFanoutTask(request.ID, queue.SourceSweeper)); err != nil {
			logrus.Errorf("Failed to enqueue fan-out for request %s: %v", request.ID, err)
			failed++
			continue
		}
		published++
	}

	logrus.Infof("Fan-out sweep completed: %d enqueued, %d failed", published, failed)
	return published
}
