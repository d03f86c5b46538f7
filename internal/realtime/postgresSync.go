package realtime

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const pgChannelPrefix = "smartblood_changes_"

// PostgresSync publishes with pg_notify and subscribes with LISTEN.
type PostgresSync struct {
	db  *sql.DB
	dsn string

	minReconnect time.Duration
	maxReconnect time.Duration
}

func NewPostgresSync(db *sql.DB, dsn string) *PostgresSync {
	return &PostgresSync{
		db:           db,
		dsn:          dsn,
		minReconnect: 10 * time.Second,
		maxReconnect: time.Minute,
	}
}

func pgChannel(collection string) string {
	return pgChannelPrefix + collection
}

func (s *PostgresSync) Publish(ctx context.Context, event ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, pgChannel(event.Collection()), string(data)); err != nil {
		return fmt.Errorf("failed to notify change for %s: %w", event.Path, err)
	}
	return nil
}

func (s *PostgresSync) Subscribe(ctx context.Context, path string) (<-chan ChangeEvent, error) {
	channel := pgChannel(ChangeEvent{Path: path}.Collection())

	listener := pq.NewListener(s.dsn, s.minReconnect, s.maxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logrus.WithError(err).WithField("channel", channel).Warn("Postgres listener event")
		}
	})
	if err := listener.Listen(channel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}

	out := make(chan ChangeEvent)

	go func() {
		defer close(out)
		defer listener.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				// nil after a reconnect; events in the gap are covered by the sweeper
				if n == nil {
					continue
				}

				var event ChangeEvent
				if err := json.Unmarshal([]byte(n.Extra), &event); err != nil {
					logrus.WithError(err).WithField("channel", n.Channel).Warn("Skipping malformed change event")
					continue
				}
				if !matches(path, event) {
					continue
				}

				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (s *PostgresSync) Close() error {
	return nil
}
