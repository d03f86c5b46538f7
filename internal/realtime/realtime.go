// Package realtime carries change events between the store and its observers.
// A subscription is a channel of ChangeEvent that closes when its context ends.
// Delivery is at-least-once per subscriber with no ordering across paths.
package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

type Op string

const (
	OpWrite  Op = "write"
	OpUpdate Op = "update"
)

// Collection names used as the first path segment.
const (
	PathProfiles      = "profiles"
	PathRequests      = "requests"
	PathDonorRequests = "donorRequests"
	PathNotifications = "notifications"
)

type ChangeEvent struct {
	Path   string                 `json:"path"`
	Op     Op                     `json:"op"`
	Value  json.RawMessage        `json:"value,omitempty"`
	Fields map[string]interface{} `json:"fields,omitempty"`
	At     time.Time              `json:"at"`
}

// Collection returns the first segment of the event path.
func (e ChangeEvent) Collection() string {
	return strings.SplitN(e.Path, "/", 2)[0]
}

// Key returns the last segment of the event path.
func (e ChangeEvent) Key() string {
	parts := strings.Split(e.Path, "/")
	return parts[len(parts)-1]
}

// Decode unmarshals the full record carried by a write event.
func (e ChangeEvent) Decode(dst interface{}) error {
	return json.Unmarshal(e.Value, dst)
}

type Publisher interface {
	Publish(ctx context.Context, event ChangeEvent) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, path string) (<-chan ChangeEvent, error)
}

// Sync is the realtime collaborator: writes go out through Write/Update and
// come back to every subscriber of the path's collection.
type Sync interface {
	Publisher
	Subscriber
	Close() error
}

// Write builds a full-record event.
func Write(path string, value interface{}) (ChangeEvent, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return ChangeEvent{}, err
	}
	return ChangeEvent{Path: path, Op: OpWrite, Value: raw, At: time.Now()}, nil
}

// Update builds a partial-field event.
func Update(path string, fields map[string]interface{}) ChangeEvent {
	return ChangeEvent{Path: path, Op: OpUpdate, Fields: fields, At: time.Now()}
}

// Join builds a store path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

func matches(subscribed string, event ChangeEvent) bool {
	return subscribed == event.Path || strings.HasPrefix(event.Path, subscribed+"/")
}
