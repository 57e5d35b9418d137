// Package events publishes link lifecycle notifications after the
// corresponding database transaction has committed. Delivery is best
// effort: the database stays the source of truth for counts and history.
package events

import (
	"context"
	"time"
)

// Event types double as AMQP routing keys.
const (
	LinkCreated = "link.created"
	LinkClicked = "link.clicked"
	LinkDeleted = "link.deleted"
)

// Event is the JSON message body published for every lifecycle change
type Event struct {
	Type        string    `json:"type"`
	Alias       string    `json:"alias"`
	LinkID      string    `json:"link_id,omitempty"`
	OriginalURL string    `json:"original_url,omitempty"`
	IP          string    `json:"ip,omitempty"`
	ClickCount  int64     `json:"click_count,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher sends events to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// NoopPublisher discards every event. It is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
