// Package events publishes domain events (membership transitions, pledges, donations)
// to Kafka for downstream consumers such as notification and reporting services.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/temple4/community-core/internal/config"
	"github.com/temple4/community-core/internal/telemetry"
)

// Event types
const (
	MembershipRequested    = "membership.requested"
	MembershipTransitioned = "membership.transitioned"
	RoleAssigned           = "membership.role_assigned"
	PermissionsUpdated     = "tenant.permissions_updated"
	PledgeCreated          = "pledge.created"
	PledgeAdvanced         = "pledge.advanced"
	PledgeStatusChanged    = "pledge.status_changed"
	DonationRecorded       = "donation.recorded"
)

// Event is the envelope written to the topic. Data carries the type-specific payload.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	TenantID   string      `json:"tenant_id"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// New builds an event with a fresh ID and the current time.
func New(eventType, tenantID string, data interface{}) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		TenantID:   tenantID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher is used by services to publish events.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// Writer is the subset of kafka.Writer used by KafkaPublisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages keyed by tenant ID, so all events of a
// tenant land on the same partition in order.
type KafkaPublisher struct {
	writer Writer
}

// NewKafkaPublisher creates a publisher writing to the configured brokers and topic.
func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: w}
}

// NewKafkaPublisherWithWriter allows injecting a writer.
func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish writes all events in one batch.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal %s event: %w", e.Type, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.TenantID),
			Value: value,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(e.Type)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		for _, e := range events {
			telemetry.EventsPublishedTotal.WithLabelValues(e.Type, "error").Inc()
		}
		return fmt.Errorf("failed to write events: %w", err)
	}
	for _, e := range events {
		telemetry.EventsPublishedTotal.WithLabelValues(e.Type, "ok").Inc()
	}
	return nil
}

// Close closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// NoopPublisher discards events. Used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, events ...Event) error {
	for _, e := range events {
		slog.Debug("event discarded", "type", e.Type, "tenant_id", e.TenantID)
	}
	return nil
}

func (NoopPublisher) Close() error { return nil }

// NewPublisher returns a KafkaPublisher when Kafka is enabled and a NoopPublisher otherwise.
func NewPublisher(cfg config.EventsConfig) Publisher {
	if !cfg.Kafka.Enabled {
		return NoopPublisher{}
	}
	return NewKafkaPublisher(cfg.Kafka)
}
