// Package publisher pushes security alerts to Kafka for operator tooling.
package publisher

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"authcore/backend/internal/alert/domain"
)

// KafkaPublisher writes alerts to a Kafka topic using segmentio/kafka-go.
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaPublisher creates a Kafka publisher that writes alerts to the given topic.
// Returns (nil, nil) when brokers or topic are empty so callers can treat
// publishing as disabled. Call Close when shutting down.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: writer, topic: topic}, nil
}

// Publish serializes the alert as JSON and writes it to the Kafka topic.
// Uses the request context with a short timeout so slow Kafka does not block
// the security-critical caller.
func (p *KafkaPublisher) Publish(ctx context.Context, a *domain.Alert) error {
	if p == nil || p.writer == nil || a == nil {
		return nil
	}
	payload, err := json.Marshal(struct {
		ID        string    `json:"id"`
		TenantID  string    `json:"tenant_id"`
		UserID    string    `json:"user_id"`
		Kind      string    `json:"kind"`
		Severity  string    `json:"severity"`
		Message   string    `json:"message"`
		Metadata  string    `json:"metadata,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}{
		ID: a.ID, TenantID: a.TenantID, UserID: a.UserID, Kind: string(a.Kind),
		Severity: string(a.Severity), Message: a.Message, Metadata: a.Metadata,
		CreatedAt: a.CreatedAt,
	})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(a.TenantID),
		Value: payload,
	})
	if err != nil {
		log.Printf("alert: kafka publish failed: %v", err)
		return err
	}
	return nil
}

// Close closes the Kafka writer. Safe to call multiple times.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
