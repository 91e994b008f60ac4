// internal/messaging/rabbit.go

// Package messaging carries the collaborator event feed: a fixed envelope
// vocabulary published to per-tenant durable queues with a DLQ. It is not
// a generic bus — only the three envelope kinds below travel on it.
package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/streadway/amqp"

	"wahub/internal/metrics"
)

// Envelope kinds consumed by downstream collaborators (CRM annotation,
// lead routing, auto-reply).
const (
	KindMessageReceived = "message.received"
	KindMessageUpdated  = "message.updated"
	KindStatusChanged   = "status.changed"
)

// Envelope is the wire shape of one collaborator event.
type Envelope struct {
	Kind      string          `json:"kind"`
	TenantID  string          `json:"tenant_id"`
	MessageID string          `json:"message_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	EmittedAt time.Time       `json:"emitted_at"`
}

type RabbitClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	URL     string
}

func NewRabbitClient(url string) (*RabbitClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	return &RabbitClient{
		conn:    conn,
		channel: ch,
		URL:     url,
	}, nil
}

func (r *RabbitClient) GetChannel() *amqp.Channel {
	return r.channel
}

func (r *RabbitClient) GetConnection() *amqp.Connection {
	return r.conn
}

func QueueName(tenantID string) string {
	return fmt.Sprintf("tenant_%s_events", tenantID)
}

// DeclareQueue creates the tenant's durable event queue and its DLQ.
func (r *RabbitClient) DeclareQueue(tenantID string) error {
	queueName := QueueName(tenantID)
	dlqName := fmt.Sprintf("tenant_%s_dlq", tenantID)

	_, err := r.channel.QueueDeclare(
		dlqName,
		true, false, false, false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlqName,
	}
	_, err = r.channel.QueueDeclare(
		queueName,
		true, false, false, false,
		args,
	)
	if err != nil {
		return fmt.Errorf("declare event queue: %w", err)
	}

	log.Printf("[Rabbit] Queues declared for tenant %s", tenantID)
	return nil
}

// PublishEnvelope sends one collaborator event to the tenant's queue.
func (r *RabbitClient) PublishEnvelope(env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	queueName := QueueName(env.TenantID)
	err = r.channel.Publish(
		"",        // default exchange
		queueName, // routing key (queue name)
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   env.EmittedAt,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to queue %s: %w", queueName, err)
	}
	return nil
}

// Close cleans up connection and channel
func (r *RabbitClient) Close() error {
	if err := r.channel.Close(); err != nil {
		return err
	}
	if err := r.conn.Close(); err != nil {
		return err
	}
	return nil
}

func (r *RabbitClient) UpdateQueueDepth(tenantID string) {
	queueName := QueueName(tenantID)

	q, err := r.channel.QueueInspect(queueName)
	if err != nil {
		log.Printf("[Rabbit] Failed to inspect queue for %s: %v", tenantID, err)
		return
	}

	metrics.QueueDepth.WithLabelValues(tenantID).Set(float64(q.Messages))
}
