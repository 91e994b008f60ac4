// internal/consumer/consumer.go
package consumer

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/streadway/amqp"

	"wahub/internal/messaging"
	"wahub/internal/worker"
)

// Consumer drains one tenant's collaborator event queue and hands each
// envelope to the dispatch pool. Failed dispatches are rejected to the
// tenant DLQ.
type Consumer struct {
	TenantID    string
	QueueName   string
	Channel     *amqp.Channel
	StopChan    chan struct{}
	DoneChan    chan struct{}
	ConsumerTag string
	Pool        *worker.Pool
}

// StartConsumer starts a goroutine that consumes envelopes for a tenant.
func StartConsumer(conn *amqp.Connection, tenantID string, pool *worker.Pool) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("tenant %s: failed to open channel: %w", tenantID, err)
	}

	queueName := messaging.QueueName(tenantID)
	consumerTag := fmt.Sprintf("dispatcher-%s", tenantID)

	msgs, err := ch.Consume(
		queueName,
		consumerTag,
		false, // autoAck: false to handle manually
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: failed to start consuming: %w", tenantID, err)
	}

	c := &Consumer{
		TenantID:    tenantID,
		QueueName:   queueName,
		Channel:     ch,
		StopChan:    make(chan struct{}),
		DoneChan:    make(chan struct{}),
		ConsumerTag: consumerTag,
		Pool:        pool,
	}

	pool.Start()
	go c.consumeLoop(msgs)

	log.Printf("Started dispatcher for tenant %s", tenantID)
	return c, nil
}

// consumeLoop processes deliveries until StopChan is closed
func (c *Consumer) consumeLoop(msgs <-chan amqp.Delivery) {
	defer func() {
		close(c.DoneChan)
	}()

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				log.Printf("Tenant %s: delivery channel closed", c.TenantID)
				return
			}
			c.handle(msg)

		case <-c.StopChan:
			log.Printf("Stopping dispatcher for tenant %s...", c.TenantID)
			_ = c.Channel.Cancel(c.ConsumerTag, false)
			return
		}
	}
}

func (c *Consumer) handle(msg amqp.Delivery) {
	var env messaging.Envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		log.Printf("Tenant %s: malformed envelope: %v", c.TenantID, err)
		_ = msg.Reject(false) // straight to DLQ
		return
	}

	accepted := c.Pool.Submit(env, func(err error) {
		if err != nil {
			log.Printf("Tenant %s: dispatch %s failed: %v", c.TenantID, env.Kind, err)
			_ = msg.Reject(false)
			return
		}
		_ = msg.Ack(false)
	})
	if !accepted {
		_ = msg.Nack(false, true) // requeue for the next dispatcher
	}
}

// Stop signals the consumer to stop and waits for cleanup
func (c *Consumer) Stop() {
	close(c.StopChan)
	<-c.DoneChan
	c.Pool.Stop()
	_ = c.Channel.Close()
	log.Printf("Stopped dispatcher for tenant %s", c.TenantID)
}

func (c *Consumer) SetWorkerCount(n int) {
	c.Pool.SetWorkerCount(n)
}
