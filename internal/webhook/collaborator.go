// internal/webhook/collaborator.go
package webhook

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"wahub/internal/messaging"
	"wahub/internal/model"
)

// EventPublisher is the shipped Collaborator: it forwards persisted
// records onto the per-tenant event feed where the out-of-process
// collaborators (CRM annotation, lead routing, auto-reply) consume them.
// Unattributed messages have no tenant queue and are skipped.
type EventPublisher struct {
	rabbit *messaging.RabbitClient
}

func NewEventPublisher(rabbit *messaging.RabbitClient) *EventPublisher {
	return &EventPublisher{rabbit: rabbit}
}

func (p *EventPublisher) OnMessagePersisted(companyID *uuid.UUID, msg model.InboundMessage, created bool) {
	if companyID == nil {
		return
	}
	kind := messaging.KindMessageReceived
	if !created {
		kind = messaging.KindMessageUpdated
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[Events] marshal message %s: %v", msg.ID, err)
		return
	}
	p.publish(messaging.Envelope{
		Kind:      kind,
		TenantID:  companyID.String(),
		MessageID: msg.ID,
		Payload:   payload,
	})
}

func (p *EventPublisher) OnStatusChanged(m *model.Message, event model.StatusEvent) {
	if m.CompanyID == nil || m.ProviderMessageID == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{
		"status": string(m.Status),
		"event":  string(event),
	})
	if err != nil {
		return
	}
	p.publish(messaging.Envelope{
		Kind:      messaging.KindStatusChanged,
		TenantID:  m.CompanyID.String(),
		MessageID: *m.ProviderMessageID,
		Payload:   payload,
	})
}

func (p *EventPublisher) publish(env messaging.Envelope) {
	env.EmittedAt = time.Now()
	if err := p.rabbit.PublishEnvelope(env); err != nil {
		// Collaborator delivery is best effort; the message row is the
		// source of truth.
		log.Printf("[Events] publish %s for tenant %s: %v", env.Kind, env.TenantID, err)
	}
}
