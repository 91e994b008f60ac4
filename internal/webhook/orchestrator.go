// internal/webhook/orchestrator.go

// Package webhook sequences the ingest pipeline: canonical event in,
// tenant resolution, idempotent persistence, status transitions, then
// collaborator notification. Both provider entry points funnel into
// HandleCanonicalEvent; there is no request forwarding between handlers.
package webhook

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	"wahub/internal/metrics"
	"wahub/internal/model"
	"wahub/internal/phone"
)

// Store is the slice of the persistence layer the orchestrator drives.
type Store interface {
	SaveInbound(m model.InboundMessage, companyID *uuid.UUID, chatID *string) (bool, error)
	UpdateStatus(providerMessageID string, event model.StatusEvent, companyID *uuid.UUID) (*model.Message, error)
}

// Resolver attaches tenant context to events.
type Resolver interface {
	ResolveCompany(phoneDigits string) (*uuid.UUID, string)
	ResolveCredentials(phoneDigits string, companyID *uuid.UUID) model.Credentials
}

// MediaIngestor archives provider-hosted media into object storage.
type MediaIngestor interface {
	IngestInbound(msg *model.InboundMessage, creds model.Credentials) error
}

// Collaborator is the hook surface for downstream consumers (auto-reply,
// flow-exit, CRM annotation). Implementations must not block the webhook
// path for long; failures are theirs to log.
type Collaborator interface {
	OnMessagePersisted(companyID *uuid.UUID, msg model.InboundMessage, created bool)
	OnStatusChanged(m *model.Message, event model.StatusEvent)
}

type Orchestrator struct {
	store         Store
	resolver      Resolver
	media         MediaIngestor
	collaborators []Collaborator
}

// NewOrchestrator wires the pipeline. media may be nil when no object
// storage is configured; inbound media then stays provider-hosted.
func NewOrchestrator(store Store, resolver Resolver, media MediaIngestor, collaborators ...Collaborator) *Orchestrator {
	return &Orchestrator{
		store:         store,
		resolver:      resolver,
		media:         media,
		collaborators: collaborators,
	}
}

// HandleCanonicalEvent processes one canonical webhook payload. Individual
// message failures are logged and do not abort the remaining items; the
// returned error summarizes whether anything failed so handlers can log
// it, never to change the HTTP response.
func (o *Orchestrator) HandleCanonicalEvent(p model.WebhookPayload, provider string) error {
	var failed int
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			v := change.Value

			for _, su := range v.Statuses {
				metrics.WebhooksReceived.WithLabelValues(provider, "status").Inc()
				if err := o.applyStatus(su); err != nil {
					log.Printf("[Webhook] status %s: %v", su.ID, err)
					failed++
				}
			}
			for _, msg := range v.Messages {
				metrics.WebhooksReceived.WithLabelValues(provider, "message").Inc()
				if err := o.saveMessage(msg); err != nil {
					log.Printf("[Webhook] message %s: %v", msg.ID, err)
					failed++
				}
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("processed with %d failed items", failed)
	}
	return nil
}

func (o *Orchestrator) applyStatus(su model.StatusUpdate) error {
	// Status events describe outbound sends, so the recipient is the
	// customer whose phone attributes the tenant.
	companyID, _ := o.resolver.ResolveCompany(phone.Strip(su.RecipientID))

	m, err := o.store.UpdateStatus(su.ID, su.Status, companyID)
	if err != nil {
		return err
	}
	if m == nil {
		// Stale, duplicate, unknown id or inbound row. Successful no-op.
		metrics.StatusTransitions.WithLabelValues("noop").Inc()
		return nil
	}
	metrics.StatusTransitions.WithLabelValues("applied").Inc()
	for _, c := range o.collaborators {
		c.OnStatusChanged(m, su.Status)
	}
	return nil
}

func (o *Orchestrator) saveMessage(msg model.InboundMessage) error {
	sender := phone.Strip(msg.From)
	msg.From = sender

	companyID, dealID := o.resolver.ResolveCompany(sender)
	var chatID *string
	if dealID != "" {
		chatID = &dealID
	}

	if o.media != nil {
		creds := o.resolver.ResolveCredentials(sender, companyID)
		if err := o.media.IngestInbound(&msg, creds); err != nil {
			// Upstream failure: keep the provider-hosted reference and
			// persist anyway.
			log.Printf("[Webhook] media ingest for %s: %v", msg.ID, err)
		}
	}

	created, err := o.store.SaveInbound(msg, companyID, chatID)
	if err != nil {
		return err
	}
	if !created {
		metrics.DuplicateDeliveries.Inc()
		log.Printf("[Webhook] duplicate delivery for %s, updated in place", msg.ID)
	}
	for _, c := range o.collaborators {
		c.OnMessagePersisted(companyID, msg, created)
	}
	return nil
}
