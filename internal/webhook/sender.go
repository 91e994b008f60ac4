// internal/webhook/sender.go
package webhook

import (
	"log"

	"github.com/google/uuid"

	"wahub/internal/media"
	"wahub/internal/model"
	"wahub/internal/phone"
	"wahub/internal/whatsapp"
)

// OutboundStore records the messages this system sends.
type OutboundStore interface {
	SaveOutbound(phoneDigits, body string, providerMessageID *string, companyID *uuid.UUID, chatID *string, initial model.Status) (uuid.UUID, error)
}

// Sender performs single-attempt outbound deliveries. Provider failures
// are logged and reported as ok=false; retry policy, if any, belongs to
// the caller.
type Sender struct {
	store    OutboundStore
	resolver Resolver
	graph    *whatsapp.Client
	pipeline *media.Pipeline
}

func NewSender(store OutboundStore, resolver Resolver, graph *whatsapp.Client, pipeline *media.Pipeline) *Sender {
	return &Sender{store: store, resolver: resolver, graph: graph, pipeline: pipeline}
}

// SendText sends a plain text message and records the row. The initial
// status is "sent" on success, "message_failed" otherwise.
func (s *Sender) SendText(phoneDigits, body string, companyID *uuid.UUID) (bool, string) {
	creds := s.resolver.ResolveCredentials(phoneDigits, companyID)
	to := phone.WithCountryCode(phoneDigits)

	providerID, err := s.graph.SendText(creds, to, body)
	return s.record(phoneDigits, body, providerID, err, creds.CompanyID, model.StatusSent, model.StatusMessageFailed)
}

// SendTemplate sends a named template message.
func (s *Sender) SendTemplate(phoneDigits, templateName, lang string, params []string, companyID *uuid.UUID) (bool, string) {
	creds := s.resolver.ResolveCredentials(phoneDigits, companyID)
	to := phone.WithCountryCode(phoneDigits)

	providerID, err := s.graph.SendTemplate(creds, to, templateName, lang, params)
	return s.record(phoneDigits, templateName, providerID, err, creds.CompanyID, model.StatusTemplateSent, model.StatusTemplateFailed)
}

// SendMedia validates, stores and delivers a media payload.
func (s *Sender) SendMedia(phoneDigits string, content []byte, filename, mimeType, caption string, companyID *uuid.UUID) (bool, string) {
	creds := s.resolver.ResolveCredentials(phoneDigits, companyID)
	to := phone.WithCountryCode(phoneDigits)

	asset, err := s.pipeline.Upload(content, filename, mimeType)
	if err != nil {
		log.Printf("[Sender] media upload for %s: %v", phoneDigits, err)
		return false, ""
	}

	providerID, sendErr := s.pipeline.SendMedia(creds, to, content, asset, caption, filename)
	return s.record(phoneDigits, asset.PublicURL, providerID, sendErr, creds.CompanyID, model.StatusMediaSent, model.StatusMediaFailed)
}

func (s *Sender) record(phoneDigits, body, providerID string, sendErr error, companyID *uuid.UUID, okStatus, failStatus model.Status) (bool, string) {
	st := okStatus
	var uid *string
	if sendErr != nil {
		log.Printf("[Sender] delivery to %s failed: %v", phoneDigits, sendErr)
		st = failStatus
	} else if providerID != "" {
		uid = &providerID
	}

	if _, err := s.store.SaveOutbound(phoneDigits, body, uid, companyID, nil, st); err != nil {
		log.Printf("[Sender] failed to record outbound to %s: %v", phoneDigits, err)
	}
	return sendErr == nil, providerID
}
