// internal/model/message.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Status is the closed delivery-state vocabulary. Three lifecycles
// (template/text/media) share the provider event vocabulary, plus the
// terminal auto-response state and the inbound resting state.
type Status string

const (
	StatusReceived Status = "received"

	StatusTemplateSent      Status = "template_sent"
	StatusTemplateDelivered Status = "template_delivered"
	StatusTemplateRead      Status = "template_read"
	StatusTemplateFailed    Status = "template_failed"

	StatusSent             Status = "sent"
	StatusMessageDelivered Status = "message_delivered"
	StatusMessageRead      Status = "message_read"
	StatusMessageFailed    Status = "message_failed"

	StatusMediaSent      Status = "media_sent"
	StatusMediaDelivered Status = "media_delivered"
	StatusMediaRead      Status = "media_read"
	StatusMediaFailed    Status = "media_failed"

	StatusAutoResponseDelivered Status = "autoresponse_delivered"
)

// Message is one unit of conversation history. ProviderMessageID together
// with CompanyID is the dedupe key under at-least-once webhook delivery.
// Timestamps are naive local time in the configured zone.
type Message struct {
	ID                uuid.UUID  `db:"id"`
	ProviderMessageID *string    `db:"last_message_uid"`
	CompanyID         *uuid.UUID `db:"company_id"`
	SenderPhone       string     `db:"sender_phone"`
	Direction         Direction  `db:"direction"`
	Body              string     `db:"body"`
	Status            Status     `db:"status"`
	ChatID            *string    `db:"chat_id"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
	IsDeleted         bool       `db:"is_deleted"`
}
