// internal/model/event.go
package model

import "encoding/json"

// Canonical event shapes. Both providers converge on the Cloud API webhook
// structure; the Twilio adapter synthesizes the metadata fields so storage
// keys stay stable across repeated callbacks.

type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         Metadata         `json:"metadata"`
	Contacts         []Contact        `json:"contacts,omitempty"`
	Messages         []InboundMessage `json:"messages,omitempty"`
	Statuses         []StatusUpdate   `json:"statuses,omitempty"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Contact struct {
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
	WaID string `json:"wa_id"`
}

// MessageType tags the canonical message union.
type MessageType string

const (
	TypeText        MessageType = "text"
	TypeImage       MessageType = "image"
	TypeAudio       MessageType = "audio"
	TypeVideo       MessageType = "video"
	TypeDocument    MessageType = "document"
	TypeSticker     MessageType = "sticker"
	TypeLocation    MessageType = "location"
	TypeContacts    MessageType = "contacts"
	TypeInteractive MessageType = "interactive"
	TypeUnsupported MessageType = "unsupported"
)

// InboundMessage is one canonical message. Exactly one of the payload
// pointers matching Type is set; anything else is malformed and downgraded
// to a placeholder text by the parsers rather than rejected.
type InboundMessage struct {
	From        string            `json:"from"`
	ID          string            `json:"id"`
	Timestamp   string            `json:"timestamp"`
	Type        MessageType       `json:"type"`
	Text        *TextBody         `json:"text,omitempty"`
	Image       *MediaBody        `json:"image,omitempty"`
	Audio       *MediaBody        `json:"audio,omitempty"`
	Video       *MediaBody        `json:"video,omitempty"`
	Document    *MediaBody        `json:"document,omitempty"`
	Sticker     *MediaBody        `json:"sticker,omitempty"`
	Location    *LocationBody     `json:"location,omitempty"`
	Contacts    []ContactCard     `json:"contacts,omitempty"`
	Interactive *InteractiveReply `json:"interactive,omitempty"`
}

type TextBody struct {
	Body string `json:"body"`
}

type MediaBody struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type LocationBody struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

type ContactCard struct {
	Name struct {
		FormattedName string `json:"formatted_name"`
		FirstName     string `json:"first_name,omitempty"`
	} `json:"name"`
	Phones []struct {
		Phone string `json:"phone"`
		WaID  string `json:"wa_id,omitempty"`
		Type  string `json:"type,omitempty"`
	} `json:"phones,omitempty"`
	// VcardURL carries the provider-hosted vCard location for adapters
	// that deliver contact cards by URL instead of inline fields.
	VcardURL string `json:"vcard_url,omitempty"`
}

type InteractiveReply struct {
	Type        string `json:"type"` // button_reply | list_reply
	ButtonReply *Reply `json:"button_reply,omitempty"`
	ListReply   *Reply `json:"list_reply,omitempty"`
}

type Reply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// StatusEvent is the shared provider event vocabulary consumed by the
// transition table.
type StatusEvent string

const (
	EventSent      StatusEvent = "sent"
	EventDelivered StatusEvent = "delivered"
	EventRead      StatusEvent = "read"
	EventFailed    StatusEvent = "failed"
)

type StatusUpdate struct {
	ID           string      `json:"id"`
	Status       StatusEvent `json:"status"`
	Timestamp    string      `json:"timestamp"`
	RecipientID  string      `json:"recipient_id"`
	Errors       []StatusErr `json:"errors,omitempty"`
	Conversation *struct {
		ID string `json:"id"`
	} `json:"conversation,omitempty"`
}

type StatusErr struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}

// RawBody serializes the non-text payload of a message for storage in the
// message body column.
func (m InboundMessage) RawBody() string {
	if m.Type == TypeText && m.Text != nil {
		return m.Text.Body
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
