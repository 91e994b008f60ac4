// internal/twilio/adapter.go

// Package twilio translates Twilio's form-encoded WhatsApp webhook into
// the canonical Cloud-API-shaped event. Signature validation gates
// normalization; normalization itself is total — unsupported shapes
// degrade to a placeholder text message so provider retries cannot cause
// duplicate side effects.
package twilio

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"wahub/internal/model"
)

var ErrInvalidSignature = errors.New("invalid twilio signature")

const placeholderBody = "[unsupported message]"

type Adapter struct {
	authToken     string
	publicBaseURL string
}

func NewAdapter(authToken, publicBaseURL string) *Adapter {
	return &Adapter{
		authToken:     authToken,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// VerifyRequest checks the X-Twilio-Signature header against the form as
// Twilio signed it. The URL is rebuilt from the configured public base so
// proxies in front of the service do not break validation.
func (a *Adapter) VerifyRequest(r *http.Request, form url.Values) error {
	sig := r.Header.Get("X-Twilio-Signature")
	if sig == "" {
		return ErrInvalidSignature
	}
	requestURL := a.publicBaseURL + r.URL.RequestURI()
	if !ValidSignature(a.authToken, requestURL, form, sig) {
		return ErrInvalidSignature
	}
	return nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// wirePhone strips Twilio's "whatsapp:+NN..." wrapper down to digits.
func wirePhone(v string) string {
	return digitsOnly(strings.TrimPrefix(v, "whatsapp:"))
}

// Normalize converts one Twilio callback into the canonical webhook
// payload. The phone_number_id is synthesized deterministically from the
// receiving number so storage keys stay stable across repeated callbacks.
func (a *Adapter) Normalize(form url.Values, receivedAtEpoch int64) model.WebhookPayload {
	to := wirePhone(form.Get("To"))
	value := model.ChangeValue{
		MessagingProduct: "whatsapp",
		Metadata: model.Metadata{
			DisplayPhoneNumber: to,
			PhoneNumberID:      "tw-" + to,
		},
	}

	if st := form.Get("MessageStatus"); st != "" {
		value.Statuses = []model.StatusUpdate{a.normalizeStatus(form, receivedAtEpoch)}
	} else {
		value.Messages = a.normalizeMessage(form, receivedAtEpoch)
		if name := form.Get("ProfileName"); name != "" || form.Get("WaId") != "" {
			c := model.Contact{WaID: form.Get("WaId")}
			c.Profile.Name = name
			value.Contacts = []model.Contact{c}
		}
	}

	return model.WebhookPayload{
		Object: "whatsapp_business_account",
		Entry: []model.Entry{{
			ID: value.Metadata.PhoneNumberID,
			Changes: []model.Change{{
				Field: "messages",
				Value: value,
			}},
		}},
	}
}

func mapStatus(twilioStatus string) model.StatusEvent {
	switch twilioStatus {
	case "delivered":
		return model.EventDelivered
	case "read":
		return model.EventRead
	case "failed", "undelivered":
		return model.EventFailed
	default:
		// queued/accepted/sending/sent and anything unknown: the
		// transition table treats "sent" as a no-op.
		return model.EventSent
	}
}

func (a *Adapter) normalizeStatus(form url.Values, receivedAtEpoch int64) model.StatusUpdate {
	su := model.StatusUpdate{
		ID:          form.Get("MessageSid"),
		Status:      mapStatus(form.Get("MessageStatus")),
		Timestamp:   strconv.FormatInt(receivedAtEpoch, 10),
		RecipientID: wirePhone(form.Get("To")),
	}
	if su.Status == model.EventFailed {
		code, _ := strconv.Atoi(form.Get("ErrorCode"))
		su.Errors = []model.StatusErr{{
			Code:  code,
			Title: form.Get("ErrorMessage"),
		}}
	}
	return su
}

func (a *Adapter) normalizeMessage(form url.Values, receivedAtEpoch int64) []model.InboundMessage {
	from := form.Get("WaId")
	if from == "" {
		from = wirePhone(form.Get("From"))
	}
	base := model.InboundMessage{
		From:      from,
		ID:        form.Get("MessageSid"),
		Timestamp: strconv.FormatInt(receivedAtEpoch, 10),
	}
	body := form.Get("Body")

	// Sub-type detection, in priority order.
	switch {
	case form.Get("ButtonPayload") != "" || form.Get("ButtonText") != "":
		m := base
		m.Type = model.TypeInteractive
		m.Interactive = &model.InteractiveReply{
			Type: "button_reply",
			ButtonReply: &model.Reply{
				ID:    form.Get("ButtonPayload"),
				Title: form.Get("ButtonText"),
			},
		}
		return []model.InboundMessage{m}

	case form.Get("ListValue") != "" || form.Get("ListId") != "":
		id := form.Get("ListValue")
		if id == "" {
			id = form.Get("ListId")
		}
		m := base
		m.Type = model.TypeInteractive
		m.Interactive = &model.InteractiveReply{
			Type: "list_reply",
			ListReply: &model.Reply{
				ID:    id,
				Title: form.Get("ListTitle"),
			},
		}
		return []model.InboundMessage{m}

	case form.Get("Latitude") != "" && form.Get("Longitude") != "":
		lat, latErr := strconv.ParseFloat(form.Get("Latitude"), 64)
		lon, lonErr := strconv.ParseFloat(form.Get("Longitude"), 64)
		if latErr != nil || lonErr != nil {
			break
		}
		m := base
		m.Type = model.TypeLocation
		m.Location = &model.LocationBody{Latitude: lat, Longitude: lon}
		return []model.InboundMessage{m}

	default:
		if n, _ := strconv.Atoi(form.Get("NumMedia")); n > 0 {
			return a.normalizeMedia(form, base, body)
		}
	}

	m := base
	m.Type = model.TypeText
	if body == "" {
		body = placeholderBody
	}
	m.Text = &model.TextBody{Body: body}
	return []model.InboundMessage{m}
}

// normalizeMedia maps the first media item; when a text body rides along
// it is emitted as a second, synthetic text message so neither payload is
// lost.
func (a *Adapter) normalizeMedia(form url.Values, base model.InboundMessage, body string) []model.InboundMessage {
	mediaURL := form.Get("MediaUrl0")
	contentType := strings.ToLower(form.Get("MediaContentType0"))

	m := base
	switch {
	case contentType == "text/vcard" || contentType == "text/x-vcard":
		m.Type = model.TypeContacts
		card := model.ContactCard{VcardURL: mediaURL}
		card.Name.FormattedName = form.Get("ProfileName")
		m.Contacts = []model.ContactCard{card}
	case strings.HasPrefix(contentType, "image/"):
		m.Type = model.TypeImage
		m.Image = &model.MediaBody{Link: mediaURL, MimeType: contentType}
	case strings.HasPrefix(contentType, "audio/"):
		m.Type = model.TypeAudio
		m.Audio = &model.MediaBody{Link: mediaURL, MimeType: contentType}
	case strings.HasPrefix(contentType, "video/"):
		m.Type = model.TypeVideo
		m.Video = &model.MediaBody{Link: mediaURL, MimeType: contentType}
	default:
		m.Type = model.TypeDocument
		m.Document = &model.MediaBody{Link: mediaURL, MimeType: contentType}
	}

	out := []model.InboundMessage{m}
	if body != "" {
		t := base
		t.ID = fmt.Sprintf("%s-text", base.ID)
		t.Type = model.TypeText
		t.Text = &model.TextBody{Body: body}
		out = append(out, t)
	}
	return out
}
