package twilio

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"wahub/internal/model"
)

func newTestAdapter() *Adapter {
	return NewAdapter("token-abc", "https://hub.example.com")
}

func baseForm() url.Values {
	form := url.Values{}
	form.Set("MessageSid", "SM0001")
	form.Set("From", "whatsapp:+34600111222")
	form.Set("To", "whatsapp:+34911222333")
	form.Set("WaId", "34600111222")
	form.Set("ProfileName", "Ana")
	return form
}

func singleMessage(t *testing.T, p model.WebhookPayload) model.InboundMessage {
	t.Helper()
	msgs := messages(t, p)
	require.Len(t, msgs, 1)
	return msgs[0]
}

func messages(t *testing.T, p model.WebhookPayload) []model.InboundMessage {
	t.Helper()
	require.Len(t, p.Entry, 1)
	require.Len(t, p.Entry[0].Changes, 1)
	return p.Entry[0].Changes[0].Value.Messages
}

func TestNormalizeText(t *testing.T) {
	form := baseForm()
	form.Set("Body", "hola")

	p := newTestAdapter().Normalize(form, 1700000000)
	v := p.Entry[0].Changes[0].Value
	require.Equal(t, "whatsapp", v.MessagingProduct)
	require.Equal(t, "34911222333", v.Metadata.DisplayPhoneNumber)
	require.Equal(t, "tw-34911222333", v.Metadata.PhoneNumberID)

	m := singleMessage(t, p)
	require.Equal(t, model.TypeText, m.Type)
	require.Equal(t, "34600111222", m.From)
	require.Equal(t, "SM0001", m.ID)
	require.Equal(t, "1700000000", m.Timestamp)
	require.Equal(t, "hola", m.Text.Body)
}

func TestNormalizeMediaWithBodyEmitsTwoMessages(t *testing.T) {
	form := baseForm()
	form.Set("Body", "mira esto")
	form.Set("NumMedia", "1")
	form.Set("MediaUrl0", "https://api.twilio.com/media/ME1")
	form.Set("MediaContentType0", "image/jpeg")

	msgs := messages(t, newTestAdapter().Normalize(form, 1700000000))
	require.Len(t, msgs, 2)

	img, txt := msgs[0], msgs[1]
	require.Equal(t, model.TypeImage, img.Type)
	require.Equal(t, "https://api.twilio.com/media/ME1", img.Image.Link)
	require.Equal(t, model.TypeText, txt.Type)
	require.Equal(t, "mira esto", txt.Text.Body)

	require.Equal(t, img.From, txt.From)
	require.Equal(t, img.Timestamp, txt.Timestamp)
	require.Equal(t, img.ID+"-text", txt.ID)
}

func TestNormalizeVCard(t *testing.T) {
	form := baseForm()
	form.Set("NumMedia", "1")
	form.Set("MediaUrl0", "https://api.twilio.com/media/ME2")
	form.Set("MediaContentType0", "text/vcard")

	m := singleMessage(t, newTestAdapter().Normalize(form, 1700000000))
	require.Equal(t, model.TypeContacts, m.Type)
	require.Len(t, m.Contacts, 1)
	require.Equal(t, "Ana", m.Contacts[0].Name.FormattedName)
	require.Equal(t, "https://api.twilio.com/media/ME2", m.Contacts[0].VcardURL)
}

func TestNormalizeButtonReply(t *testing.T) {
	form := baseForm()
	form.Set("ButtonText", "Confirmar")
	form.Set("ButtonPayload", "confirm-1")

	m := singleMessage(t, newTestAdapter().Normalize(form, 1700000000))
	require.Equal(t, model.TypeInteractive, m.Type)
	require.Equal(t, "button_reply", m.Interactive.Type)
	require.Equal(t, "confirm-1", m.Interactive.ButtonReply.ID)
	require.Equal(t, "Confirmar", m.Interactive.ButtonReply.Title)
}

func TestNormalizeListReply(t *testing.T) {
	form := baseForm()
	form.Set("ListId", "opt-2")
	form.Set("ListTitle", "Opción dos")
	form.Set("ListValue", "dos")

	m := singleMessage(t, newTestAdapter().Normalize(form, 1700000000))
	require.Equal(t, model.TypeInteractive, m.Type)
	require.Equal(t, "list_reply", m.Interactive.Type)
	require.Equal(t, "dos", m.Interactive.ListReply.ID)
	require.Equal(t, "Opción dos", m.Interactive.ListReply.Title)
}

func TestNormalizeLocation(t *testing.T) {
	form := baseForm()
	form.Set("Latitude", "40.4168")
	form.Set("Longitude", "-3.7038")

	m := singleMessage(t, newTestAdapter().Normalize(form, 1700000000))
	require.Equal(t, model.TypeLocation, m.Type)
	require.InDelta(t, 40.4168, m.Location.Latitude, 0.0001)
	require.InDelta(t, -3.7038, m.Location.Longitude, 0.0001)
}

func TestNormalizeEmptyDegradesToPlaceholder(t *testing.T) {
	m := singleMessage(t, newTestAdapter().Normalize(baseForm(), 1700000000))
	require.Equal(t, model.TypeText, m.Type)
	require.Equal(t, placeholderBody, m.Text.Body)
}

func TestNormalizeStatusCallback(t *testing.T) {
	form := baseForm()
	form.Set("MessageStatus", "delivered")

	p := newTestAdapter().Normalize(form, 1700000000)
	v := p.Entry[0].Changes[0].Value
	require.Empty(t, v.Messages)
	require.Len(t, v.Statuses, 1)

	su := v.Statuses[0]
	require.Equal(t, "SM0001", su.ID)
	require.Equal(t, model.EventDelivered, su.Status)
	require.Equal(t, "34911222333", su.RecipientID)
	require.Empty(t, su.Errors)
}

func TestNormalizeFailedStatusCarriesError(t *testing.T) {
	form := baseForm()
	form.Set("MessageStatus", "undelivered")
	form.Set("ErrorCode", "63016")
	form.Set("ErrorMessage", "outside the allowed window")

	su := newTestAdapter().Normalize(form, 1700000000).Entry[0].Changes[0].Value.Statuses[0]
	require.Equal(t, model.EventFailed, su.Status)
	require.Len(t, su.Errors, 1)
	require.Equal(t, 63016, su.Errors[0].Code)
	require.Equal(t, "outside the allowed window", su.Errors[0].Title)
}

func TestVerifyRequest(t *testing.T) {
	a := newTestAdapter()
	form := baseForm()
	form.Set("Body", "hola")

	r, err := http.NewRequest(http.MethodPost, "https://internal:9999/webhookT", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	// Twilio signs the public URL, not whatever host the proxy rewrote.
	sig := ComputeSignature("token-abc", "https://hub.example.com/webhookT", form)
	r.Header.Set("X-Twilio-Signature", sig)
	require.NoError(t, a.VerifyRequest(r, form))

	r.Header.Set("X-Twilio-Signature", "AAAA"+sig[4:])
	require.ErrorIs(t, a.VerifyRequest(r, form), ErrInvalidSignature)

	r.Header.Del("X-Twilio-Signature")
	require.ErrorIs(t, a.VerifyRequest(r, form), ErrInvalidSignature)
}
