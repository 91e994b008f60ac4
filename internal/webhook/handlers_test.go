package webhook

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"wahub/internal/twilio"
)

const (
	testAuthToken = "token-abc"
	testBaseURL   = "https://hub.example.com"
)

func newTestHandler(store *fakeStore) *Handler {
	orch := NewOrchestrator(store, &fakeResolver{}, nil)
	return NewHandler(orch, twilio.NewAdapter(testAuthToken, testBaseURL), "verify-me")
}

func TestVerifyChallenge(t *testing.T) {
	h := newTestHandler(newFakeStore())

	r := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil)
	w := httptest.NewRecorder()
	h.HandleVerify(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "12345", w.Body.String())

	r = httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	w = httptest.NewRecorder()
	h.HandleVerify(w, r)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestNativeWebhookAcknowledges(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store)

	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"field":"messages","value":{"messages":[{"id":"wamid.h1","from":"34600111222","type":"text","text":{"body":"hola"}}]}}]}]}`
	r := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.HandleNative(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "EVENT_RECEIVED", w.Body.String())
	require.Len(t, store.rows, 1)
}

func TestNativeWebhookRejectsMalformedBody(t *testing.T) {
	h := newTestHandler(newFakeStore())

	for _, body := range []string{"not json", "{}"} {
		r := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
		w := httptest.NewRecorder()
		h.HandleNative(w, r)
		require.Equal(t, http.StatusBadRequest, w.Code)
	}
}

func TestNativeWebhookAcknowledgesInternalFailures(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("db down")
	h := newTestHandler(store)

	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"field":"messages","value":{"messages":[{"id":"wamid.h2","from":"34600111222","type":"text","text":{"body":"hola"}}]}}]}]}`
	r := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.HandleNative(w, r)

	// Internal failures must not trigger provider retries.
	require.Equal(t, http.StatusOK, w.Code)
}

func signedTwilioRequest(t *testing.T, form url.Values) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/webhookT", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	sig := twilio.ComputeSignature(testAuthToken, testBaseURL+"/webhookT", form)
	r.Header.Set("X-Twilio-Signature", sig)
	return r
}

func TestTwilioWebhookAccepted(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store)

	form := url.Values{}
	form.Set("MessageSid", "SM9001")
	form.Set("From", "whatsapp:+34600111222")
	form.Set("To", "whatsapp:+34911222333")
	form.Set("Body", "hola")

	w := httptest.NewRecorder()
	h.HandleTwilio(w, signedTwilioRequest(t, form))
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.rows, 1)
}

func TestTwilioWebhookRejectsBadSignature(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store)

	form := url.Values{}
	form.Set("MessageSid", "SM9002")
	form.Set("Body", "hola")

	r := httptest.NewRequest(http.MethodPost, "/webhookT", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("X-Twilio-Signature", "bogus")

	w := httptest.NewRecorder()
	h.HandleTwilio(w, r)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Empty(t, store.rows)
}

func TestTwilioWebhookRejectsMissingMessageSid(t *testing.T) {
	h := newTestHandler(newFakeStore())

	form := url.Values{}
	form.Set("Body", "hola")

	w := httptest.NewRecorder()
	h.HandleTwilio(w, signedTwilioRequest(t, form))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
