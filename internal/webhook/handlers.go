// internal/webhook/handlers.go
package webhook

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"wahub/internal/model"
	"wahub/internal/twilio"
)

// Handler owns the two webhook entry points. Internally-handled errors
// answer 200 so the provider does not retry and duplicate side effects;
// only a bad signature (403) or malformed required fields (400) refuse.
type Handler struct {
	orch        *Orchestrator
	adapter     *twilio.Adapter
	verifyToken string
}

func NewHandler(orch *Orchestrator, adapter *twilio.Adapter, verifyToken string) *Handler {
	return &Handler{orch: orch, adapter: adapter, verifyToken: verifyToken}
}

// HandleVerify answers the Cloud API webhook subscription challenge.
// @Summary Webhook verification challenge
// @Tags Webhooks
// @Param hub.mode query string true "subscribe"
// @Param hub.verify_token query string true "Configured verify token"
// @Param hub.challenge query string true "Echo value"
// @Success 200 {string} string
// @Router /webhook [get]
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == h.verifyToken {
		w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	http.Error(w, "verification failed", http.StatusForbidden)
}

// HandleNative ingests the Cloud-API-format webhook.
// @Summary Native Cloud API webhook
// @Tags Webhooks
// @Accept json
// @Success 200 {string} string
// @Router /webhook [post]
func (h *Handler) HandleNative(w http.ResponseWriter, r *http.Request) {
	var payload model.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Object == "" {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	if err := h.orch.HandleCanonicalEvent(payload, "cloud"); err != nil {
		// Suppress provider retries; the failure is already logged.
		log.Printf("[Webhook] native delivery: %v", err)
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("EVENT_RECEIVED"))
}

// HandleTwilio ingests the Twilio-format webhook after signature
// validation.
// @Summary Twilio-format webhook
// @Tags Webhooks
// @Accept x-www-form-urlencoded
// @Success 200 {string} string
// @Failure 403 {string} string
// @Router /webhookT [post]
func (h *Handler) HandleTwilio(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}
	if err := h.adapter.VerifyRequest(r, r.PostForm); err != nil {
		if errors.Is(err, twilio.ErrInvalidSignature) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("MessageSid") == "" {
		http.Error(w, "missing MessageSid", http.StatusBadRequest)
		return
	}

	payload := h.adapter.Normalize(r.PostForm, time.Now().Unix())
	if err := h.orch.HandleCanonicalEvent(payload, "twilio"); err != nil {
		log.Printf("[Webhook] twilio delivery: %v", err)
	}
	w.WriteHeader(http.StatusOK)
}
