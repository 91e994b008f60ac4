package api

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	httpSwagger "github.com/swaggo/http-swagger"

	"wahub/internal/auth"
	"wahub/internal/metrics"
	"wahub/internal/model"
	"wahub/internal/phone"
)

type CredentialsRequest struct {
	Name          string `json:"name"`
	AccessToken   string `json:"access_token"`
	PhoneNumberID string `json:"phone_number_id"`
	BusinessID    string `json:"business_id"`
}

type ConcurrencyConfig struct {
	Workers int `json:"workers"`
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	// Public: provider webhooks and operational plumbing
	r.Get("/webhook", a.Webhooks.HandleVerify)
	r.Post("/webhook", a.Webhooks.HandleNative)
	r.Post("/webhookT", a.Webhooks.HandleTwilio)
	r.Get("/healthz", a.Health)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/swagger/*", httpSwagger.Handler())

	r.Post("/companies", a.CreateCompany)
	r.Delete("/companies/{id}", a.DeleteCompany)

	// Secured: company-scoped ops
	r.Group(func(r chi.Router) {
		r.Use(auth.JWTAuthMiddleware)

		r.Put("/companies/credentials", a.UpsertCredentials)
		r.Post("/companies/cache/invalidate", a.InvalidateCache)
		r.Put("/companies/dispatcher/concurrency", a.UpdateConcurrency)
		r.Post("/messages/send", a.SendMessage)
	})

	return r
}

// @Summary Health check
// @Tags Ops
// @Success 200 {string} string
// @Router /healthz [get]
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	if err := a.Storage.DB.Ping(); err != nil {
		http.Error(w, "db unreachable", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok"))
}

// @Summary Register a company
// @Tags Companies
// @Produce json
// @Success 200 {object} map[string]string
// @Router /companies [post]
func (a *API) CreateCompany(w http.ResponseWriter, r *http.Request) {
	id := uuid.New()

	if err := a.Storage.UpsertCompanyCredentials(&model.Company{ID: id, Concurrency: a.Cfg.Workers}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := a.TenantMgr.EnsureTenant(id, a.Cfg.Workers); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	token, err := auth.GenerateToken(id.String())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	log.Printf("API: Created company %s", id)
	json.NewEncoder(w).Encode(map[string]string{
		"company_id": id.String(),
		"token":      token,
	})
}

// @Summary Delete a company
// @Tags Companies
// @Param id path string true "Company UUID"
// @Success 204
// @Router /companies/{id} [delete]
func (a *API) DeleteCompany(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "invalid company id", http.StatusBadRequest)
		return
	}

	_ = a.TenantMgr.RemoveTenant(id)
	if err := a.Storage.DeleteCompany(id); err != nil {
		log.Printf("API: failed to delete company row %s: %v", id, err)
	}
	a.Resolver.Invalidate(id)

	log.Printf("API: Deleted company %s", id)
	w.WriteHeader(http.StatusNoContent)
}

// @Summary Upsert the company's WhatsApp credentials
// @Tags Companies
// @Security ApiKeyAuth
// @Param body body CredentialsRequest true "Credentials"
// @Success 204
// @Router /companies/credentials [put]
func (a *API) UpsertCredentials(w http.ResponseWriter, r *http.Request) {
	id, ok := a.tokenCompany(w, r)
	if !ok {
		return
	}

	var body CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if body.AccessToken == "" || body.PhoneNumberID == "" {
		http.Error(w, "access_token and phone_number_id are required", http.StatusBadRequest)
		return
	}

	err := a.Storage.UpsertCompanyCredentials(&model.Company{
		ID:            id,
		Name:          body.Name,
		AccessToken:   body.AccessToken,
		PhoneNumberID: body.PhoneNumberID,
		BusinessID:    body.BusinessID,
		Concurrency:   a.Cfg.Workers,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Cached credentials are stale the moment the row changes.
	a.Resolver.Invalidate(id)
	if err := a.TenantMgr.EnsureTenant(id, a.Cfg.Workers); err != nil {
		log.Printf("API: dispatcher start for %s: %v", id, err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary Drop the company's cached credentials
// @Tags Companies
// @Security ApiKeyAuth
// @Success 204
// @Router /companies/cache/invalidate [post]
func (a *API) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	id, ok := a.tokenCompany(w, r)
	if !ok {
		return
	}
	a.Resolver.Invalidate(id)
	w.WriteHeader(http.StatusNoContent)
}

// @Summary Update dispatcher concurrency
// @Tags Companies
// @Security ApiKeyAuth
// @Param body body ConcurrencyConfig true "Concurrency config"
// @Success 204
// @Router /companies/dispatcher/concurrency [put]
func (a *API) UpdateConcurrency(w http.ResponseWriter, r *http.Request) {
	id, ok := a.tokenCompany(w, r)
	if !ok {
		return
	}

	var body ConcurrencyConfig
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Workers <= 0 {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	if err := a.TenantMgr.SetWorkerCount(id.String(), body.Workers); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type SendMessageRequest struct {
	To            string   `json:"to"`
	Type          string   `json:"type"` // text | template | media
	Body          string   `json:"body,omitempty"`
	Template      string   `json:"template,omitempty"`
	Language      string   `json:"language,omitempty"`
	Params        []string `json:"params,omitempty"`
	Filename      string   `json:"filename,omitempty"`
	MimeType      string   `json:"mime_type,omitempty"`
	ContentBase64 string   `json:"content_base64,omitempty"`
	Caption       string   `json:"caption,omitempty"`
}

// @Summary Send an outbound message as the authenticated company
// @Tags Messages
// @Security ApiKeyAuth
// @Param body body SendMessageRequest true "Message"
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /messages/send [post]
func (a *API) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := a.tokenCompany(w, r)
	if !ok {
		return
	}

	var body SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	to := phone.Strip(body.To)
	if !phone.IsValidLocal(to) {
		http.Error(w, "invalid phone", http.StatusBadRequest)
		return
	}

	var sent bool
	var providerID string
	switch body.Type {
	case "text":
		if body.Body == "" {
			http.Error(w, "body is required", http.StatusBadRequest)
			return
		}
		sent, providerID = a.Sender.SendText(to, body.Body, &id)
	case "template":
		if body.Template == "" {
			http.Error(w, "template is required", http.StatusBadRequest)
			return
		}
		lang := body.Language
		if lang == "" {
			lang = "es"
		}
		sent, providerID = a.Sender.SendTemplate(to, body.Template, lang, body.Params, &id)
	case "media":
		content, err := base64.StdEncoding.DecodeString(body.ContentBase64)
		if err != nil || len(content) == 0 {
			http.Error(w, "content_base64 is required", http.StatusBadRequest)
			return
		}
		sent, providerID = a.Sender.SendMedia(to, content, body.Filename, body.MimeType, body.Caption, &id)
	default:
		http.Error(w, "unknown message type", http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"sent":                sent,
		"provider_message_id": providerID,
	})
}

func (a *API) tokenCompany(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(auth.GetCompanyID(r))
	if err != nil {
		http.Error(w, "unauthorized company", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	return id, true
}
