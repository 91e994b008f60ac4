// internal/whatsapp/client.go

// Package whatsapp is the outbound Cloud (Graph) API client. Calls are
// single-attempt with a bounded timeout; failures are reported as
// UpstreamError and never retried here.
package whatsapp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"wahub/internal/metrics"
	"wahub/internal/model"
)

type Client struct {
	http *http.Client
}

func NewClient() *Client {
	return &Client{
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// UpstreamError captures a provider HTTP failure with enough context to
// log. Bodies are truncated; tokens never appear in it.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("whatsapp %s: status %d: %s", e.Op, e.Status, e.Body)
}

func upstreamErr(op string, status int, body []byte) error {
	metrics.UpstreamFailures.WithLabelValues("whatsapp").Inc()
	b := string(body)
	if len(b) > 512 {
		b = b[:512]
	}
	return &UpstreamError{Op: op, Status: status, Body: b}
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendMessage posts one message payload to the tenant's phone-number
// endpoint and returns the provider message id.
func (c *Client) SendMessage(creds model.Credentials, payload map[string]any) (string, error) {
	payload["messaging_product"] = "whatsapp"

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", creds.BaseURL, creds.PhoneNumberID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("whatsapp").Inc()
		return "", fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", upstreamErr("send", resp.StatusCode, respBody)
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil || len(parsed.Messages) == 0 {
		return "", fmt.Errorf("send message: unexpected response %q", respBody)
	}
	return parsed.Messages[0].ID, nil
}

// SendText sends a plain text message. to is in dial format.
func (c *Client) SendText(creds model.Credentials, to, body string) (string, error) {
	return c.SendMessage(creds, map[string]any{
		"to":   to,
		"type": "text",
		"text": map[string]any{"body": body},
	})
}

// SendTemplate sends a named template in the given language with ordered
// body parameters.
func (c *Client) SendTemplate(creds model.Credentials, to, name, lang string, params []string) (string, error) {
	tpl := map[string]any{
		"name":     name,
		"language": map[string]any{"code": lang},
	}
	if len(params) > 0 {
		var ps []map[string]any
		for _, p := range params {
			ps = append(ps, map[string]any{"type": "text", "text": p})
		}
		tpl["components"] = []map[string]any{{"type": "body", "parameters": ps}}
	}
	return c.SendMessage(creds, map[string]any{
		"to":       to,
		"type":     "template",
		"template": tpl,
	})
}

// UploadMedia pushes bytes to the tenant's media endpoint and returns the
// provider-side media id.
func (c *Client) UploadMedia(creds model.Credentials, content []byte, filename, mimeType string) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("messaging_product", "whatsapp"); err != nil {
		return "", err
	}
	if err := w.WriteField("type", mimeType); err != nil {
		return "", err
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(content); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s/media", creds.BaseURL, creds.PhoneNumberID)
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("whatsapp").Inc()
		return "", fmt.Errorf("upload media: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", upstreamErr("upload media", resp.StatusCode, respBody)
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil || parsed.ID == "" {
		return "", fmt.Errorf("upload media: unexpected response %q", respBody)
	}
	return parsed.ID, nil
}

// ResolveMediaURL asks the Graph API for the time-limited signed URL of a
// provider media id.
func (c *Client) ResolveMediaURL(creds model.Credentials, mediaID string) (url, mimeType string, err error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/%s", creds.BaseURL, mediaID), nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("whatsapp").Inc()
		return "", "", fmt.Errorf("resolve media url: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", upstreamErr("resolve media", resp.StatusCode, respBody)
	}

	var parsed struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil || parsed.URL == "" {
		return "", "", fmt.Errorf("resolve media url: unexpected response %q", respBody)
	}
	return parsed.URL, parsed.MimeType, nil
}

// FetchMedia downloads the bytes behind a signed media URL. The signed
// URL still requires the tenant token.
func (c *Client) FetchMedia(creds model.Credentials, signedURL string) ([]byte, string, error) {
	req, err := http.NewRequest(http.MethodGet, signedURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("whatsapp").Inc()
		return nil, "", fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", upstreamErr("fetch media", resp.StatusCode, respBody)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media: read body: %w", err)
	}
	log.Printf("[WhatsApp] fetched media %d bytes (token %s)", len(content), creds.TokenPreview())
	return content, resp.Header.Get("Content-Type"), nil
}
