// internal/model/tenant.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// Company is a tenant owning its own WhatsApp credentials and conversations.
type Company struct {
	ID            uuid.UUID `db:"id"`
	Name          string    `db:"name"`
	AccessToken   string    `db:"access_token"`
	PhoneNumberID string    `db:"phone_number_id"`
	BusinessID    string    `db:"business_id"`
	Concurrency   int       `db:"concurrency"`
	CreatedAt     time.Time `db:"created_at"`
}

// Credentials is the ephemeral, cacheable resolution result. CompanyID is
// nil when the process-wide default credentials are in use.
type Credentials struct {
	CompanyID     *uuid.UUID
	AccessToken   string
	PhoneNumberID string
	BusinessID    string
	BaseURL       string
}

// Complete reports whether the credentials can drive Graph API calls.
// Incomplete credentials are treated as stale and trigger the default
// fallback.
func (c Credentials) Complete() bool {
	return c.AccessToken != "" && c.PhoneNumberID != ""
}

// TokenPreview returns a fixed-length prefix safe for logs.
func (c Credentials) TokenPreview() string {
	if len(c.AccessToken) <= 8 {
		return "********"
	}
	return c.AccessToken[:8] + "..."
}
