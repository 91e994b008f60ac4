// internal/tenant/resolver.go

// Package tenant resolves which company owns a conversation and which
// WhatsApp credentials to use for it. Resolution never fails: lookup
// errors are logged and degrade to the process-wide default credentials.
package tenant

import (
	"log"

	"github.com/google/uuid"

	"wahub/internal/cache"
	"wahub/internal/model"
)

// Lookup is the slice of the storage layer the resolver needs.
type Lookup interface {
	LookupCompanyByPhone(phoneDigits string) (uuid.UUID, string, error)
	CompanyByID(id uuid.UUID) (*model.Company, error)
}

type phoneEntry struct {
	companyID uuid.UUID
	dealID    string
}

type Resolver struct {
	lookup   Lookup
	defaults model.Credentials
	phones   *cache.Cache // sender digits -> phoneEntry
	creds    *cache.Cache // company id -> model.Credentials
}

// NewResolver wires the resolver with its two injected caches. defaults
// must carry the env/config fallback credentials; its CompanyID is nil.
func NewResolver(lookup Lookup, defaults model.Credentials, phones, creds *cache.Cache) *Resolver {
	return &Resolver{
		lookup:   lookup,
		defaults: defaults,
		phones:   phones,
		creds:    creds,
	}
}

// ResolveCredentials maps an explicit company id, or the sender phone, to
// credentials. First match wins: explicit id, then the
// phone -> lead -> deal -> company join, then the defaults.
func (r *Resolver) ResolveCredentials(phoneDigits string, companyID *uuid.UUID) model.Credentials {
	if companyID != nil {
		return r.byCompany(*companyID)
	}
	if phoneDigits != "" {
		if id, _ := r.ResolveCompany(phoneDigits); id != nil {
			return r.byCompany(*id)
		}
	}
	return r.defaults
}

// ResolveCompany returns the owning company and deal id for a sender
// phone, or nil when unattributed.
func (r *Resolver) ResolveCompany(phoneDigits string) (*uuid.UUID, string) {
	if phoneDigits == "" {
		return nil, ""
	}
	if v, ok := r.phones.Get(phoneDigits); ok {
		e := v.(phoneEntry)
		return &e.companyID, e.dealID
	}

	companyID, dealID, err := r.lookup.LookupCompanyByPhone(phoneDigits)
	if err != nil {
		log.Printf("[Tenant] phone lookup failed for %s: %v", phoneDigits, err)
		return nil, ""
	}
	if companyID == uuid.Nil {
		return nil, ""
	}
	r.phones.Set(phoneDigits, phoneEntry{companyID: companyID, dealID: dealID})
	return &companyID, dealID
}

func (r *Resolver) byCompany(id uuid.UUID) model.Credentials {
	if v, ok := r.creds.Get(id.String()); ok {
		return v.(model.Credentials)
	}

	c, err := r.lookup.CompanyByID(id)
	if err != nil {
		log.Printf("[Tenant] credential lookup failed for %s: %v", id, err)
		return r.defaults
	}
	if c == nil {
		return r.defaults
	}

	cid := c.ID
	creds := model.Credentials{
		CompanyID:     &cid,
		AccessToken:   c.AccessToken,
		PhoneNumberID: c.PhoneNumberID,
		BusinessID:    c.BusinessID,
		BaseURL:       r.defaults.BaseURL,
	}
	if !creds.Complete() {
		// Stale row: fall back, but keep the company attribution.
		creds = r.defaults
		creds.CompanyID = &cid
	}
	r.creds.Set(id.String(), creds)
	return creds
}

// Invalidate drops a company's cached credentials; the next resolution
// reloads from storage.
func (r *Resolver) Invalidate(companyID uuid.UUID) {
	r.creds.Invalidate(companyID.String())
}
