package tenant

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"wahub/internal/cache"
	"wahub/internal/model"
)

type fakeLookup struct {
	phoneCalls   int
	companyCalls int
	companies    map[uuid.UUID]*model.Company
	phones       map[string]uuid.UUID
	failPhone    bool
}

func (f *fakeLookup) LookupCompanyByPhone(phoneDigits string) (uuid.UUID, string, error) {
	f.phoneCalls++
	if f.failPhone {
		return uuid.Nil, "", errors.New("db down")
	}
	id, ok := f.phones[phoneDigits]
	if !ok {
		return uuid.Nil, "", nil
	}
	return id, "deal-1", nil
}

func (f *fakeLookup) CompanyByID(id uuid.UUID) (*model.Company, error) {
	f.companyCalls++
	return f.companies[id], nil
}

var testDefaults = model.Credentials{
	AccessToken:   "default-token",
	PhoneNumberID: "default-pnid",
	BaseURL:       "https://graph.example.com",
}

func newTestResolver(f *fakeLookup) *Resolver {
	return NewResolver(f, testDefaults, cache.New(time.Minute, 100), cache.New(time.Minute, 100))
}

func TestResolveByPhoneCachesBothTiers(t *testing.T) {
	companyID := uuid.New()
	f := &fakeLookup{
		phones: map[string]uuid.UUID{"600111222": companyID},
		companies: map[uuid.UUID]*model.Company{
			companyID: {ID: companyID, AccessToken: "tok-a", PhoneNumberID: "pnid-a"},
		},
	}
	r := newTestResolver(f)

	first := r.ResolveCredentials("600111222", nil)
	require.Equal(t, "tok-a", first.AccessToken)
	require.Equal(t, companyID, *first.CompanyID)

	second := r.ResolveCredentials("600111222", nil)
	require.Equal(t, first, second)
	require.Equal(t, 1, f.phoneCalls, "second resolution must hit the cache")
	require.Equal(t, 1, f.companyCalls)
}

func TestExplicitCompanyWins(t *testing.T) {
	companyID := uuid.New()
	f := &fakeLookup{
		companies: map[uuid.UUID]*model.Company{
			companyID: {ID: companyID, AccessToken: "tok-b", PhoneNumberID: "pnid-b"},
		},
	}
	r := newTestResolver(f)

	creds := r.ResolveCredentials("600111222", &companyID)
	require.Equal(t, "tok-b", creds.AccessToken)
	require.Zero(t, f.phoneCalls, "explicit id must skip the phone join")
}

func TestUnknownPhoneFallsBackToDefaults(t *testing.T) {
	r := newTestResolver(&fakeLookup{})
	creds := r.ResolveCredentials("699999999", nil)
	require.Equal(t, testDefaults, creds)
	require.Nil(t, creds.CompanyID)
}

func TestLookupErrorNeverPropagates(t *testing.T) {
	r := newTestResolver(&fakeLookup{failPhone: true})
	creds := r.ResolveCredentials("600111222", nil)
	require.Equal(t, testDefaults, creds)
}

func TestIncompleteCredentialsFallBackButKeepAttribution(t *testing.T) {
	companyID := uuid.New()
	f := &fakeLookup{
		companies: map[uuid.UUID]*model.Company{
			companyID: {ID: companyID}, // no token: stale row
		},
	}
	r := newTestResolver(f)

	creds := r.ResolveCredentials("", &companyID)
	require.Equal(t, testDefaults.AccessToken, creds.AccessToken)
	require.NotNil(t, creds.CompanyID)
	require.Equal(t, companyID, *creds.CompanyID)
}

func TestInvalidateForcesReload(t *testing.T) {
	companyID := uuid.New()
	f := &fakeLookup{
		companies: map[uuid.UUID]*model.Company{
			companyID: {ID: companyID, AccessToken: "tok-old", PhoneNumberID: "pnid"},
		},
	}
	r := newTestResolver(f)

	require.Equal(t, "tok-old", r.ResolveCredentials("", &companyID).AccessToken)

	f.companies[companyID].AccessToken = "tok-new"
	require.Equal(t, "tok-old", r.ResolveCredentials("", &companyID).AccessToken, "cached until invalidated")

	r.Invalidate(companyID)
	require.Equal(t, "tok-new", r.ResolveCredentials("", &companyID).AccessToken)
}
