// internal/storage/postgres.go
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"wahub/internal/model"
	"wahub/internal/status"
)

const connectAttempts = 3

type Storage struct {
	DB  *sql.DB
	loc *time.Location
}

func NewStorage(dsn string, loc *time.Location) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	// Connection-level retries only; query failures after connect propagate.
	var pingErr error
	for i := 0; i < connectAttempts; i++ {
		if pingErr = db.Ping(); pingErr == nil {
			break
		}
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	if pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to db: %w", pingErr)
	}

	if loc == nil {
		loc = time.Local
	}
	return &Storage{DB: db, loc: loc}, nil
}

// now returns wall time in the configured zone; stored naive.
func (s *Storage) now() time.Time {
	return time.Now().In(s.loc)
}

// EnsureSchema creates the tables and the dedupe index if missing.
func (s *Storage) EnsureSchema() error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS companies (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			access_token TEXT NOT NULL DEFAULT '',
			phone_number_id TEXT NOT NULL DEFAULT '',
			business_id TEXT NOT NULL DEFAULT '',
			concurrency INT NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS deals (
			id UUID PRIMARY KEY,
			company_id UUID NOT NULL REFERENCES companies(id),
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS leads (
			id UUID PRIMARY KEY,
			phone TEXT NOT NULL,
			deal_id UUID REFERENCES deals(id),
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			last_message_uid TEXT,
			company_id UUID,
			sender_phone TEXT NOT NULL,
			direction TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			chat_id TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS ix_leads_phone ON leads (phone)`,
		// Conditional-upsert key: a tenant-unknown row coalesces to the nil
		// uuid so at most one row exists per (provider id, tenant) pair.
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_messages_provider_company
			ON messages (last_message_uid, COALESCE(company_id, '00000000-0000-0000-0000-000000000000'::uuid))
			WHERE last_message_uid IS NOT NULL`,
	}
	for _, q := range ddl {
		if _, err := s.DB.Exec(q); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

// FindByProviderID runs the two-tier dedupe lookup: scoped to the company
// when one is known, then global by provider id alone. The global tier
// exists because tenant resolution can finish after the first delivery of
// a duplicate event.
func (s *Storage) FindByProviderID(providerID string, companyID *uuid.UUID) (*model.Message, error) {
	if providerID == "" {
		return nil, nil
	}
	const cols = `id, last_message_uid, company_id, sender_phone, direction, body, status, chat_id, created_at, updated_at, is_deleted`

	if companyID != nil {
		m, err := s.scanMessage(s.DB.QueryRow(
			`SELECT `+cols+` FROM messages WHERE last_message_uid = $1 AND company_id = $2 AND is_deleted = FALSE`,
			providerID, *companyID,
		))
		if err != nil {
			return nil, err
		}
		if m != nil {
			return m, nil
		}
	}
	return s.scanMessage(s.DB.QueryRow(
		`SELECT `+cols+` FROM messages WHERE last_message_uid = $1 AND is_deleted = FALSE ORDER BY created_at LIMIT 1`,
		providerID,
	))
}

func (s *Storage) scanMessage(row *sql.Row) (*model.Message, error) {
	var m model.Message
	err := row.Scan(&m.ID, &m.ProviderMessageID, &m.CompanyID, &m.SenderPhone, &m.Direction,
		&m.Body, &m.Status, &m.ChatID, &m.CreatedAt, &m.UpdatedAt, &m.IsDeleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	return &m, nil
}

// SaveInbound persists one canonical inbound message. Returns true when a
// new row was inserted, false when a duplicate delivery resolved to an
// update. A match with a null company_id is claimed by backfilling the
// resolved company.
func (s *Storage) SaveInbound(m model.InboundMessage, companyID *uuid.UUID, chatID *string) (bool, error) {
	now := s.now()
	body := m.RawBody()

	existing, err := s.FindByProviderID(m.ID, companyID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, s.updateExisting(existing, body, companyID, chatID, now)
	}

	var uid *string
	if m.ID != "" {
		uid = &m.ID
	}
	res, err := s.DB.Exec(`
		INSERT INTO messages (id, last_message_uid, company_id, sender_phone, direction, body, status, chat_id, created_at, updated_at, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9, FALSE)
		ON CONFLICT (last_message_uid, COALESCE(company_id, '00000000-0000-0000-0000-000000000000'::uuid))
			WHERE last_message_uid IS NOT NULL
			DO NOTHING`,
		uuid.New(), uid, companyID, m.From, model.DirectionInbound, body, model.StatusReceived, chatID, now,
	)
	if err != nil {
		// A concurrent delivery can still slip in between lookup and
		// insert; treat the violation like the conflict branch.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			err = nil
			res = nil
		} else {
			return false, fmt.Errorf("insert message: %w", err)
		}
	}
	if res != nil {
		if n, _ := res.RowsAffected(); n == 1 {
			return true, nil
		}
	}

	// Lost the race: the row exists now, update it instead.
	existing, err = s.FindByProviderID(m.ID, companyID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, fmt.Errorf("insert message: conflict but row not found (uid %s)", m.ID)
	}
	return false, s.updateExisting(existing, body, companyID, chatID, now)
}

func (s *Storage) updateExisting(existing *model.Message, body string, companyID *uuid.UUID, chatID *string, now time.Time) error {
	newCompany := existing.CompanyID
	if newCompany == nil && companyID != nil {
		newCompany = companyID
	}
	newChat := existing.ChatID
	if newChat == nil && chatID != nil {
		newChat = chatID
	}
	_, err := s.DB.Exec(`
		UPDATE messages SET body = $1, company_id = $2, chat_id = $3, updated_at = $4 WHERE id = $5`,
		body, newCompany, newChat, now, existing.ID,
	)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

// SaveOutbound records a message this system sent. providerMessageID may
// be nil when the provider call failed before returning an id.
func (s *Storage) SaveOutbound(phoneDigits, body string, providerMessageID *string, companyID *uuid.UUID, chatID *string, initial model.Status) (uuid.UUID, error) {
	id := uuid.New()
	now := s.now()
	_, err := s.DB.Exec(`
		INSERT INTO messages (id, last_message_uid, company_id, sender_phone, direction, body, status, chat_id, created_at, updated_at, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9, FALSE)`,
		id, providerMessageID, companyID, phoneDigits, model.DirectionOutbound, body, initial, chatID, now,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert outbound: %w", err)
	}
	return id, nil
}

// UpdateStatus advances the delivery-status state machine for an outbound
// message. Returns (nil, nil) for every no-op case: unknown id, inbound
// row, or a stale event the transition table ignores. The write is guarded
// on the loaded status so concurrent events cannot regress it.
func (s *Storage) UpdateStatus(providerMessageID string, event model.StatusEvent, companyID *uuid.UUID) (*model.Message, error) {
	m, err := s.FindByProviderID(providerMessageID, companyID)
	if err != nil {
		return nil, err
	}
	if m == nil || m.Direction != model.DirectionOutbound {
		return nil, nil
	}

	next := status.Next(m.Status, event)
	if next == m.Status {
		return nil, nil
	}

	res, err := s.DB.Exec(`
		UPDATE messages SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		next, s.now(), m.ID, m.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Another event won the race; its transition stands.
		log.Printf("[Storage] status race on %s, keeping concurrent update", providerMessageID)
		return nil, nil
	}
	m.Status = next
	m.UpdatedAt = s.now()
	return m, nil
}

// LookupCompanyByPhone resolves the tenant owning a conversation through
// the phone -> lead -> deal -> company join. The most recent lead wins.
func (s *Storage) LookupCompanyByPhone(phoneDigits string) (uuid.UUID, string, error) {
	var companyID uuid.UUID
	var dealID string
	err := s.DB.QueryRow(`
		SELECT d.company_id, d.id
		FROM leads l
		JOIN deals d ON d.id = l.deal_id
		WHERE l.phone = $1
		ORDER BY l.created_at DESC
		LIMIT 1`, phoneDigits,
	).Scan(&companyID, &dealID)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, "", nil
	}
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("lookup company by phone: %w", err)
	}
	return companyID, dealID, nil
}

func (s *Storage) CompanyByID(id uuid.UUID) (*model.Company, error) {
	var c model.Company
	err := s.DB.QueryRow(`
		SELECT id, name, access_token, phone_number_id, business_id, concurrency, created_at
		FROM companies WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.AccessToken, &c.PhoneNumberID, &c.BusinessID, &c.Concurrency, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load company: %w", err)
	}
	return &c, nil
}

func (s *Storage) ListCompanies() ([]model.Company, error) {
	rows, err := s.DB.Query(`SELECT id, name, access_token, phone_number_id, business_id, concurrency, created_at FROM companies`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.AccessToken, &c.PhoneNumberID, &c.BusinessID, &c.Concurrency, &c.CreatedAt); err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// UpsertCompanyCredentials is the database-backed per-tenant override
// source behind the ops API.
func (s *Storage) UpsertCompanyCredentials(c *model.Company) error {
	_, err := s.DB.Exec(`
		INSERT INTO companies (id, name, access_token, phone_number_id, business_id, concurrency, created_at)
		VALUES ($1, $2, $3, $4, $5, GREATEST($6, 1), NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			access_token = EXCLUDED.access_token,
			phone_number_id = EXCLUDED.phone_number_id,
			business_id = EXCLUDED.business_id`,
		c.ID, c.Name, c.AccessToken, c.PhoneNumberID, c.BusinessID, c.Concurrency,
	)
	return err
}

func (s *Storage) DeleteCompany(id uuid.UUID) error {
	_, err := s.DB.Exec(`DELETE FROM companies WHERE id = $1`, id)
	return err
}

func (s *Storage) UpdateCompanyConcurrency(companyID string, workers int) error {
	_, err := s.DB.Exec(`
		UPDATE companies
		SET concurrency = $1
		WHERE id = $2
	`, workers, companyID)
	return err
}
