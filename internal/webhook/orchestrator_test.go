package webhook

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"wahub/internal/model"
)

type storedRow struct {
	msg       model.InboundMessage
	companyID *uuid.UUID
	chatID    *string
	saves     int
}

type fakeStore struct {
	rows       map[string]*storedRow
	statusRows map[string]*model.Message
	saveErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:       map[string]*storedRow{},
		statusRows: map[string]*model.Message{},
	}
}

func (s *fakeStore) SaveInbound(m model.InboundMessage, companyID *uuid.UUID, chatID *string) (bool, error) {
	if s.saveErr != nil {
		return false, s.saveErr
	}
	if row, ok := s.rows[m.ID]; ok {
		row.msg = m
		if row.companyID == nil {
			row.companyID = companyID
		}
		row.saves++
		return false, nil
	}
	s.rows[m.ID] = &storedRow{msg: m, companyID: companyID, chatID: chatID, saves: 1}
	return true, nil
}

func (s *fakeStore) UpdateStatus(providerMessageID string, event model.StatusEvent, companyID *uuid.UUID) (*model.Message, error) {
	m, ok := s.statusRows[providerMessageID]
	if !ok || m.Direction == model.DirectionInbound {
		return nil, nil
	}
	m.Status = model.StatusMessageDelivered
	return m, nil
}

type fakeResolver struct {
	companyID *uuid.UUID
	dealID    string
}

func (r *fakeResolver) ResolveCompany(phoneDigits string) (*uuid.UUID, string) {
	return r.companyID, r.dealID
}

func (r *fakeResolver) ResolveCredentials(phoneDigits string, companyID *uuid.UUID) model.Credentials {
	return model.Credentials{CompanyID: companyID, AccessToken: "tok", PhoneNumberID: "pnid"}
}

type recordingCollaborator struct {
	persisted []bool // created flag per call
	statuses  []model.StatusEvent
}

func (c *recordingCollaborator) OnMessagePersisted(companyID *uuid.UUID, msg model.InboundMessage, created bool) {
	c.persisted = append(c.persisted, created)
}

func (c *recordingCollaborator) OnStatusChanged(m *model.Message, event model.StatusEvent) {
	c.statuses = append(c.statuses, event)
}

func textPayload(id, from, body string) model.WebhookPayload {
	return model.WebhookPayload{
		Object: "whatsapp_business_account",
		Entry: []model.Entry{{
			ID: "entry-1",
			Changes: []model.Change{{
				Field: "messages",
				Value: model.ChangeValue{
					MessagingProduct: "whatsapp",
					Messages: []model.InboundMessage{{
						ID:   id,
						From: from,
						Type: model.TypeText,
						Text: &model.TextBody{Body: body},
					}},
				},
			}},
		}},
	}
}

func statusPayload(id string, event model.StatusEvent) model.WebhookPayload {
	return model.WebhookPayload{
		Object: "whatsapp_business_account",
		Entry: []model.Entry{{
			Changes: []model.Change{{
				Field: "messages",
				Value: model.ChangeValue{
					Statuses: []model.StatusUpdate{{
						ID:          id,
						Status:      event,
						RecipientID: "34600111222",
					}},
				},
			}},
		}},
	}
}

func TestDuplicateDeliveryUpdatesInPlace(t *testing.T) {
	store := newFakeStore()
	companyID := uuid.New()
	collab := &recordingCollaborator{}
	o := NewOrchestrator(store, &fakeResolver{companyID: &companyID, dealID: "deal-9"}, nil, collab)

	require.NoError(t, o.HandleCanonicalEvent(textPayload("wamid.1", "34600111222", "hola"), "meta"))
	require.NoError(t, o.HandleCanonicalEvent(textPayload("wamid.1", "34600111222", "hola otra vez"), "meta"))

	require.Len(t, store.rows, 1)
	row := store.rows["wamid.1"]
	require.Equal(t, 2, row.saves)
	require.Equal(t, "hola otra vez", row.msg.Text.Body)
	require.Equal(t, companyID, *row.companyID)
	require.Equal(t, "deal-9", *row.chatID)

	require.Equal(t, []bool{true, false}, collab.persisted)
}

func TestSaveMessageStripsSenderPhone(t *testing.T) {
	store := newFakeStore()
	o := NewOrchestrator(store, &fakeResolver{}, nil)

	require.NoError(t, o.HandleCanonicalEvent(textPayload("wamid.2", "+34600111222", "hola"), "meta"))
	require.Equal(t, "600111222", store.rows["wamid.2"].msg.From)
}

func TestStatusForInboundRowIsNoop(t *testing.T) {
	store := newFakeStore()
	store.statusRows["wamid.3"] = &model.Message{Direction: model.DirectionInbound, Status: model.StatusReceived}
	collab := &recordingCollaborator{}
	o := NewOrchestrator(store, &fakeResolver{}, nil, collab)

	require.NoError(t, o.HandleCanonicalEvent(statusPayload("wamid.3", model.EventDelivered), "meta"))
	require.Equal(t, model.StatusReceived, store.statusRows["wamid.3"].Status)
	require.Empty(t, collab.statuses)
}

func TestStatusAppliedNotifiesCollaborators(t *testing.T) {
	store := newFakeStore()
	store.statusRows["wamid.4"] = &model.Message{Direction: model.DirectionOutbound, Status: model.StatusSent}
	collab := &recordingCollaborator{}
	o := NewOrchestrator(store, &fakeResolver{}, nil, collab)

	require.NoError(t, o.HandleCanonicalEvent(statusPayload("wamid.4", model.EventDelivered), "meta"))
	require.Equal(t, []model.StatusEvent{model.EventDelivered}, collab.statuses)
}

func TestNonMessageFieldsAreIgnored(t *testing.T) {
	store := newFakeStore()
	o := NewOrchestrator(store, &fakeResolver{}, nil)

	p := textPayload("wamid.5", "34600111222", "hola")
	p.Entry[0].Changes[0].Field = "account_update"
	require.NoError(t, o.HandleCanonicalEvent(p, "meta"))
	require.Empty(t, store.rows)
}

func TestFailedItemsAreSummarizedNotFatal(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("db down")
	o := NewOrchestrator(store, &fakeResolver{}, nil)

	p := textPayload("wamid.6", "34600111222", "hola")
	p.Entry[0].Changes[0].Value.Messages = append(p.Entry[0].Changes[0].Value.Messages, model.InboundMessage{
		ID:   "wamid.7",
		From: "34600111223",
		Type: model.TypeText,
		Text: &model.TextBody{Body: "segunda"},
	})

	err := o.HandleCanonicalEvent(p, "meta")
	require.Error(t, err)
	require.Contains(t, err.Error(), "2 failed items")
}
