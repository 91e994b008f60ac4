package status

import (
	"testing"

	"github.com/stretchr/testify/require"

	"wahub/internal/model"
)

func TestTemplateLifecycle(t *testing.T) {
	require.Equal(t, model.StatusTemplateDelivered, Next(model.StatusTemplateSent, model.EventDelivered))
	require.Equal(t, model.StatusTemplateRead, Next(model.StatusTemplateDelivered, model.EventRead))
	require.Equal(t, model.StatusTemplateFailed, Next(model.StatusTemplateSent, model.EventFailed))
	require.Equal(t, model.StatusTemplateFailed, Next(model.StatusTemplateDelivered, model.EventFailed))
}

func TestTextLifecycle(t *testing.T) {
	require.Equal(t, model.StatusMessageDelivered, Next(model.StatusSent, model.EventDelivered))
	require.Equal(t, model.StatusMessageRead, Next(model.StatusMessageDelivered, model.EventRead))
	require.Equal(t, model.StatusMessageFailed, Next(model.StatusSent, model.EventFailed))
}

func TestMediaLifecycle(t *testing.T) {
	require.Equal(t, model.StatusMediaDelivered, Next(model.StatusMediaSent, model.EventDelivered))
	require.Equal(t, model.StatusMediaRead, Next(model.StatusMediaDelivered, model.EventRead))
	require.Equal(t, model.StatusMediaFailed, Next(model.StatusMediaDelivered, model.EventFailed))
}

func TestAutoResponseIsTerminal(t *testing.T) {
	for _, ev := range []model.StatusEvent{model.EventSent, model.EventDelivered, model.EventRead, model.EventFailed} {
		require.Equal(t, model.StatusAutoResponseDelivered, Next(model.StatusAutoResponseDelivered, ev))
	}
}

// Every pair outside the table is an identity: stale or duplicate
// provider events must be harmless.
func TestUnknownPairsAreNoOps(t *testing.T) {
	all := []model.Status{
		model.StatusReceived,
		model.StatusTemplateSent, model.StatusTemplateDelivered, model.StatusTemplateRead, model.StatusTemplateFailed,
		model.StatusSent, model.StatusMessageDelivered, model.StatusMessageRead, model.StatusMessageFailed,
		model.StatusMediaSent, model.StatusMediaDelivered, model.StatusMediaRead, model.StatusMediaFailed,
		model.StatusAutoResponseDelivered,
	}
	events := []model.StatusEvent{model.EventSent, model.EventDelivered, model.EventRead, model.EventFailed}

	type pair struct {
		s  model.Status
		ev model.StatusEvent
	}
	inTable := map[pair]bool{
		{model.StatusTemplateSent, model.EventDelivered}:   true,
		{model.StatusTemplateSent, model.EventFailed}:      true,
		{model.StatusTemplateDelivered, model.EventRead}:   true,
		{model.StatusTemplateDelivered, model.EventFailed}: true,
		{model.StatusSent, model.EventDelivered}:           true,
		{model.StatusSent, model.EventFailed}:              true,
		{model.StatusMessageDelivered, model.EventRead}:    true,
		{model.StatusMessageDelivered, model.EventFailed}:  true,
		{model.StatusMediaSent, model.EventDelivered}:      true,
		{model.StatusMediaSent, model.EventFailed}:         true,
		{model.StatusMediaDelivered, model.EventRead}:      true,
		{model.StatusMediaDelivered, model.EventFailed}:    true,
	}

	for _, s := range all {
		for _, ev := range events {
			if inTable[pair{s, ev}] {
				continue
			}
			require.Equal(t, s, Next(s, ev), "pair (%s, %s) must be a no-op", s, ev)
		}
	}
}

func TestReadFromSentIsStale(t *testing.T) {
	// read without an observed delivered is out of order; ignored.
	require.Equal(t, model.StatusSent, Next(model.StatusSent, model.EventRead))
	require.Equal(t, model.StatusTemplateSent, Next(model.StatusTemplateSent, model.EventRead))
}
