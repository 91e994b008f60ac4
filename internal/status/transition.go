// internal/status/transition.go

// Package status holds the delivery-status state machine shared by both
// webhook providers. Next is total: any pair outside the table models a
// stale or duplicate provider event and maps to the unchanged status.
package status

import "wahub/internal/model"

// Next returns the status that follows current after event. It never
// fails; unknown pairs return current unchanged so duplicate and
// out-of-order webhook deliveries are harmless no-ops.
func Next(current model.Status, event model.StatusEvent) model.Status {
	switch current {
	case model.StatusTemplateSent:
		switch event {
		case model.EventDelivered:
			return model.StatusTemplateDelivered
		case model.EventFailed:
			return model.StatusTemplateFailed
		}
	case model.StatusTemplateDelivered:
		switch event {
		case model.EventRead:
			return model.StatusTemplateRead
		case model.EventFailed:
			return model.StatusTemplateFailed
		}
	case model.StatusSent:
		switch event {
		case model.EventDelivered:
			return model.StatusMessageDelivered
		case model.EventFailed:
			return model.StatusMessageFailed
		}
	case model.StatusMessageDelivered:
		switch event {
		case model.EventRead:
			return model.StatusMessageRead
		case model.EventFailed:
			return model.StatusMessageFailed
		}
	case model.StatusMediaSent:
		switch event {
		case model.EventDelivered:
			return model.StatusMediaDelivered
		case model.EventFailed:
			return model.StatusMediaFailed
		}
	case model.StatusMediaDelivered:
		switch event {
		case model.EventRead:
			return model.StatusMediaRead
		case model.EventFailed:
			return model.StatusMediaFailed
		}
	}
	// Terminal states (autoresponse_delivered, *_read, *_failed, received)
	// and stale events fall through unchanged.
	return current
}
