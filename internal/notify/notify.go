// Package notify delivers status-change messages to customers. Delivery is
// fire-and-forget: failures are logged by the emitter, never propagated into
// the workflow that triggered them.
package notify

import "context"

// Notification is one status-change message. Content templating is owned by
// the downstream channel service; this carries only the facts.
type Notification struct {
	Recipient     string `json:"recipient"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	ApplicationID string `json:"application_id,omitempty"`
}

// Sink is the delivery collaborator.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}
