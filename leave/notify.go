package leave

import "context"

type NotificationKind string

const (
	NotifySubmitted NotificationKind = "submitted"
	NotifyDecision  NotificationKind = "decision"
	NotifyEdited    NotificationKind = "edited"
	NotifyDeleted   NotificationKind = "deleted"
)

// Notification describes a lifecycle event. Rendering it is the notifier's job.
type Notification struct {
	Kind        NotificationKind
	To          []string
	Actor       Actor
	Application Application
	Comment     string
}

// Notifier delivers notifications. Its error is reported to callers in
// Outcome.NotifyErr and never changes the result of the operation.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }
