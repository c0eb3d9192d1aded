package models

// Severity tags an advisory entry.
type Severity string

const (
	SeverityPositive Severity = "positive"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityDanger   Severity = "danger"
)

// AdvisoryEntry is one recommendation shown to the grower.
type AdvisoryEntry struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Severity Severity `json:"type"`
}

// NotificationKind distinguishes success and error notices.
type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationError   NotificationKind = "error"
)

// Notification is a transient, dismissable notice for the user.
type Notification struct {
	Kind   NotificationKind `json:"kind"`
	Title  string           `json:"title"`
	Detail string           `json:"detail,omitempty"`
}
