// Package notify delivers user-facing notifications emitted by the timer
// engine. It is a sink, not engine state: implementations decide how a
// notification reaches the user.
package notify

import "log"

// Severity classifies a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is one user-facing message.
type Notification struct {
	Title       string
	Description string
	Severity    Severity
}

// Notifier receives notifications.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to the Notifier interface.
type Func func(n Notification)

// Notify implements Notifier.
func (f Func) Notify(n Notification) { f(n) }

// Log returns a Notifier that writes to the standard logger.
func Log() Notifier {
	return Func(func(n Notification) {
		log.Printf("[%s] %s: %s", n.Severity, n.Title, n.Description)
	})
}

// Discard returns a Notifier that drops everything.
func Discard() Notifier {
	return Func(func(Notification) {})
}
