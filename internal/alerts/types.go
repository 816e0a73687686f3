// Package alerts turns task lifecycle events into email jobs on an asynq
// queue and delivers them from a worker.
package alerts

import "github.com/sudo-init-do/skillhub/internal/events"

// Job types, one per email the worker knows how to write.
const (
	TaskApplicationReceived = "email:application_received"
	TaskApplicationAccepted = "email:application_accepted"
	TaskApplicationRejected = "email:application_rejected"
	TaskMessageNew          = "email:message_new"
	TaskReviewReceived      = "email:review_received"
)

const queueEmails = "emails"

// Envelope is one outgoing email.
type Envelope struct {
	To      string `json:"to"`
	Name    string `json:"name,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// jobType maps a lifecycle event to the email it triggers. Task creation and
// updates have no other party to tell.
func jobType(eventType string) (string, bool) {
	switch eventType {
	case events.ApplicationCreated:
		return TaskApplicationReceived, true
	case events.ApplicationAccepted:
		return TaskApplicationAccepted, true
	case events.ApplicationRejected:
		return TaskApplicationRejected, true
	case events.MessageSent:
		return TaskMessageNew, true
	case events.ReviewCreated:
		return TaskReviewReceived, true
	}
	return "", false
}
