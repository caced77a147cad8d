// Package mail renders and delivers transactional mail. Delivery is
// pluggable: the SMTP sender delivers directly, the queue sender defers
// delivery to the mail worker.
package mail

import "context"

// Kind selects the template and subject of a message.
type Kind string

const (
	KindWelcome          Kind = "welcome"
	KindPasswordReset    Kind = "password_reset"
	KindBookingConfirmed Kind = "booking_confirmed"
)

// Message is one transactional mail to be delivered.
type Message struct {
	Kind Kind   `json:"kind"`
	To   string `json:"to"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Sender delivers a message. Implementations must report failure to the
// caller; the password-reset flow depends on it.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
