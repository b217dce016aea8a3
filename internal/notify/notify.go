// Package notify delivers chat messages to ticket reporters and the ops
// group. Delivery is best effort: Send reports success as a bool and never
// returns an error, and the Dispatcher runs sends off the request path.
package notify

import "context"

// Button is an inline reply affordance attached under a message.
type Button struct {
	Text         string
	CallbackData string
}

type Message struct {
	ChatID  string
	Text    string
	Buttons []Button
}

type Channel interface {
	Send(ctx context.Context, msg Message) bool
}

type noopChannel struct{}

func (noopChannel) Send(context.Context, Message) bool { return false }

// Noop is used when no bot token is configured.
func Noop() Channel { return noopChannel{} }
