package messaging

import "context"

// Gateway is the outbound messaging capability the relay core depends on.
// Send must return the provider message id; MarkRead and TypingIndicator are
// best-effort side effects whose failures callers swallow.
type Gateway interface {
	Send(ctx context.Context, to, text string) (string, error)
	MarkRead(ctx context.Context, messageID string) error
	TypingIndicator(ctx context.Context, to string, durationHint int) error
}
