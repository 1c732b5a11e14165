package email

import (
	"context"
	"errors"
)

// Provider delivers one plain-text message.
type Provider interface {
	Send(ctx context.Context, to []string, subject string, body string) error
}

// ErrNotConfigured is what every send returns when no transport is set
// up, so the outcome stays visible instead of silently succeeding.
var ErrNotConfigured = errors.New("email_not_configured")

// Disabled stands in when SMTP host or sender address is missing.
type Disabled struct{}

func (Disabled) Send(ctx context.Context, to []string, subject string, body string) error {
	return ErrNotConfigured
}
