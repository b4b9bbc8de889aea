// Package notify delivers out-of-band messages to users. The service only
// depends on the Notifier interface; deployments plug in a real mail
// provider while development and tests use the log implementation.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Template names understood by notifiers.
const (
	TemplateEmailOTP        = "email_otp"
	TemplateMFAEnabled      = "mfa_enabled"
	TemplateMFADisabled     = "mfa_disabled"
	TemplateSessionsRevoked = "sessions_revoked"
)

// Notifier sends one message. Implementations must be safe for concurrent use.
type Notifier interface {
	Send(ctx context.Context, recipient, template string, vars map[string]string) error
}

// LogNotifier writes notifications to the log instead of delivering them.
// OTP codes are never logged; only the template and recipient are.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Send(ctx context.Context, recipient, template string, vars map[string]string) error {
	if n.Logger != nil {
		n.Logger.InfoContext(ctx, "notification sent",
			"recipient", recipient,
			"template", template,
		)
	}
	return nil
}

// SendWithRetry wraps a Send with a per-attempt timeout and a single retry.
// Delivery providers flake; one retry covers the transient cases without
// holding the request open.
func SendWithRetry(ctx context.Context, n Notifier, recipient, template string, vars map[string]string, timeout time.Duration) error {
	attempt := func() error {
		sendCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return n.Send(sendCtx, recipient, template, vars)
	}

	err := attempt()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("notify %s: %w", template, err)
	}
	if err := attempt(); err != nil {
		return fmt.Errorf("notify %s: %w", template, err)
	}
	return nil
}
