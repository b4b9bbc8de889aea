// Package audit records security-relevant actions (MFA lifecycle changes,
// session events, login outcomes) without blocking request handling.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/asia-shop/identity/internal/identity/store"
	"github.com/asia-shop/identity/pkg/idx"
)

// Actions recorded by the identity service.
const (
	ActionMFASetupStarted        = "mfa.setup_started"
	ActionMFAEnabled             = "mfa.enabled"
	ActionMFADisabled            = "mfa.disabled"
	ActionMFAVerified            = "mfa.verified"
	ActionMFAVerifyFailed        = "mfa.verify_failed"
	ActionBackupCodesRegenerated = "mfa.backup_codes_regenerated"
	ActionEmailOTPSent           = "mfa.email_otp_sent"
	ActionLoginSucceeded         = "login.succeeded"
	ActionLoginFailed            = "login.failed"
	ActionLoginChallenged        = "login.mfa_challenged"
	ActionSessionCreated         = "session.created"
	ActionSessionEvicted         = "session.evicted"
	ActionSessionTerminated      = "session.terminated"
	ActionSessionsTerminatedAll  = "session.terminated_all_others"
	ActionSettingsUpdated        = "settings.updated"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event is the canonical audit event model.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id,omitempty"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// SlogSink writes one structured log record per event.
type SlogSink struct {
	Logger *slog.Logger
}

func (s SlogSink) Emit(ctx context.Context, event Event) {
	if s.Logger == nil {
		return
	}
	s.Logger.InfoContext(ctx, "audit",
		"action", event.Action,
		"outcome", event.Outcome,
		"user_id", event.UserID,
		"ip", event.IP,
		"detail", event.Detail,
	)
}

// StoreSink persists events to the audit_log table.
type StoreSink struct {
	Store store.Store
}

func (s StoreSink) Emit(ctx context.Context, event Event) {
	rec := store.AuditRecord{
		ID:        idx.New().String(),
		UserID:    event.UserID,
		Action:    event.Action,
		Outcome:   event.Outcome,
		IPAddress: event.IP,
		UserAgent: event.UserAgent,
		Detail:    event.Detail,
		CreatedAt: event.Timestamp,
	}
	_ = s.Store.AuditLog().Append(ctx, rec)
}

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		s.Emit(ctx, event)
	}
}
