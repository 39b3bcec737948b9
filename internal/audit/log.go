// Package audit records security relevant events: logins, second factor changes and
// RBAC mutations.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"shopcore.dev/internal/auth"
	"shopcore.dev/internal/obs"
)

const (
	LoginSucceeded = "auth.login.succeeded"
	LoginFailed    = "auth.login.failed"
	Logout         = "auth.logout"
	MFAEnrolled    = "mfa.enrolled"
	MFAActivated   = "mfa.activated"
	MFADisabled    = "mfa.disabled"
)

// LogEvent writes an audit entry enriched with the request id and the principal.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	attrs := []slog.Attr{
		slog.String("type", "audit"),
		slog.String("event", event),
	}
	if rid := middleware.GetReqID(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		attrs = append(attrs, slog.String("principal_id", p.ID))
	}
	group := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		group = append(group, slog.Any(k, v))
	}
	attrs = append(attrs, slog.Group("fields", group...))
	obs.Logger(ctx).LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
	return nil
}
