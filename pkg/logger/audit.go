package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuthEvent is the log-side view of an authentication audit entry.
type AuthEvent struct {
	EventType      string
	Email          string
	UserID         string
	IPAddress      string
	UserAgent      string
	DeliveryMethod string
	RiskLevel      string
	Detail         string
}

// AuditLogger writes audit records to the structured log stream.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogAuthEvent logs one authentication event. Anything above low risk is
// logged at warn level. The email is masked.
func (al *AuditLogger) LogAuthEvent(ctx context.Context, event AuthEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.String("risk_level", event.RiskLevel),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.DeliveryMethod != "" {
		attrs = append(attrs, slog.String("delivery_method", event.DeliveryMethod))
	}
	if event.Detail != "" {
		attrs = append(attrs, slog.String("detail", event.Detail))
	}

	level := slog.LevelInfo
	if event.RiskLevel != "" && event.RiskLevel != "low" {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogActivity logs a user or administrator action.
func (al *AuditLogger) LogActivity(ctx context.Context, activityType, email, target, severity string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "activity"),
		slog.String("activity_type", activityType),
		slog.String("severity", severity),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(email)))
	}
	if target != "" {
		attrs = append(attrs, slog.String("target_user", target))
	}
	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	switch severity {
	case "warning":
		level = slog.LevelWarn
	case "error", "critical":
		level = slog.LevelError
	}
	al.logger.LogAttrs(ctx, level, "activity", attrs...)
}
