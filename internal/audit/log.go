package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"abroadguide.org/internal/auth"
	"abroadguide.org/internal/obs"
)

// Event names emitted by the gateway.
const (
	EventLoginSucceeded = "auth.login.succeeded"
	EventLoginFailed    = "auth.login.failed"
	EventRegistered     = "auth.user.registered"
	EventRoleChanged    = "auth.user.role_changed"
	EventEnabledChanged = "auth.user.enabled_changed"
	EventAffiliationSet = "auth.user.affiliation_changed"
	EventPasswordChange = "auth.user.password_changed"
	EventAuthzDenied    = "authz.denied"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with the request id and the
// authenticated caller, when present. Secrets must never be passed in fields.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if ic, ok := auth.IdentityFromContext(ctx); ok {
		entry["subject"] = ic.Subject
		entry["role"] = ic.Role.String()
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	entry["fields"] = copyFields

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
