package logger

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

const redacted = "[REDACTED]"

// sensitiveKeys are attribute keys whose values are never written.
var sensitiveKeys = []string{"password", "secret", "token", "authorization", "api_key", "credentials"}

// contextHandler adds request_id and job_id from the record's context, so
// the *Context logging methods carry them without FromContext. IDs already
// bound with WithAttrs are not repeated.
type contextHandler struct {
	slog.Handler
	hasRequestID bool
	hasJobID     bool
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" && !h.hasRequestID {
			r.AddAttrs(slog.String("request_id", id))
		}
		if id, ok := ctx.Value(JobIDKey).(string); ok && id != "" && !h.hasJobID {
			r.AddAttrs(slog.String("job_id", id))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h
	next.Handler = h.Handler.WithAttrs(attrs)
	for _, a := range attrs {
		switch a.Key {
		case "request_id":
			next.hasRequestID = true
		case "job_id":
			next.hasJobID = true
		}
	}
	return next
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	next := h
	next.Handler = h.Handler.WithGroup(name)
	return next
}

// replaceAttr renders times in UTC and scrubs secrets: sensitive keys are
// masked and URL-valued attributes lose passwords and query strings, which
// carry presigned signatures.
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
		}
		return a
	}

	key := strings.ToLower(a.Key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return slog.String(a.Key, redacted)
		}
	}
	if (key == "url" || strings.HasSuffix(key, "_url")) && a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, scrubURL(a.Value.String()))
	}
	return a
}

func scrubURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	return u.String()
}
