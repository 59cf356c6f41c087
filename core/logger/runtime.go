package logger

import (
	"context"
	"hash/fnv"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

// contextKey is a private type to avoid collisions in context.
type contextKey string

const (
	ctxRID      contextKey = "rid"
	ctxMsgID    contextKey = "msg_id"
	ctxIdentity contextKey = "identity"
	ctxChat     contextKey = "chat"
	ctxLogger   contextKey = "logger"
	ctxHandler  contextKey = "handler"
)

// WithLogger stores the provided slog.Logger in context for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLogger, log)
}

// FromContext extracts slog.Logger from context or returns global default.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return L
	}
	if v := ctx.Value(ctxLogger); v != nil {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// WithRID attaches request correlation id into context.
func WithRID(ctx context.Context, rid string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRID, rid)
}

// RIDFrom extracts rid from context if present.
func RIDFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxRID)
}

// WithMessageMeta attaches inbound message identifiers to context.
func WithMessageMeta(ctx context.Context, msgID, identity, chat string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if msgID != "" {
		ctx = context.WithValue(ctx, ctxMsgID, msgID)
	}
	if identity != "" {
		ctx = context.WithValue(ctx, ctxIdentity, identity)
	}
	if chat != "" {
		ctx = context.WithValue(ctx, ctxChat, chat)
	}
	return ctx
}

// MessageIDFrom extracts the provider message id from context.
func MessageIDFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxMsgID)
}

// IdentityFrom extracts the user identity from context.
func IdentityFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxIdentity)
}

// ChatFrom extracts the chat id from context.
func ChatFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxChat)
}

// WithHandler stores handler identifier in context for downstream logs.
func WithHandler(ctx context.Context, handler string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if handler == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxHandler, handler)
}

// HandlerFrom returns handler identifier from context if present.
func HandlerFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxHandler)
}

func stringFrom(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Sanitize trims non-printable runes from s to keep logs clean.
// It removes control characters (Unicode categories Cc, Cf) except for tab and newline.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	b := strings.Builder{}
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			continue
		}
		if r == 0x7F {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeLimit applies Sanitize and limits the output length in runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	cleaned := Sanitize(s)
	if len([]rune(cleaned)) <= max {
		return cleaned
	}
	r := []rune(cleaned)
	return string(r[:max])
}

// BuildRID derives a short correlation identifier from the provider message
// id and the sender identity. The value is stable for a given message so
// retried deliveries of the same webhook correlate in logs.
func BuildRID(msgID, identity string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(msgID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(identity))
	return strconv.FormatUint(h.Sum64(), 36)
}
