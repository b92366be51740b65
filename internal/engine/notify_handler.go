package engine

import (
	"context"
	"log/slog"
	"maps"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcp"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcpservice"
)

// notifyHandler is a slog.Handler that turns records into
// notifications/message for its session. Records below the session's
// threshold are dropped.
type notifyHandler struct {
	sess   *SessionHandle
	attrs  []slog.Attr
	groups []string
}

func (h *notifyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return mcpservice.LoggingLevelFor(level).Enabled(h.sess.LogLevel())
}

func (h *notifyHandler) Handle(ctx context.Context, r slog.Record) error {
	data := map[string]any{"message": r.Message}
	for _, a := range h.attrs {
		addAttr(data, a)
	}
	recAttrs := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		recAttrs = append(recAttrs, a)
		return true
	})
	for _, a := range nest(h.groups, recAttrs) {
		addAttr(data, a)
	}

	h.sess.mu.RLock()
	name := h.sess.loggerName
	h.sess.mu.RUnlock()

	return h.sess.Notify(ctx, mcp.LoggingMessageNotificationMethod, &mcp.LoggingMessageNotification{
		Level:  mcpservice.LoggingLevelFor(r.Level),
		Logger: name,
		Data:   data,
	})
}

func (h *notifyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append(append([]slog.Attr(nil), h.attrs...), nest(h.groups, attrs)...)
	return &nh
}

func (h *notifyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.groups = append(append([]string(nil), h.groups...), name)
	return &nh
}

// nest wraps attrs in the open groups so that they land in the right place
// regardless of when they were added.
func nest(groups []string, attrs []slog.Attr) []slog.Attr {
	if len(attrs) == 0 {
		return nil
	}
	for i := len(groups) - 1; i >= 0; i-- {
		attrs = []slog.Attr{{Key: groups[i], Value: slog.GroupValue(attrs...)}}
	}
	return attrs
}

func addAttr(m map[string]any, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		sub, ok := m[a.Key].(map[string]any)
		if !ok || a.Key == "" {
			sub = map[string]any{}
		}
		for _, ga := range a.Value.Group() {
			addAttr(sub, ga)
		}
		if a.Key == "" {
			maps.Copy(m, sub)
			return
		}
		m[a.Key] = sub
		return
	}
	m[a.Key] = a.Value.Any()
}
