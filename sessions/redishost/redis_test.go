package redishost

import (
	"context"
	"errors"
	"testing"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/sessions"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/sessions/sessionhosttest"
	"github.com/google/uuid"
)

func newHost(t *testing.T) *Host {
	t.Helper()
	h, err := NewFromEnv()
	if err != nil {
		t.Skipf("skipping redis session host tests: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestRedisSessionHost(t *testing.T) {
	newHost(t)

	sessionhosttest.RunSessionHostTests(t, func(t *testing.T) sessions.SessionHost {
		return newHost(t)
	})
}

func TestRedisSessionHost_UnknownEventID(t *testing.T) {
	h := newHost(t)
	sid := "test-" + uuid.NewString()

	if _, err := h.PublishSession(t.Context(), sid, []byte(`{}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	err := h.SubscribeSession(t.Context(), sid, "1-999999", func(context.Context, string, []byte) error { return nil })
	if !errors.Is(err, sessions.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}
