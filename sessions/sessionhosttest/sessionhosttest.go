// Package sessionhosttest is a conformance suite for sessions.SessionHost
// implementations.
package sessionhosttest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/internal/jsonrpc"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/sessions"
	"github.com/google/uuid"
)

// HostFactory creates a new SessionHost instance for testing.
type HostFactory func(t *testing.T) sessions.SessionHost

// RunSessionHostTests runs the complete SessionHost test suite against the provided factory.
func RunSessionHostTests(t *testing.T, factory HostFactory) {
	t.Run("Messaging_PublishAndSubscribe", func(t *testing.T) { testPublishAndSubscribe(t, factory) })
	t.Run("Messaging_ResumeFromLastEventID", func(t *testing.T) { testResumeFromLastEventID(t, factory) })
	t.Run("Messaging_OrderPreserved", func(t *testing.T) { testOrderPreserved(t, factory) })
	t.Run("Messaging_IsolationBetweenSessions", func(t *testing.T) { testSessionIsolation(t, factory) })
	t.Run("Messaging_SubscriptionContextCancellation", func(t *testing.T) { testSubscriptionContextCancellation(t, factory) })
	t.Run("Messaging_HandlerErrorStopsSubscription", func(t *testing.T) { testHandlerErrorStopsSubscription(t, factory) })
	t.Run("Messaging_CleanupStopsSubscribers", func(t *testing.T) { testCleanupStopsSubscribers(t, factory) })
	t.Run("Messaging_PublishAfterCleanupFails", func(t *testing.T) { testPublishAfterCleanupFails(t, factory) })
}

// sessionID keeps runs against shared backends (Redis) from colliding.
func sessionID(t *testing.T) string {
	t.Helper()
	return "test-" + uuid.NewString()
}

func mustNotification(t *testing.T, method string) []byte {
	t.Helper()
	n, err := jsonrpc.NewNotification(method, nil)
	if err != nil {
		t.Fatalf("notification: %v", err)
	}
	b, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func methodOf(t *testing.T, b []byte) string {
	t.Helper()
	var req jsonrpc.Request
	if err := json.Unmarshal(b, &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return req.Method
}

type delivery struct {
	id   string
	data []byte
}

func testPublishAndSubscribe(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sid := sessionID(t)

	var received []delivery
	var mu sync.Mutex
	done := make(chan error, 1)
	go func() {
		done <- h.SubscribeSession(ctx, sid, "", func(ctx context.Context, msgID string, msg []byte) error {
			mu.Lock()
			received = append(received, delivery{msgID, msg})
			mu.Unlock()
			cancel()
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)

	evID, err := h.PublishSession(ctx, sid, mustNotification(t, "test/method"))
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if evID == "" {
		t.Fatalf("expected non-empty event id")
	}

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("subscribe returned: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 message, got %d", len(received))
	}
	if received[0].id != evID {
		t.Fatalf("expected event id %s, got %s", evID, received[0].id)
	}
	if got := methodOf(t, received[0].data); got != "test/method" {
		t.Fatalf("expected method test/method, got %s", got)
	}
}

func testResumeFromLastEventID(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sid := sessionID(t)

	ev1, err := h.PublishSession(ctx, sid, mustNotification(t, "test/m1"))
	if err != nil {
		t.Fatalf("publish 1: %v", err)
	}
	ev2, err := h.PublishSession(ctx, sid, mustNotification(t, "test/m2"))
	if err != nil {
		t.Fatalf("publish 2: %v", err)
	}

	var received []delivery
	done := make(chan error, 1)
	go func() {
		done <- h.SubscribeSession(ctx, sid, ev1, func(ctx context.Context, msgID string, msg []byte) error {
			received = append(received, delivery{msgID, msg})
			cancel()
			return nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("subscribe: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe timeout")
	}

	if len(received) != 1 {
		t.Fatalf("expected 1 msg, got %d", len(received))
	}
	if received[0].id != ev2 {
		t.Fatalf("expected id %s, got %s", ev2, received[0].id)
	}
	if got := methodOf(t, received[0].data); got != "test/m2" {
		t.Fatalf("expected test/m2, got %s", got)
	}
}

func testOrderPreserved(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sid := sessionID(t)
	const n = 20

	var got []string
	done := make(chan error, 1)
	go func() {
		done <- h.SubscribeSession(ctx, sid, "", func(ctx context.Context, msgID string, msg []byte) error {
			got = append(got, methodOf(t, msg))
			if len(got) == n {
				cancel()
			}
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)
	for i := range n {
		if _, err := h.PublishSession(ctx, sid, mustNotification(t, fmt.Sprintf("test/%d", i))); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("subscribe timeout")
	}

	if len(got) != n {
		t.Fatalf("expected %d messages, got %d", n, len(got))
	}
	for i, m := range got {
		if want := fmt.Sprintf("test/%d", i); m != want {
			t.Fatalf("out of order at %d: want %s got %s", i, want, m)
		}
	}
}

func testSessionIsolation(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s1, s2 := sessionID(t), sessionID(t)

	var got1, got2 []string
	var mu sync.Mutex

	subscribe := func(sid string, into *[]string) chan error {
		d := make(chan error, 1)
		go func() {
			d <- h.SubscribeSession(ctx, sid, "", func(ctx context.Context, id string, msg []byte) error {
				mu.Lock()
				*into = append(*into, methodOf(t, msg))
				mu.Unlock()
				return nil
			})
		}()
		return d
	}
	d1 := subscribe(s1, &got1)
	d2 := subscribe(s2, &got2)

	time.Sleep(100 * time.Millisecond)
	if _, err := h.PublishSession(ctx, s1, mustNotification(t, "test/a")); err != nil {
		t.Fatalf("publish s1: %v", err)
	}
	if _, err := h.PublishSession(ctx, s2, mustNotification(t, "test/b")); err != nil {
		t.Fatalf("publish s2: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	cancel()

	<-d1
	<-d2

	mu.Lock()
	defer mu.Unlock()
	if len(got1) != 1 || got1[0] != "test/a" {
		t.Fatalf("s1 expected [test/a], got %v", got1)
	}
	if len(got2) != 1 || got2[0] != "test/b" {
		t.Fatalf("s2 expected [test/b], got %v", got2)
	}
}

func testSubscriptionContextCancellation(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- h.SubscribeSession(ctx, sessionID(t), "", func(ctx context.Context, id string, msg []byte) error { return nil })
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("subscribe timeout")
	}
}

func testHandlerErrorStopsSubscription(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sid := sessionID(t)
	expectedErr := errors.New("handler error")

	done := make(chan error, 1)
	go func() {
		done <- h.SubscribeSession(ctx, sid, "", func(ctx context.Context, id string, msg []byte) error { return expectedErr })
	}()
	time.Sleep(100 * time.Millisecond)
	if _, err := h.PublishSession(ctx, sid, mustNotification(t, "test/m")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, expectedErr) {
			t.Fatalf("expected handler error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe timeout")
	}
}

func testCleanupStopsSubscribers(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sid := sessionID(t)

	done := make(chan error, 1)
	go func() {
		done <- h.SubscribeSession(ctx, sid, "", func(ctx context.Context, id string, msg []byte) error { return nil })
	}()
	time.Sleep(100 * time.Millisecond)

	if err := h.CleanupSession(ctx, sid); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil after cleanup, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("subscriber not stopped by cleanup")
	}
}

func testPublishAfterCleanupFails(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sid := sessionID(t)
	if _, err := h.PublishSession(ctx, sid, mustNotification(t, "test/before")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := h.CleanupSession(ctx, sid); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	if _, err := h.PublishSession(ctx, sid, mustNotification(t, "test/after")); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after cleanup, got %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- h.SubscribeSession(ctx, sid, "", func(ctx context.Context, id string, msg []byte) error {
			return fmt.Errorf("unexpected delivery of %s", methodOf(t, msg))
		})
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil from a closed session, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe on a closed session did not return")
	}
}
