package memoryhost

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/sessions"
)

const (
	defaultMaxEvents       = 1000
	defaultClosedRetention = 10 * time.Minute
)

// Host is an in-memory implementation of sessions.SessionHost.
type Host struct {
	mu       sync.Mutex
	sessions map[string]*sessionData
	// closed remembers cleaned-up ids so late publishes and subscribes do
	// not bring their logs back.
	closed          map[string]time.Time
	closedRetention time.Duration
	counter         atomic.Int64
	maxEvents       int
	now             func() time.Time
}

type sessionData struct {
	mu       sync.Mutex
	messages []message
	// wake is closed and replaced on every publish and on cleanup.
	wake   chan struct{}
	closed bool
}

type message struct {
	seq  int64
	data []byte
}

// Option configures a Host.
type Option func(*Host)

// WithMaxEvents bounds the number of messages retained per session for
// Last-Event-ID replay. Non-positive values are ignored.
func WithMaxEvents(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.maxEvents = n
		}
	}
}

// WithClosedRetention sets how long a cleaned-up session id keeps rejecting
// publishes. Non-positive values are ignored.
func WithClosedRetention(d time.Duration) Option {
	return func(h *Host) {
		if d > 0 {
			h.closedRetention = d
		}
	}
}

func New(opts ...Option) *Host {
	h := &Host{
		sessions:        make(map[string]*sessionData),
		closed:          make(map[string]time.Time),
		closedRetention: defaultClosedRetention,
		maxEvents:       defaultMaxEvents,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// --- Messaging ---

func (h *Host) PublishSession(ctx context.Context, sessionID string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sd, ok := h.ensureSession(sessionID)
	if !ok {
		return "", fmt.Errorf("%w: %s", sessions.ErrSessionNotFound, sessionID)
	}

	sd.mu.Lock()
	if sd.closed {
		sd.mu.Unlock()
		return "", fmt.Errorf("%w: %s", sessions.ErrSessionNotFound, sessionID)
	}
	seq := h.counter.Add(1)
	sd.messages = append(sd.messages, message{seq: seq, data: append([]byte(nil), data...)})
	if over := len(sd.messages) - h.maxEvents; over > 0 {
		sd.messages = append([]message(nil), sd.messages[over:]...)
	}
	close(sd.wake)
	sd.wake = make(chan struct{})
	sd.mu.Unlock()

	return strconv.FormatInt(seq, 10), nil
}

func (h *Host) SubscribeSession(ctx context.Context, sessionID string, lastEventID string, handler sessions.MessageHandlerFunction) error {
	sd, ok := h.ensureSession(sessionID)
	if !ok {
		return nil
	}

	sd.mu.Lock()
	after, err := sd.resumePoint(lastEventID, h.counter.Load())
	sd.mu.Unlock()
	if err != nil {
		return err
	}

	for {
		sd.mu.Lock()
		if sd.closed {
			sd.mu.Unlock()
			return nil
		}
		var pending []message
		for _, m := range sd.messages {
			if m.seq > after {
				pending = append(pending, m)
			}
		}
		wake := sd.wake
		sd.mu.Unlock()

		for _, m := range pending {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := handler(ctx, strconv.FormatInt(m.seq, 10), m.data); err != nil {
				return err
			}
			after = m.seq
		}
		if len(pending) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

// resumePoint returns the sequence number after which delivery starts.
// Caller holds sd.mu.
func (sd *sessionData) resumePoint(lastEventID string, current int64) (int64, error) {
	if lastEventID == "" {
		return current, nil
	}
	seq, err := strconv.ParseInt(lastEventID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", sessions.ErrEventNotFound, lastEventID)
	}
	for _, m := range sd.messages {
		if m.seq == seq {
			return seq, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", sessions.ErrEventNotFound, lastEventID)
}

func (h *Host) CleanupSession(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	sd, ok := h.sessions[sessionID]
	if ok {
		delete(h.sessions, sessionID)
	}
	now := h.now()
	for id, at := range h.closed {
		if now.Sub(at) >= h.closedRetention {
			delete(h.closed, id)
		}
	}
	h.closed[sessionID] = now
	h.mu.Unlock()
	if !ok {
		return nil
	}

	sd.mu.Lock()
	if !sd.closed {
		sd.closed = true
		sd.messages = nil
		close(sd.wake)
	}
	sd.mu.Unlock()
	return nil
}

// ensureSession returns the log for sessionID, creating it on first use. It
// reports false for ids cleaned up within the retention window.
func (h *Host) ensureSession(sessionID string) (*sessionData, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if at, ok := h.closed[sessionID]; ok {
		if h.now().Sub(at) < h.closedRetention {
			return nil, false
		}
		delete(h.closed, sessionID)
	}
	sd, ok := h.sessions[sessionID]
	if !ok {
		sd = &sessionData{wake: make(chan struct{})}
		h.sessions[sessionID] = sd
	}
	return sd, true
}

// Ensure interface compliance
var _ sessions.SessionHost = (*Host)(nil)
