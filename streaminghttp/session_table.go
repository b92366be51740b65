package streaminghttp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/internal/engine"
)

// session binds an engine session to the HTTP transport. Its context is
// cancelled when the session closes, which ends any attached GET stream.
type session struct {
	id     string
	handle *engine.SessionHandle

	ctx    context.Context
	cancel context.CancelFunc

	lastSeen  atomic.Int64
	inflight  atomic.Int32
	streaming atomic.Bool
	closeOnce sync.Once
}

func newSession(id string, handle *engine.SessionHandle) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{id: id, handle: handle, ctx: ctx, cancel: cancel}
	s.touch()
	return s
}

func (s *session) touch() { s.lastSeen.Store(time.Now().UnixNano()) }

func (s *session) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

// sessionTable is the process-local map of live sessions.
type sessionTable struct {
	mu sync.Mutex
	m  map[string]*session
}

func newSessionTable() *sessionTable {
	return &sessionTable{m: make(map[string]*session)}
}

func (t *sessionTable) get(id string) (*session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.m[id]
	return s, ok
}

func (t *sessionTable) insert(s *session) {
	t.mu.Lock()
	t.m[s.id] = s
	t.mu.Unlock()
}

// remove deletes id only while it still maps to s.
func (t *sessionTable) remove(id string, s *session) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.m[id]; ok && cur == s {
		delete(t.m, id)
		return true
	}
	return false
}

func (t *sessionTable) snapshot() []*session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*session, 0, len(t.m))
	for _, s := range t.m {
		out = append(out, s)
	}
	return out
}
