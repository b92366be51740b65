package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/internal/jsonrpc"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcp"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcpservice"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/sessions"
)

var (
	_ sessions.Session       = (*SessionHandle)(nil)
	_ mcpservice.LevelSetter = (*SessionHandle)(nil)
)

// SessionHandle is the engine's per-connection state. Transports create one
// per stdio stream or HTTP session and pass it to every Engine call.
type SessionHandle struct {
	sessionID string
	userID    string
	transport string
	writer    MessageWriter

	mu              sync.RWMutex
	protocolVersion string
	clientInfo      sessions.ClientInfo
	loggerName      string
	logLevel        mcp.LoggingLevel
	initialized     bool
	ready           bool
}

// SessionHandleOption configures a SessionHandle.
type SessionHandleOption func(*SessionHandle)

// WithUserID records the authenticated principal.
func WithUserID(userID string) SessionHandleOption {
	return func(s *SessionHandle) { s.userID = userID }
}

// WithTransport names the transport for log records ("stdio", "http").
func WithTransport(name string) SessionHandleOption {
	return func(s *SessionHandle) { s.transport = name }
}

func NewSessionHandle(sessionID string, w MessageWriter, opts ...SessionHandleOption) *SessionHandle {
	s := &SessionHandle{
		sessionID: sessionID,
		writer:    w,
		logLevel:  mcp.LoggingLevelInfo,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionHandle) SessionID() string { return s.sessionID }

func (s *SessionHandle) UserID() string { return s.userID }

func (s *SessionHandle) Transport() string { return s.transport }

func (s *SessionHandle) ProtocolVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protocolVersion
}

func (s *SessionHandle) ClientInfo() sessions.ClientInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientInfo
}

// Initialized reports whether the initialize handshake succeeded.
func (s *SessionHandle) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Ready reports whether the client sent notifications/initialized.
func (s *SessionHandle) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *SessionHandle) SetLogLevel(level mcp.LoggingLevel) {
	s.mu.Lock()
	s.logLevel = level
	s.mu.Unlock()
}

func (s *SessionHandle) LogLevel() mcp.LoggingLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logLevel
}

// Logger returns a logger whose records become notifications/message.
func (s *SessionHandle) Logger() *slog.Logger {
	return slog.New(&notifyHandler{sess: s})
}

// Notify sends a server-originated notification. Sessions without a writer
// drop it.
func (s *SessionHandle) Notify(ctx context.Context, method mcp.Method, params any) error {
	if s.writer == nil {
		return nil
	}
	n, err := jsonrpc.NewNotification(string(method), params)
	if err != nil {
		return err
	}
	return s.writer.WriteMessage(ctx, n)
}

func (s *SessionHandle) markInitialized(version string, info sessions.ClientInfo, loggerName string) {
	s.mu.Lock()
	s.protocolVersion = version
	s.clientInfo = info
	s.loggerName = loggerName
	s.initialized = true
	s.mu.Unlock()
}

func (s *SessionHandle) markReady() {
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
}
