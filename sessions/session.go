package sessions

import "log/slog"

// ClientInfo identifies the client that initialized a session.
type ClientInfo struct {
	Name    string
	Version string
}

// Session is the per-session view exposed to tool handlers. Implementations
// are safe for concurrent use.
type Session interface {
	SessionID() string
	// UserID is the authenticated principal, empty when the transport does
	// not authenticate.
	UserID() string
	ProtocolVersion() string
	ClientInfo() ClientInfo
	// Logger returns a logger whose records are forwarded to the client as
	// notifications/message, subject to the level the client selected with
	// logging/setLevel. Records below that level are dropped.
	Logger() *slog.Logger
}
