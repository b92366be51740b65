package mcpservice

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcp"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/sessions"
)

// ErrInvalidLoggingLevel indicates the provided level is not one of the
// protocol-defined LoggingLevel values.
var ErrInvalidLoggingLevel = errors.New("invalid logging level")

// LevelSetter is implemented by sessions whose notifications/message stream
// can be filtered.
type LevelSetter interface {
	SetLogLevel(level mcp.LoggingLevel)
}

// LoggingOption configures NewSessionLogging.
type LoggingOption func(*sessionLogging)

// WithProcessLevelVar additionally moves lv to the slog equivalent of every
// accepted level, adjusting process-wide logging along with the session.
func WithProcessLevelVar(lv *slog.LevelVar) LoggingOption {
	return func(l *sessionLogging) { l.lv = lv }
}

// NewSessionLogging returns a LoggingCapability that stores the requested
// threshold on the session.
func NewSessionLogging(opts ...LoggingOption) LoggingCapability {
	l := &sessionLogging{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type sessionLogging struct{ lv *slog.LevelVar }

func (l *sessionLogging) SetLevel(ctx context.Context, session sessions.Session, level mcp.LoggingLevel) error {
	if !mcp.IsValidLoggingLevel(level) {
		return ErrInvalidLoggingLevel
	}
	if ls, ok := session.(LevelSetter); ok {
		ls.SetLogLevel(level)
	}
	if l.lv != nil {
		l.lv.Set(SlogLevel(level))
	}
	return nil
}

// SlogLevel maps an MCP logging level onto slog. Notice folds into info and
// everything above error folds into error.
func SlogLevel(level mcp.LoggingLevel) slog.Level {
	switch level {
	case mcp.LoggingLevelDebug:
		return slog.LevelDebug
	case mcp.LoggingLevelInfo, mcp.LoggingLevelNotice:
		return slog.LevelInfo
	case mcp.LoggingLevelWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// LoggingLevelFor maps a slog level onto the closest MCP logging level.
func LoggingLevelFor(level slog.Level) mcp.LoggingLevel {
	switch {
	case level >= slog.LevelError:
		return mcp.LoggingLevelError
	case level >= slog.LevelWarn:
		return mcp.LoggingLevelWarning
	case level >= slog.LevelInfo:
		return mcp.LoggingLevelInfo
	default:
		return mcp.LoggingLevelDebug
	}
}
