package mcpservice

import (
	"context"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcp"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/sessions"
)

// ServerOption configures the ServerCapabilities returned by NewServer.
type ServerOption func(*server)

type server struct {
	info         mcp.ImplementationInfo
	instructions string
	toolsCap     ToolsCapability
	loggingCap   LoggingCapability
}

// NewServer builds a ServerCapabilities using functional options. The same
// capabilities are served to every session.
func NewServer(opts ...ServerOption) ServerCapabilities {
	s := &server{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithServerInfo sets the implementation info returned by initialize.
func WithServerInfo(info mcp.ImplementationInfo) ServerOption {
	return func(s *server) { s.info = info }
}

// WithInstructions sets human-readable instructions returned during initialize.
func WithInstructions(instr string) ServerOption {
	return func(s *server) { s.instructions = instr }
}

// WithToolsCapability wires the tools capability.
func WithToolsCapability(cap ToolsCapability) ServerOption {
	return func(s *server) { s.toolsCap = cap }
}

// WithLoggingCapability wires the logging capability.
func WithLoggingCapability(cap LoggingCapability) ServerOption {
	return func(s *server) { s.loggingCap = cap }
}

func (s *server) GetServerInfo(ctx context.Context, session sessions.Session) (mcp.ImplementationInfo, error) {
	return s.info, nil
}

func (s *server) GetPreferredProtocolVersion(ctx context.Context, clientVersion string) (string, error) {
	return mcp.NegotiateProtocolVersion(clientVersion), nil
}

func (s *server) GetInstructions(ctx context.Context, session sessions.Session) (string, bool, error) {
	return s.instructions, s.instructions != "", nil
}

func (s *server) GetToolsCapability(ctx context.Context, session sessions.Session) (ToolsCapability, bool, error) {
	return s.toolsCap, s.toolsCap != nil, nil
}

func (s *server) GetLoggingCapability(ctx context.Context, session sessions.Session) (LoggingCapability, bool, error) {
	return s.loggingCap, s.loggingCap != nil, nil
}
