package mcpservice

import (
	"context"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcp"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/sessions"
)

// ServerCapabilities describes the server to the protocol engine. Capability
// discovery methods return (cap, ok, err); ok == false means the capability
// is not advertised for the session.
type ServerCapabilities interface {
	// GetServerInfo returns the implementation information surfaced in
	// initialize results.
	GetServerInfo(ctx context.Context, session sessions.Session) (mcp.ImplementationInfo, error)

	// GetPreferredProtocolVersion picks the protocol revision to answer an
	// initialize request carrying clientVersion.
	GetPreferredProtocolVersion(ctx context.Context, clientVersion string) (string, error)

	// GetInstructions returns optional human-readable instructions for the
	// initialize result.
	GetInstructions(ctx context.Context, session sessions.Session) (instructions string, ok bool, err error)

	GetToolsCapability(ctx context.Context, session sessions.Session) (cap ToolsCapability, ok bool, err error)

	GetLoggingCapability(ctx context.Context, session sessions.Session) (cap LoggingCapability, ok bool, err error)
}

// ToolsCapability defines the server's tools surface area. All methods MUST be
// safe for concurrent use.
type ToolsCapability interface {
	// ListTools returns a page of tools. A nil cursor requests the first page.
	ListTools(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Tool], error)

	// CallTool invokes a named tool. Unknown names yield an error wrapping
	// ErrToolNotFound; invalid arguments yield an *ArgumentError.
	CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)
}

// LoggingCapability lets the client adjust the threshold of the
// notifications/message stream for a session.
type LoggingCapability interface {
	SetLevel(ctx context.Context, session sessions.Session, level mcp.LoggingLevel) error
}
