package engine

import (
	"context"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/internal/jsonrpc"
)

// MessageWriter delivers server-originated notifications for one session.
// The HTTP transport publishes them to the session host; stdio writes them
// to its output stream.
type MessageWriter interface {
	WriteMessage(ctx context.Context, msg *jsonrpc.Request) error
}

type MessageWriterFunc func(ctx context.Context, msg *jsonrpc.Request) error

func (f MessageWriterFunc) WriteMessage(ctx context.Context, msg *jsonrpc.Request) error {
	return f(ctx, msg)
}
