package engine

import (
	"context"
	"encoding/json"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcp"
)

// progressReporter emits notifications/progress correlated by the token the
// client placed in the request's _meta.
type progressReporter struct {
	sess  *SessionHandle
	token json.RawMessage
}

func (p *progressReporter) Report(ctx context.Context, progress, total float64, message string) error {
	return p.sess.Notify(ctx, mcp.ProgressNotificationMethod, &mcp.ProgressNotificationParams{
		ProgressToken: p.token,
		Progress:      progress,
		Total:         total,
		Message:       message,
	})
}
