// Package stdio serves a single MCP client over newline-delimited JSON-RPC
// on stdin and stdout.
//
// The connection is the session: there is no session id and no
// authentication. Messages are processed strictly in order; the response to
// one request is written before the next line is read. Log notifications
// raised while a tool runs are written as their own lines ahead of the
// response.
//
//	h := stdio.NewHandler(srv, stdio.WithLogger(logger))
//	if err := h.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
//
// Diagnostics must go to stderr since stdout carries the protocol.
package stdio
