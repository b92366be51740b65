// Package streaminghttp implements the MCP Streamable HTTP transport. It
// mounts as a standard net/http handler serving three verbs on one path:
//
//   - POST carries client messages. An initialize request without a
//     session header creates a session; requests are answered on a
//     text/event-stream response whose last event is the JSON-RPC response,
//     preceded by any progress or log notifications the call raised.
//   - GET opens the session's server-to-client event stream, resumable
//     with Last-Event-ID.
//   - DELETE terminates the session.
//
// A separate liveness path answers without authentication or session.
//
// # Sessions
//
// The handler owns the table of live sessions. A session enters the table
// only after a successful handshake and leaves it exactly once, on DELETE,
// after the idle timeout, or when Close is called. Requests naming an
// unknown session are rejected with 400.
//
// Server-to-client messages raised outside a POST call are appended to a
// sessions.SessionHost log; memoryhost serves a single process and
// redishost lets several processes share the logs.
//
// # Construction
//
//	h, err := streaminghttp.New(server, auth.NewStaticToken(token),
//	    streaminghttp.WithIdleTimeout(30*time.Minute),
//	    streaminghttp.WithLogger(logger),
//	)
//	...
//	defer h.Close(ctx)
package streaminghttp
