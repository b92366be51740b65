// Package sessions defines the session abstraction shared by the transports
// and the tool layer, plus the SessionHost contract used to carry
// server-to-client messages for a session.
//
// Layers & Roles
//
//	Transport   -> owns the session lifetime (stdio: the process, HTTP: the session table)
//	SessionHost -> ordered, resumable server-to-client message log per session
//	Session     -> per-session view handed to tool handlers
//
// # Host Interface
//
// SessionHost keeps an ordered log per session ID. PublishSession appends a
// message and returns its event ID; SubscribeSession replays everything after
// lastEventID and then follows new messages until the context ends or the
// session is cleaned up. The HTTP transport maps event IDs onto the SSE id
// field so clients can resume a dropped GET stream with Last-Event-ID.
//
// Implementations
//
//	memoryhost : in-memory, single process
//	redishost  : Redis Streams, shared between replicas
//
// The conformance suite in sessionhosttest runs against both.
package sessions
