package sessions

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned when a session ID is not known.
var ErrSessionNotFound = errors.New("session not found")

// ErrEventNotFound is returned by SubscribeSession when lastEventID is not
// (or no longer) part of the session's log.
var ErrEventNotFound = errors.New("last event id not found")

// MessageHandlerFunction handles ordered messages for a session stream.
// Returning an error stops the subscription with that error.
type MessageHandlerFunction func(ctx context.Context, msgID string, msg []byte) error

// SessionHost is the per-session ordered messaging contract used by the HTTP
// transport for server-to-client messages.
type SessionHost interface {
	// PublishSession appends data to the session's log and returns its event ID.
	// Publishing to a session that was cleaned up fails with ErrSessionNotFound
	// rather than starting a new log.
	PublishSession(ctx context.Context, sessionID string, data []byte) (eventID string, err error)
	// SubscribeSession delivers messages published after lastEventID (or, when
	// lastEventID is empty, messages published after the call) in order. It
	// blocks until ctx ends, the handler fails, or CleanupSession is called for
	// the session, in which case it returns nil.
	SubscribeSession(ctx context.Context, sessionID string, lastEventID string, handler MessageHandlerFunction) error
	// CleanupSession discards the session's log and stops its subscribers.
	// Later subscribers for the same id return nil at once.
	CleanupSession(ctx context.Context, sessionID string) error
}
