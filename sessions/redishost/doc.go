// Package redishost implements sessions.SessionHost on Redis Streams so that
// several server replicas can share the event streams of Streamable HTTP
// sessions.
//
// Each session owns one stream. PublishSession appends with XADD (trimmed to
// an approximate MAXLEN) and SubscribeSession polls with a blocking XREAD,
// resuming after the stream entry named by Last-Event-ID. CleanupSession
// appends a tombstone entry that terminates live subscribers and then lets
// the stream expire.
//
// Example:
//
//	host, err := redishost.NewFromEnv()
//	if err != nil {
//		return err
//	}
//	defer host.Close()
//
// Use memoryhost for a single process.
package redishost
