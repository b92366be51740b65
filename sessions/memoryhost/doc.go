// Package memoryhost provides an in-memory sessions.SessionHost suitable for
// tests and single-process servers. All state is discarded on process exit.
//
// Characteristics
//
//	Durability        : none (RAM only)
//	Horizontal scale  : no (process local)
//	Ordering          : monotonic decimal IDs per host
//	Retention         : the most recent N messages per session (WithMaxEvents)
//
// Example:
//
//	host := memoryhost.New()
//	h, err := streaminghttp.New(server, authenticator, streaminghttp.WithSessionHost(host))
//
// For deployments running several replicas behind a load balancer use redishost.
package memoryhost
