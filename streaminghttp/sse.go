package streaminghttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// lockedWriteFlusher wraps an io.Writer + http.Flusher with a mutex and an optional context.
// It serializes concurrent writes/flushes and avoids writing after ctx is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// Re-check after acquiring the lock to minimize races with cancellation
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// writeSSEEvent writes one Server-Sent Event carrying payload as its data
// field and flushes it. The frame goes out in a single write so concurrent
// senders never interleave.
func writeSSEEvent(wf *lockedWriteFlusher, msgID string, payload []byte) error {
	var buf bytes.Buffer
	if msgID != "" {
		buf.WriteString("id: ")
		buf.WriteString(msgID)
		buf.WriteByte('\n')
	}
	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	if _, err := wf.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}
	wf.Flush()
	return nil
}

// keepAlive writes an SSE comment every interval until ctx ends or a write fails.
func keepAlive(ctx context.Context, wf *lockedWriteFlusher, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := wf.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			wf.Flush()
		}
	}
}

type streamKey struct{}

// withStream attaches the POST response stream of the current call.
func withStream(ctx context.Context, wf *lockedWriteFlusher) context.Context {
	return context.WithValue(ctx, streamKey{}, wf)
}

func streamFrom(ctx context.Context) *lockedWriteFlusher {
	wf, _ := ctx.Value(streamKey{}).(*lockedWriteFlusher)
	return wf
}

// recoverWriter records whether a response was started so a recovered panic
// can still answer with an error envelope.
type recoverWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *recoverWriter) WriteHeader(code int) {
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *recoverWriter) Write(p []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(p)
}

func (w *recoverWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *recoverWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
