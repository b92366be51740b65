package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/internal/engine"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/internal/jsonrpc"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/internal/logctx"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcpservice"
)

const (
	transportName = "stdio"
	sessionID     = "stdio"

	// maxLineBytes bounds a single inbound message.
	maxLineBytes = 4 << 20
)

// Handler serves one MCP client over a pair of byte streams.
type Handler struct {
	srv mcpservice.ServerCapabilities
	r   io.Reader
	w   io.Writer
	l   *slog.Logger
}

// NewHandler builds a Handler reading os.Stdin and writing os.Stdout unless
// overridden by options.
func NewHandler(srv mcpservice.ServerCapabilities, opts ...Option) *Handler {
	h := &Handler{
		srv: srv,
		r:   os.Stdin,
		w:   os.Stdout,
		l:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Serve reads messages until the input ends or ctx is cancelled. Each
// request is answered before the next line is read. It returns nil on EOF
// and ctx.Err() on cancellation.
func (h *Handler) Serve(ctx context.Context) error {
	out := &writeMux{w: bufio.NewWriter(h.w)}
	eng := engine.NewEngine(h.srv, engine.WithLogger(h.l))
	sess := engine.NewSessionHandle(sessionID,
		engine.MessageWriterFunc(func(_ context.Context, msg *jsonrpc.Request) error {
			return out.writeJSONRPC(msg)
		}),
		engine.WithTransport(transportName),
	)

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessionID, Transport: transportName})

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go readLines(ctx, h.r, lines, readErr)

	h.l.InfoContext(ctx, "stdio.serve.start")
	for {
		select {
		case <-ctx.Done():
			h.l.InfoContext(ctx, "stdio.serve.stop", slog.String("reason", "cancelled"))
			return ctx.Err()
		case err := <-readErr:
			if err != nil {
				h.l.ErrorContext(ctx, "stdio.read.fail", slog.String("err", err.Error()))
				return fmt.Errorf("read stdin: %w", err)
			}
			h.l.InfoContext(ctx, "stdio.serve.stop", slog.String("reason", "eof"))
			return nil
		case line := <-lines:
			if resp := h.handleLine(ctx, eng, sess, line); resp != nil {
				if err := out.writeJSONRPC(resp); err != nil {
					h.l.ErrorContext(ctx, "stdio.write.fail", slog.String("err", err.Error()))
					return fmt.Errorf("write stdout: %w", err)
				}
			}
		}
	}
}

// readLines delivers non-empty lines until EOF, a read error, or ctx ends.
// A nil error on errc means EOF.
func readLines(ctx context.Context, r io.Reader, lines chan<- []byte, errc chan<- error) {
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := readLine(br)
		if len(line) > 0 {
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			errc <- err
			return
		}
	}
}

func readLine(br *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		buf = append(buf, chunk...)
		if len(buf) > maxLineBytes {
			return nil, fmt.Errorf("message exceeds %d bytes", maxLineBytes)
		}
		if err != nil {
			return bytes.TrimSpace(buf), err
		}
		if !isPrefix {
			return bytes.TrimSpace(buf), nil
		}
	}
}

// handleLine dispatches one inbound message and returns the response to
// write, if any.
func (h *Handler) handleLine(ctx context.Context, eng *engine.Engine, sess *engine.SessionHandle, line []byte) (resp *jsonrpc.Response) {
	defer func() {
		if r := recover(); r != nil {
			h.l.ErrorContext(ctx, "stdio.panic",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			var id *jsonrpc.RequestID
			var peek struct {
				ID *jsonrpc.RequestID `json:"id"`
			}
			if json.Unmarshal(line, &peek) == nil {
				id = peek.ID
			}
			if id.IsNil() {
				resp = nil
				return
			}
			resp = jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, "internal error", nil)
		}
	}()

	if !json.Valid(line) {
		h.l.InfoContext(ctx, "stdio.message.invalid", slog.String("err", "invalid json"))
		return jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "Parse error", nil)
	}
	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		h.l.InfoContext(ctx, "stdio.message.invalid", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "Invalid Request", nil)
	}

	switch msg.Type() {
	case "request":
		req := msg.AsRequest()
		r, err := eng.HandleRequest(ctx, sess, req)
		if err != nil {
			h.l.ErrorContext(ctx, "stdio.request.fail", slog.String("method", req.Method), slog.String("err", err.Error()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
		}
		return r
	case "notification":
		if err := eng.HandleNotification(ctx, sess, msg.AsRequest()); err != nil {
			h.l.ErrorContext(ctx, "stdio.notification.fail", slog.String("method", msg.Method), slog.String("err", err.Error()))
		}
		return nil
	default:
		// Responses from the client have nothing to correlate with.
		h.l.DebugContext(ctx, "stdio.response.ignored")
		return nil
	}
}

// writeMux serializes writes of whole JSON lines to the output stream.
type writeMux struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func (m *writeMux) writeJSONRPC(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.w.Write(append(b, '\n')); err != nil {
		return err
	}
	return m.w.Flush()
}
