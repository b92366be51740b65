package streaminghttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/auth"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/internal/engine"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/internal/jsonrpc"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/internal/logctx"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcp"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcpservice"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/sessions"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/sessions/memoryhost"
	"github.com/google/uuid"
)

var (
	_ http.Handler = (*StreamingHTTPHandler)(nil)
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

const (
	// Use canonical header names for clarity; Go matches headers case-insensitively.
	lastEventIDHeader        = "Last-Event-ID"
	mcpSessionIDHeader       = "Mcp-Session-Id"
	mcpProtocolVersionHeader = "Mcp-Protocol-Version"
	authorizationHeader      = "Authorization"
	wwwAuthenticateHeader    = "WWW-Authenticate"
)

const (
	DefaultPath       = "/mcp"
	DefaultHealthPath = "/health"
	DefaultKeepAlive  = 15 * time.Second

	maxBodyBytes = 4 << 20
)

const msgNoValidSession = "Bad Request: No valid session ID provided"

// Option configures the StreamingHTTPHandler.
type Option func(*newConfig)

type newConfig struct {
	logger      *slog.Logger
	path        string
	healthPath  string
	host        sessions.SessionHost
	idleTimeout time.Duration
	keepAlive   time.Duration
	serverName  string
	version     string
	realm       string
}

// WithLogger sets the logger used by the handler. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) { c.logger = l }
}

// WithPath sets the path serving POST, GET and DELETE. Defaults to DefaultPath.
func WithPath(path string) Option {
	return func(c *newConfig) { c.path = path }
}

// WithHealthPath sets the unauthenticated liveness path. Defaults to
// DefaultHealthPath.
func WithHealthPath(path string) Option {
	return func(c *newConfig) { c.healthPath = path }
}

// WithSessionHost sets the event log backing GET streams. Defaults to an
// in-memory host.
func WithSessionHost(h sessions.SessionHost) Option {
	return func(c *newConfig) { c.host = h }
}

// WithIdleTimeout closes sessions that saw no traffic for d. Zero disables
// the reaper.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *newConfig) { c.idleTimeout = d }
}

// WithKeepAlive sets the interval of SSE comment pings on GET streams. Zero
// disables them.
func WithKeepAlive(d time.Duration) Option {
	return func(c *newConfig) { c.keepAlive = d }
}

// WithServerName sets the server name reported by the liveness endpoint.
func WithServerName(name string) Option {
	return func(c *newConfig) { c.serverName = name }
}

// WithVersion sets the version reported by the liveness endpoint.
func WithVersion(version string) Option {
	return func(c *newConfig) { c.version = version }
}

// WithRealm sets the HTTP authentication realm advertised in WWW-Authenticate
// challenges. If empty (default), the realm attribute is omitted entirely per
// RFC 6750.
func WithRealm(realm string) Option {
	return func(c *newConfig) { c.realm = strings.TrimSpace(realm) }
}

// StreamingHTTPHandler implements the Streamable HTTP transport of the Model
// Context Protocol. It owns the table of live sessions.
type StreamingHTTPHandler struct {
	mux  *http.ServeMux
	log  *slog.Logger
	auth auth.Authenticator
	eng  *engine.Engine
	host sessions.SessionHost

	sessions *sessionTable

	serverName  string
	version     string
	realm       string
	idleTimeout time.Duration
	keepAlive   time.Duration

	done      chan struct{}
	closeOnce sync.Once
	janitor   sync.WaitGroup
}

// New constructs a StreamingHTTPHandler serving server. A nil authenticator
// admits every request.
func New(server mcpservice.ServerCapabilities, authenticator auth.Authenticator, opts ...Option) (*StreamingHTTPHandler, error) {
	if server == nil {
		return nil, fmt.Errorf("server is required")
	}

	cfg := &newConfig{
		logger:     slog.Default(),
		path:       DefaultPath,
		healthPath: DefaultHealthPath,
		keepAlive:  DefaultKeepAlive,
		serverName: "mcp-server",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if !strings.HasPrefix(cfg.path, "/") {
		return nil, fmt.Errorf("path must start with '/', got %q", cfg.path)
	}
	if !strings.HasPrefix(cfg.healthPath, "/") {
		return nil, fmt.Errorf("health path must start with '/', got %q", cfg.healthPath)
	}
	if cfg.path == cfg.healthPath {
		return nil, fmt.Errorf("path and health path must differ, both are %q", cfg.path)
	}
	if cfg.idleTimeout < 0 || cfg.keepAlive < 0 {
		return nil, fmt.Errorf("idle timeout and keep-alive must not be negative")
	}
	if cfg.host == nil {
		cfg.host = memoryhost.New()
	}

	log := slog.New(logctx.New(cfg.logger.Handler()))

	h := &StreamingHTTPHandler{
		log:         log,
		auth:        authenticator,
		eng:         engine.NewEngine(server, engine.WithLogger(log)),
		host:        cfg.host,
		sessions:    newSessionTable(),
		serverName:  cfg.serverName,
		version:     cfg.version,
		realm:       cfg.realm,
		idleTimeout: cfg.idleTimeout,
		keepAlive:   cfg.keepAlive,
		done:        make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+cfg.path, h.withAuth(h.handlePostMCP))
	mux.HandleFunc("GET "+cfg.path, h.withAuth(h.handleGetMCP))
	mux.HandleFunc("DELETE "+cfg.path, h.withAuth(h.handleDeleteMCP))
	mux.HandleFunc("GET "+cfg.healthPath, h.handleHealth)
	h.mux = mux

	if h.idleTimeout > 0 {
		h.janitor.Add(1)
		go h.runJanitor()
	}

	return h, nil
}

func (h *StreamingHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
	rw := &recoverWriter{ResponseWriter: w}
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		if v == http.ErrAbortHandler {
			panic(v)
		}
		h.log.ErrorContext(ctx, "http.panic", slog.Any("panic", v), slog.String("stack", string(debug.Stack())))
		if !rw.wroteHeader {
			writeRPCError(rw, http.StatusInternalServerError, nil, jsonrpc.ErrorCodeInternalError, "Internal error")
		}
	}()
	h.mux.ServeHTTP(rw, r.WithContext(ctx))
}

// Close stops the idle reaper and closes every open session. The handler
// keeps serving the liveness endpoint afterwards.
func (h *StreamingHTTPHandler) Close(ctx context.Context) error {
	h.closeOnce.Do(func() { close(h.done) })
	h.janitor.Wait()

	open := h.sessions.snapshot()
	for _, s := range open {
		h.closeSession(ctx, s, "shutdown")
	}
	h.log.InfoContext(ctx, "http.close.ok", slog.Int("sessions", len(open)))
	return nil
}

type healthStatus struct {
	Status  string `json:"status"`
	Server  string `json:"server"`
	Version string `json:"version"`
}

func (h *StreamingHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(healthStatus{Status: "ok", Server: h.serverName, Version: h.version})
}

// handlePostMCP handles the POST endpoint, which carries client messages and
// establishes sessions.
func (h *StreamingHTTPHandler) handlePostMCP(w http.ResponseWriter, r *http.Request, userID string) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.post.start")

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeRPCError(w, http.StatusUnsupportedMediaType, nil, jsonrpc.ErrorCodeServerError, "Unsupported Media Type: Content-Type must be application/json")
		h.log.WarnContext(ctx, "content_type.unsupported")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeRPCError(w, http.StatusBadRequest, nil, jsonrpc.ErrorCodeParseError, "Parse error")
		h.log.WarnContext(ctx, "http.body.read.fail", slog.String("err", err.Error()))
		return
	}
	raw := bytes.TrimSpace(body)
	if len(raw) > 0 && raw[0] == '[' {
		writeRPCError(w, http.StatusBadRequest, nil, jsonrpc.ErrorCodeInvalidRequest, "Invalid Request: batch requests are not supported")
		h.log.WarnContext(ctx, "jsonrpc.batch.forbidden")
		return
	}
	if !json.Valid(raw) {
		writeRPCError(w, http.StatusBadRequest, nil, jsonrpc.ErrorCodeParseError, "Parse error")
		h.log.WarnContext(ctx, "json.decode.fail")
		return
	}

	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		writeRPCError(w, http.StatusBadRequest, nil, jsonrpc.ErrorCodeInvalidRequest, "Invalid Request")
		h.log.WarnContext(ctx, "jsonrpc.message.invalid", slog.String("err", err.Error()))
		return
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Type:   msg.Type(),
	})

	if r.Header.Get(mcpSessionIDHeader) == "" {
		req := msg.AsRequest()
		if req == nil || req.IsNotification() || req.Method != string(mcp.InitializeMethod) {
			writeRPCError(w, http.StatusBadRequest, nil, jsonrpc.ErrorCodeServerError, msgNoValidSession)
			h.log.InfoContext(ctx, "session.id.missing")
			return
		}
		h.initializeSession(ctx, w, userID, req, start)
		return
	}

	sess, ok := h.lookupSession(ctx, w, r)
	if !ok {
		return
	}
	sess.touch()
	sess.inflight.Add(1)
	defer sess.inflight.Add(-1)
	ctx = withSessionData(ctx, sess)

	req := msg.AsRequest()
	if req == nil {
		// This server never issues requests, so there is nothing to match
		// a client response against.
		setProtocolVersion(w, sess)
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "response.inbound.ignored", slog.Duration("dur", time.Since(start)))
		return
	}

	if req.IsNotification() {
		if err := h.eng.HandleNotification(ctx, sess.handle, req); err != nil {
			writeRPCError(w, http.StatusInternalServerError, nil, jsonrpc.ErrorCodeInternalError, "Internal error")
			h.log.ErrorContext(ctx, "notification.inbound.fail", slog.String("err", err.Error()))
			return
		}
		setProtocolVersion(w, sess)
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "notification.inbound.ok", slog.Duration("dur", time.Since(start)))
		return
	}

	if req.Method == string(mcp.InitializeMethod) {
		writeRPCError(w, http.StatusBadRequest, req.ID, jsonrpc.ErrorCodeInvalidRequest, "Invalid Request: Server already initialized")
		h.log.WarnContext(ctx, "session.initialize.redundant")
		return
	}

	if acc := r.Header.Get("Accept"); acc != "" {
		if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
			writeRPCError(w, http.StatusNotAcceptable, req.ID, jsonrpc.ErrorCodeServerError, "Not Acceptable: Client must accept text/event-stream")
			h.log.WarnContext(ctx, "accept.unsupported", slog.String("accept", acc))
			return
		}
	}

	f, ok := w.(http.Flusher)
	if !ok {
		writeRPCError(w, http.StatusInternalServerError, req.ID, jsonrpc.ErrorCodeInternalError, "Internal error")
		h.log.ErrorContext(ctx, "flusher.missing")
		return
	}
	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: r.Context()}

	setProtocolVersion(w, sess)
	setEventStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	// The call is detached from the request so that a client disconnect
	// does not abort a write half way through. Its result is dropped if the
	// stream is gone by then.
	callCtx := withStream(context.WithoutCancel(ctx), wf)

	res, err := h.eng.HandleRequest(callCtx, sess.handle, req)
	if err != nil {
		h.log.ErrorContext(ctx, "rpc.inbound.fail", slog.String("err", err.Error()))
		res = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "Internal error", nil)
	}

	b, err := json.Marshal(res)
	if err != nil {
		h.log.ErrorContext(ctx, "rpc.response.marshal.fail", slog.String("err", err.Error()))
		return
	}
	if err := writeSSEEvent(wf, "", b); err != nil {
		h.log.WarnContext(ctx, "rpc.response.discarded", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "rpc.inbound.ok", slog.Duration("dur", time.Since(start)))
}

// initializeSession runs the handshake for a new binding. The binding enters
// the table only once the handshake succeeds.
func (h *StreamingHTTPHandler) initializeSession(ctx context.Context, w http.ResponseWriter, userID string, req *jsonrpc.Request, start time.Time) {
	id := uuid.NewString()
	handle := engine.NewSessionHandle(id, h.sessionWriter(id), engine.WithUserID(userID), engine.WithTransport("http"))
	sess := newSession(id, handle)

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: id, Transport: "http"})

	resp, err := h.eng.Initialize(ctx, handle, req)
	if err != nil {
		writeRPCError(w, http.StatusInternalServerError, req.ID, jsonrpc.ErrorCodeInternalError, "Internal error")
		h.log.ErrorContext(ctx, "session.initialize.fail", slog.String("err", err.Error()))
		return
	}
	if resp.Error != nil {
		writeJSON(w, http.StatusBadRequest, resp)
		h.log.InfoContext(ctx, "session.initialize.rejected", slog.String("err", resp.Error.Message))
		return
	}

	h.sessions.insert(sess)

	w.Header().Set(mcpSessionIDHeader, id)
	setProtocolVersion(w, sess)
	writeJSON(w, http.StatusOK, resp)
	h.log.InfoContext(ctx, "session.initialize.ok", slog.Duration("dur", time.Since(start)))
}

// handleGetMCP streams server-to-client messages of an established session.
func (h *StreamingHTTPHandler) handleGetMCP(w http.ResponseWriter, r *http.Request, _ string) {
	start := time.Now()
	ctx := r.Context()

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); r.Header.Get("Accept") == "" || err != nil {
		writeRPCError(w, http.StatusNotAcceptable, nil, jsonrpc.ErrorCodeServerError, "Not Acceptable: Client must accept text/event-stream")
		h.log.WarnContext(ctx, "http.get.unsupported_media_type")
		return
	}

	sess, ok := h.lookupSession(ctx, w, r)
	if !ok {
		return
	}
	ctx = withSessionData(ctx, sess)

	f, ok := w.(http.Flusher)
	if !ok {
		writeRPCError(w, http.StatusInternalServerError, nil, jsonrpc.ErrorCodeInternalError, "Internal error")
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}

	if !sess.streaming.CompareAndSwap(false, true) {
		writeRPCError(w, http.StatusConflict, nil, jsonrpc.ErrorCodeServerError, "Conflict: Only one SSE stream is allowed per session")
		h.log.WarnContext(ctx, "sse.stream.conflict")
		return
	}
	defer func() {
		sess.touch()
		sess.streaming.Store(false)
	}()

	// The stream ends with the request or with the session.
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sess.ctx, cancel)
	defer stop()

	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: streamCtx}

	setProtocolVersion(w, sess)
	setEventStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	h.log.InfoContext(ctx, "sse.stream.start")

	var pings sync.WaitGroup
	if h.keepAlive > 0 {
		pings.Add(1)
		go func() {
			defer pings.Done()
			keepAlive(streamCtx, wf, h.keepAlive)
		}()
	}

	err := h.host.SubscribeSession(streamCtx, sess.id, r.Header.Get(lastEventIDHeader), func(cbCtx context.Context, msgID string, msg []byte) error {
		if err := writeSSEEvent(wf, msgID, msg); err != nil {
			return err
		}
		h.log.DebugContext(cbCtx, "sse.message.deliver", slog.String("event_id", msgID))
		return nil
	})
	cancel()
	pings.Wait()

	switch {
	case err == nil:
		h.log.InfoContext(ctx, "sse.stream.end", slog.Duration("dur", time.Since(start)))
	case errors.Is(err, sessions.ErrEventNotFound):
		h.log.WarnContext(ctx, "sse.resume.miss", slog.String("last_event_id", r.Header.Get(lastEventIDHeader)))
	case errors.Is(err, context.Canceled):
		h.log.InfoContext(ctx, "sse.stream.done", slog.Duration("dur", time.Since(start)))
	default:
		h.log.ErrorContext(ctx, "sse.stream.fail", slog.String("err", err.Error()))
	}
}

// handleDeleteMCP terminates a session. Unknown sessions are an error.
func (h *StreamingHTTPHandler) handleDeleteMCP(w http.ResponseWriter, r *http.Request, _ string) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.delete.start")

	sess, ok := h.lookupSession(ctx, w, r)
	if !ok {
		return
	}
	ctx = withSessionData(ctx, sess)

	h.closeSession(ctx, sess, "delete")

	setProtocolVersion(w, sess)
	w.WriteHeader(http.StatusNoContent)
	h.log.InfoContext(ctx, "http.delete.ok", slog.Duration("dur", time.Since(start)))
}

// lookupSession resolves the session header. On failure the response has
// already been written.
func (h *StreamingHTTPHandler) lookupSession(ctx context.Context, w http.ResponseWriter, r *http.Request) (*session, bool) {
	id := r.Header.Get(mcpSessionIDHeader)
	if id == "" {
		writeRPCError(w, http.StatusBadRequest, nil, jsonrpc.ErrorCodeServerError, msgNoValidSession)
		h.log.InfoContext(ctx, "session.id.missing")
		return nil, false
	}
	sess, ok := h.sessions.get(id)
	if !ok {
		writeRPCError(w, http.StatusBadRequest, nil, jsonrpc.ErrorCodeServerError, msgNoValidSession)
		h.log.InfoContext(ctx, "session.load.miss", slog.String("session_id", id))
		return nil, false
	}
	if pv := r.Header.Get(mcpProtocolVersionHeader); pv != "" {
		if spv := sess.handle.ProtocolVersion(); spv != "" && pv != spv {
			writeRPCError(w, http.StatusBadRequest, nil, jsonrpc.ErrorCodeInvalidRequest, "Bad Request: Unsupported protocol version")
			h.log.WarnContext(ctx, "protocol.version.mismatch", slog.String("client_version", pv))
			return nil, false
		}
	}
	return sess, true
}

// closeSession tears down a binding exactly once: the table entry, the GET
// stream and the host's event log.
func (h *StreamingHTTPHandler) closeSession(ctx context.Context, s *session, reason string) {
	s.closeOnce.Do(func() {
		removed := h.sessions.remove(s.id, s)
		s.cancel()
		if err := h.host.CleanupSession(context.WithoutCancel(ctx), s.id); err != nil {
			h.log.ErrorContext(ctx, "session.cleanup.fail", slog.String("session_id", s.id), slog.String("err", err.Error()))
		}
		h.log.InfoContext(ctx, "session.close.ok",
			slog.String("session_id", s.id),
			slog.String("reason", reason),
			slog.Bool("removed", removed),
		)
	})
}

func (h *StreamingHTTPHandler) runJanitor() {
	defer h.janitor.Done()

	interval := h.idleTimeout / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-h.done:
			return
		case now := <-t.C:
			h.reapIdle(now)
		}
	}
}

func (h *StreamingHTTPHandler) reapIdle(now time.Time) {
	for _, s := range h.sessions.snapshot() {
		if s.streaming.Load() || s.inflight.Load() > 0 {
			continue
		}
		if s.idleFor(now) >= h.idleTimeout {
			h.closeSession(context.Background(), s, "idle")
		}
	}
}

// sessionWriter delivers server-originated messages for session id. A
// message raised while a POST stream is open for the same call goes there;
// everything else is appended to the session's event log for the GET stream.
// Once the session has left the table its messages are dropped.
func (h *StreamingHTTPHandler) sessionWriter(id string) engine.MessageWriter {
	return engine.MessageWriterFunc(func(ctx context.Context, msg *jsonrpc.Request) error {
		b, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal notification: %w", err)
		}
		if wf := streamFrom(ctx); wf != nil {
			if err := writeSSEEvent(wf, "", b); err == nil {
				return nil
			}
		}
		if _, ok := h.sessions.get(id); !ok {
			h.log.DebugContext(ctx, "session.message.drop", slog.String("session_id", id), slog.String("method", msg.Method))
			return nil
		}
		if _, err := h.host.PublishSession(context.WithoutCancel(ctx), id, b); err != nil {
			return fmt.Errorf("publish to session: %w", err)
		}
		return nil
	})
}

// withAuth runs the authorization check before next. Without an
// authenticator every request passes.
func (h *StreamingHTTPHandler) withAuth(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.auth == nil {
			next(w, r, "")
			return
		}
		userID, ok := h.checkAuthentication(r.Context(), r, w)
		if !ok {
			return
		}
		next(w, r, userID)
	}
}

func (h *StreamingHTTPHandler) checkAuthentication(ctx context.Context, r *http.Request, w http.ResponseWriter) (string, bool) {
	authHeader := r.Header.Get(authorizationHeader)
	if authHeader == "" {
		// RFC 6750 §3.1: no error code when the request carries no credentials.
		h.log.InfoContext(ctx, "auth.check.missing")
		h.writeUnauthorized(w, nil)
		return "", false
	}

	const bearerPrefix = "Bearer "
	tok, found := strings.CutPrefix(authHeader, bearerPrefix)
	if !found || tok == "" {
		h.log.InfoContext(ctx, "auth.check.invalid", slog.String("err", "malformed bearer authorization header"))
		h.writeUnauthorized(w, map[string]string{"error": "invalid_request", "error_description": "malformed bearer authorization header"})
		return "", false
	}

	userInfo, err := h.auth.CheckAuthentication(ctx, tok)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
			h.writeUnauthorized(w, map[string]string{"error": "invalid_token", "error_description": "the access token is invalid"})
			return "", false
		}
		h.log.ErrorContext(ctx, "auth.check.err", slog.String("err", err.Error()))
		writeRPCError(w, http.StatusInternalServerError, nil, jsonrpc.ErrorCodeInternalError, "Internal error")
		return "", false
	}

	return userInfo.UserID(), true
}

func (h *StreamingHTTPHandler) writeUnauthorized(w http.ResponseWriter, params map[string]string) {
	w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(h.realm, params))
	writeRPCError(w, http.StatusUnauthorized, nil, jsonrpc.ErrorCodeUnauthorized, "Unauthorized")
}

// buildBearerChallenge builds a standardized Bearer challenge header value.
// Format:
//
//	Bearer realm="<realm>", error="...", error_description="..."
//
// Realm is omitted if empty.
func buildBearerChallenge(realm string, params map[string]string) string {
	pieces := make([]string, 0, 3)
	esc := func(v string) string { return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) }
	if realm != "" {
		pieces = append(pieces, fmt.Sprintf(`realm="%s"`, esc(realm)))
	}
	for _, k := range []string{"error", "error_description"} {
		if v, ok := params[k]; ok {
			pieces = append(pieces, fmt.Sprintf(`%s="%s"`, k, esc(v)))
		}
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}

func withSessionData(ctx context.Context, s *session) context.Context {
	return logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       s.id,
		Transport:       "http",
		ProtocolVersion: s.handle.ProtocolVersion(),
	})
}

func setProtocolVersion(w http.ResponseWriter, s *session) {
	if v := s.handle.ProtocolVersion(); v != "" {
		w.Header().Set(mcpProtocolVersionHeader, v)
	}
}

func setEventStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// writeRPCError emits a JSON-RPC error envelope for rejections that happen
// outside a message exchange.
func writeRPCError(w http.ResponseWriter, status int, id *jsonrpc.RequestID, code jsonrpc.ErrorCode, msg string) {
	writeJSON(w, status, jsonrpc.NewErrorResponse(id, code, msg, nil))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
