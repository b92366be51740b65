package stdio_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/internal/jsonrpc"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcp"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcpservice"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/sessions"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/stdio"
)

const (
	initializeLine  = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"test-client","version":"1.0.0"}}}`
	initializedLine = `{"jsonrpc":"2.0","method":"notifications/initialized"}`
)

type echoArgs struct {
	Text string `json:"text"`
}

func testServer() mcpservice.ServerCapabilities {
	tools := mcpservice.NewToolsContainer(
		mcpservice.NewTool("echo", func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[echoArgs]) error {
			return w.AppendText(r.Args().Text)
		}),
		mcpservice.NewTool("log", func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[echoArgs]) error {
			s.Logger().InfoContext(ctx, r.Args().Text)
			return w.AppendText("logged")
		}),
		mcpservice.NewTool("boom", func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[echoArgs]) error {
			panic("boom")
		}),
	)
	return mcpservice.NewServer(
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "test-server", Version: "1.2.3"}),
		mcpservice.WithToolsCapability(tools),
		mcpservice.WithLoggingCapability(mcpservice.NewSessionLogging()),
	)
}

// serveLines runs a handler over the given input lines until EOF and
// returns every output line.
func serveLines(t *testing.T, lines ...string) []string {
	t.Helper()
	var out bytes.Buffer
	h := stdio.NewHandler(testServer(),
		stdio.WithIO(strings.NewReader(strings.Join(lines, "\n")+"\n"), &out),
		stdio.WithLogger(slog.New(slog.DiscardHandler)),
	)
	if err := h.Serve(t.Context()); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	var got []string
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		got = append(got, sc.Text())
	}
	return got
}

func decode(t *testing.T, line string) *jsonrpc.AnyMessage {
	t.Helper()
	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	return &msg
}

func mustResult(t *testing.T, line string, id string, v any) {
	t.Helper()
	msg := decode(t, line)
	if msg.Type() != "response" {
		t.Fatalf("expected response, got %s: %s", msg.Type(), line)
	}
	if msg.ID.String() != id {
		t.Fatalf("expected id %s, got %s", id, msg.ID.String())
	}
	if msg.Error != nil {
		t.Fatalf("unexpected error: %+v", msg.Error)
	}
	if v != nil {
		if err := json.Unmarshal(msg.Result, v); err != nil {
			t.Fatalf("decode result: %v", err)
		}
	}
}

func mustError(t *testing.T, line string, code jsonrpc.ErrorCode) *jsonrpc.AnyMessage {
	t.Helper()
	msg := decode(t, line)
	if msg.Error == nil {
		t.Fatalf("expected error response, got %s", line)
	}
	if msg.Error.Code != code {
		t.Fatalf("expected code %d, got %d (%s)", code, msg.Error.Code, msg.Error.Message)
	}
	return msg
}

func TestServe_Session(t *testing.T) {
	t.Parallel()
	out := serveLines(t,
		initializeLine,
		initializedLine,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}}}`,
		`{"jsonrpc":"2.0","id":"four","method":"ping"}`,
	)
	if len(out) != 4 {
		t.Fatalf("expected 4 output lines, got %d: %q", len(out), out)
	}

	var init mcp.InitializeResult
	mustResult(t, out[0], "1", &init)
	if init.ServerInfo.Name != "test-server" || init.ProtocolVersion != "2025-06-18" {
		t.Fatalf("unexpected initialize result: %+v", init)
	}

	var list mcp.ListToolsResult
	mustResult(t, out[1], "2", &list)
	if len(list.Tools) != 3 || list.Tools[0].Name != "echo" {
		t.Fatalf("unexpected tools: %+v", list.Tools)
	}

	var call mcp.CallToolResult
	mustResult(t, out[2], "3", &call)
	if call.IsError || len(call.Content) != 1 || call.Content[0].Text != "hi" {
		t.Fatalf("unexpected call result: %+v", call)
	}

	mustResult(t, out[3], "four", nil)
}

func TestServe_RequestBeforeInitialize(t *testing.T) {
	t.Parallel()
	out := serveLines(t, `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`)
	if len(out) != 1 {
		t.Fatalf("expected 1 line, got %q", out)
	}
	msg := mustError(t, out[0], jsonrpc.ErrorCodeInvalidRequest)
	if msg.ID.String() != "7" {
		t.Fatalf("expected id 7, got %s", msg.ID.String())
	}
}

func TestServe_MalformedInput(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		line string
		code jsonrpc.ErrorCode
	}{
		{"not json", `{"jsonrpc":`, jsonrpc.ErrorCodeParseError},
		{"garbage", `hello`, jsonrpc.ErrorCodeParseError},
		{"batch", `[` + initializeLine + `]`, jsonrpc.ErrorCodeInvalidRequest},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, jsonrpc.ErrorCodeInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out := serveLines(t, tc.line, initializeLine)
			if len(out) != 2 {
				t.Fatalf("expected 2 lines, got %q", out)
			}
			mustError(t, out[0], tc.code)
			if !strings.HasSuffix(out[0], `"id":null}`) {
				t.Fatalf("expected null id, got %s", out[0])
			}
			// The stream keeps going after a bad line.
			mustResult(t, out[1], "1", nil)
		})
	}
}

func TestServe_SilentMessages(t *testing.T) {
	t.Parallel()
	out := serveLines(t,
		initializeLine,
		"",
		"   ",
		initializedLine,
		`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":99}}`,
		`{"jsonrpc":"2.0","id":42,"result":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/unknown"}`,
	)
	if len(out) != 1 {
		t.Fatalf("expected only the initialize response, got %q", out)
	}
	mustResult(t, out[0], "1", nil)
}

func TestServe_ReinitializeRejected(t *testing.T) {
	t.Parallel()
	out := serveLines(t, initializeLine, strings.Replace(initializeLine, `"id":1`, `"id":2`, 1))
	if len(out) != 2 {
		t.Fatalf("expected 2 lines, got %q", out)
	}
	mustError(t, out[1], jsonrpc.ErrorCodeInvalidRequest)
}

func TestServe_LogNotificationPrecedesResponse(t *testing.T) {
	t.Parallel()
	out := serveLines(t,
		initializeLine,
		initializedLine,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"log","arguments":{"text":"hello"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"logging/setLevel","params":{"level":"error"}}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"log","arguments":{"text":"quiet"}}}`,
	)
	if len(out) != 5 {
		t.Fatalf("expected 5 lines, got %d: %q", len(out), out)
	}

	note := decode(t, out[1])
	if note.Type() != "notification" || note.Method != string(mcp.LoggingMessageNotificationMethod) {
		t.Fatalf("expected log notification, got %s", out[1])
	}
	var params mcp.LoggingMessageNotification
	if err := json.Unmarshal(note.Params, &params); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if params.Level != mcp.LoggingLevelInfo || params.Logger != "test-server" {
		t.Fatalf("unexpected notification: %+v", params)
	}
	if data, _ := params.Data.(map[string]any); data["message"] != "hello" {
		t.Fatalf("unexpected data: %#v", params.Data)
	}

	mustResult(t, out[2], "2", nil)
	mustResult(t, out[3], "3", nil)
	// Below the session threshold: no notification line.
	mustResult(t, out[4], "4", nil)
}

func TestServe_ToolErrors(t *testing.T) {
	t.Parallel()
	out := serveLines(t,
		initializeLine,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"nope","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"text":5}}}`,
		`{"jsonrpc":"2.0","id":4,"method":"nope/nope"}`,
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"boom","arguments":{"text":"x"}}}`,
		`{"jsonrpc":"2.0","id":6,"method":"ping"}`,
	)
	if len(out) != 6 {
		t.Fatalf("expected 6 lines, got %d: %q", len(out), out)
	}
	mustError(t, out[1], jsonrpc.ErrorCodeInvalidParams)
	mustError(t, out[2], jsonrpc.ErrorCodeInvalidParams)
	mustError(t, out[3], jsonrpc.ErrorCodeMethodNotFound)
	if msg := mustError(t, out[4], jsonrpc.ErrorCodeInternalError); msg.ID.String() != "5" {
		t.Fatalf("expected id 5, got %s", msg.ID.String())
	}
	// A panicking tool does not take the connection down.
	mustResult(t, out[5], "6", nil)
}

// pipeOutput collects lines written to w as they arrive.
type pipeOutput struct {
	mu    sync.Mutex
	lines []string
}

func collect(r io.Reader) *pipeOutput {
	p := &pipeOutput{}
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			p.mu.Lock()
			p.lines = append(p.lines, sc.Text())
			p.mu.Unlock()
		}
	}()
	return p
}

func (p *pipeOutput) wait(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		if len(p.lines) >= n {
			out := append([]string(nil), p.lines...)
			p.mu.Unlock()
			return out
		}
		p.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d output lines", n)
	return nil
}

func TestServe_Cancellation(t *testing.T) {
	t.Parallel()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	t.Cleanup(func() {
		_ = inW.Close()
		_ = outW.Close()
	})
	lines := collect(outR)

	h := stdio.NewHandler(testServer(), stdio.WithReader(inR), stdio.WithWriter(outW), stdio.WithLogger(slog.New(slog.DiscardHandler)))
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx) }()

	if _, err := io.WriteString(inW, initializeLine+"\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	mustResult(t, lines.wait(t, 1)[0], "1", nil)

	// Serve is idle, blocked on input.
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestServe_EOFWithoutTrailingNewline(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	h := stdio.NewHandler(testServer(),
		stdio.WithIO(strings.NewReader(initializeLine), &out),
		stdio.WithLogger(slog.New(slog.DiscardHandler)),
	)
	if err := h.Serve(t.Context()); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	mustResult(t, strings.TrimSpace(out.String()), "1", nil)
}
