package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcp"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/sessions"
)

type nopSession struct {
	sessions.Session
	level mcp.LoggingLevel
}

func (s *nopSession) SetLogLevel(level mcp.LoggingLevel) { s.level = level }

type listArgs struct {
	Limit  int    `json:"limit,omitempty" jsonschema:"default=100,minimum=1,maximum=200" jsonschema_description:"Maximum number of items, default 100"`
	Cursor string `json:"cursor,omitempty" jsonschema_description:"Pagination cursor"`
}

type postArgs struct {
	ChannelID string `json:"channel_id" jsonschema_description:"The ID of the channel"`
	Text      string `json:"text" jsonschema_description:"The message text"`
}

func echoTools() *ToolsContainer {
	return NewToolsContainer(
		NewTool("list", func(ctx context.Context, s sessions.Session, w ToolResponseWriter, r *ToolRequest[listArgs]) error {
			b, _ := json.Marshal(r.Args())
			return w.AppendText(string(b))
		}, WithToolDescription("list things")),
		NewTool("post", func(ctx context.Context, s sessions.Session, w ToolResponseWriter, r *ToolRequest[postArgs]) error {
			return w.AppendText(r.Args().ChannelID + ":" + r.Args().Text)
		}),
	)
}

func call(t *testing.T, tc *ToolsContainer, name, args string) (*mcp.CallToolResult, error) {
	t.Helper()
	req := &mcp.CallToolRequestReceived{Name: name}
	if args != "" {
		req.Arguments = json.RawMessage(args)
	}
	return tc.CallTool(context.Background(), &nopSession{}, req)
}

func TestNewTool_ReflectsSchema(t *testing.T) {
	t.Parallel()
	tools := echoTools().Snapshot()
	if len(tools) != 2 || tools[0].Name != "list" || tools[1].Name != "post" {
		t.Fatalf("unexpected tools: %+v", tools)
	}

	list := tools[0].InputSchema
	if list.AdditionalProperties {
		t.Fatalf("expected additionalProperties=false")
	}
	if len(list.Required) != 0 {
		t.Fatalf("expected no required fields, got %v", list.Required)
	}
	limit, ok := list.Property("limit")
	if !ok {
		t.Fatal("limit property missing")
	}
	if limit.Type != "integer" {
		t.Fatalf("limit type = %q", limit.Type)
	}
	if limit.Minimum == nil || *limit.Minimum != 1 || limit.Maximum == nil || *limit.Maximum != 200 {
		t.Fatalf("unexpected bounds: %+v", limit)
	}
	if b, _ := json.Marshal(limit.Default); string(b) != "100" {
		t.Fatalf("default = %s", b)
	}
	if limit.Description != "Maximum number of items, default 100" {
		t.Fatalf("description = %q", limit.Description)
	}

	post := tools[1].InputSchema
	if len(post.Required) != 2 || post.Required[0] != "channel_id" || post.Required[1] != "text" {
		t.Fatalf("required = %v", post.Required)
	}
}

func TestCallTool_AppliesDefaults(t *testing.T) {
	t.Parallel()
	res, err := call(t, echoTools(), "list", "")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got := res.Content[0].Text; got != `{"limit":100}` {
		t.Fatalf("unexpected output %s", got)
	}

	res, err = call(t, echoTools(), "list", `{"limit":5,"cursor":"abc"}`)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got := res.Content[0].Text; got != `{"limit":5,"cursor":"abc"}` {
		t.Fatalf("unexpected output %s", got)
	}
}

func TestCallTool_ArgumentErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, tool, args, field string
	}{
		{"unknown property", "post", `{"channel_id":"C1","text":"x","extra":1}`, "extra"},
		{"missing required", "post", `{"channel_id":"C1"}`, "text"},
		{"wrong type", "post", `{"channel_id":1,"text":"x"}`, "channel_id"},
		{"below minimum", "list", `{"limit":0}`, "limit"},
		{"above maximum", "list", `{"limit":201}`, "limit"},
		{"not integer", "list", `{"limit":1.5}`, "limit"},
		{"not object", "list", `[1,2]`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := call(t, echoTools(), tc.tool, tc.args)
			var ae *ArgumentError
			if !errors.As(err, &ae) {
				t.Fatalf("expected ArgumentError, got %v", err)
			}
			if ae.Field != tc.field {
				t.Fatalf("field = %q, want %q", ae.Field, tc.field)
			}
		})
	}
}

func TestCallTool_NullTreatedAsAbsent(t *testing.T) {
	t.Parallel()
	res, err := call(t, echoTools(), "list", `{"limit":null}`)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got := res.Content[0].Text; got != `{"limit":100}` {
		t.Fatalf("unexpected output %s", got)
	}
}

func TestCallTool_UnknownTool(t *testing.T) {
	t.Parallel()
	_, err := call(t, echoTools(), "nope", "")
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

func TestListTools_Pagination(t *testing.T) {
	t.Parallel()
	tc := echoTools()
	tc.pageSize = 1

	page, err := tc.ListTools(context.Background(), &nopSession{}, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 || page.NextCursor == nil || *page.NextCursor != "1" {
		t.Fatalf("unexpected first page: %+v", page)
	}
	page, err = tc.ListTools(context.Background(), &nopSession{}, page.NextCursor)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Name != "post" || page.NextCursor != nil {
		t.Fatalf("unexpected second page: %+v", page)
	}
}

func TestNewToolsContainer_DuplicatePanics(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	tool := NewTool("dup", func(ctx context.Context, s sessions.Session, w ToolResponseWriter, r *ToolRequest[listArgs]) error {
		return nil
	})
	NewToolsContainer(tool, tool)
}

func TestSessionLogging_SetLevel(t *testing.T) {
	t.Parallel()
	lv := new(slog.LevelVar)
	l := NewSessionLogging(WithProcessLevelVar(lv))
	s := &nopSession{}

	if err := l.SetLevel(context.Background(), s, mcp.LoggingLevelWarning); err != nil {
		t.Fatalf("set level: %v", err)
	}
	if s.level != mcp.LoggingLevelWarning {
		t.Fatalf("session level = %q", s.level)
	}
	if lv.Level() != slog.LevelWarn {
		t.Fatalf("process level = %v", lv.Level())
	}
	if err := l.SetLevel(context.Background(), s, "loud"); !errors.Is(err, ErrInvalidLoggingLevel) {
		t.Fatalf("expected ErrInvalidLoggingLevel, got %v", err)
	}
}

func TestLoggingLevelMapping(t *testing.T) {
	t.Parallel()
	cases := map[mcp.LoggingLevel]slog.Level{
		mcp.LoggingLevelDebug:     slog.LevelDebug,
		mcp.LoggingLevelNotice:    slog.LevelInfo,
		mcp.LoggingLevelWarning:   slog.LevelWarn,
		mcp.LoggingLevelEmergency: slog.LevelError,
	}
	for in, want := range cases {
		if got := SlogLevel(in); got != want {
			t.Errorf("SlogLevel(%s) = %v, want %v", in, got, want)
		}
	}
	if got := LoggingLevelFor(slog.LevelWarn + 1); got != mcp.LoggingLevelWarning {
		t.Errorf("LoggingLevelFor(warn+1) = %s", got)
	}
}
