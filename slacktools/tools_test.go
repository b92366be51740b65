package slacktools_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/internal/engine"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcp"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcpservice"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/slack"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/slacktools"
)

type recorded struct {
	path  string
	query map[string]string
	body  map[string]string
}

// fakeSlack answers every Web API method from a fixed table and records the
// requests it saw.
type fakeSlack struct {
	mu        sync.Mutex
	requests  []recorded
	responses map[string]string
}

func (f *fakeSlack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := recorded{path: r.URL.Path, query: map[string]string{}, body: map[string]string{}}
	for k := range r.URL.Query() {
		rec.query[k] = r.URL.Query().Get(k)
	}
	if r.Method == http.MethodPost {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &rec.body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/")
	if key == "conversations.info" {
		key += ":" + r.URL.Query().Get("channel")
	}
	body, ok := f.responses[key]
	if !ok {
		body = `{"ok":true}`
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func (f *fakeSlack) last(t *testing.T) recorded {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("no Slack request recorded")
	}
	return f.requests[len(f.requests)-1]
}

func mustTools(t *testing.T, responses map[string]string, opts ...slack.Option) (mcpservice.ToolsCapability, *fakeSlack) {
	t.Helper()
	fake := &fakeSlack{responses: responses}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := slack.New("xoxb-test", "T123", append([]slack.Option{slack.WithBaseURL(srv.URL)}, opts...)...)
	if err != nil {
		t.Fatalf("slack.New: %v", err)
	}
	cap, ok, err := slacktools.NewServer(client).GetToolsCapability(context.Background(), nil)
	if err != nil || !ok {
		t.Fatalf("tools capability: ok=%v err=%v", ok, err)
	}
	return cap, fake
}

func callTool(ctx context.Context, t *testing.T, cap mcpservice.ToolsCapability, name, args string) (*mcp.CallToolResult, error) {
	t.Helper()
	sess := engine.NewSessionHandle("test-session", nil)
	return cap.CallTool(ctx, sess, &mcp.CallToolRequestReceived{Name: name, Arguments: json.RawMessage(args)})
}

func mustText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 || res.Content[0].Type != mcp.ContentTypeText {
		t.Fatalf("expected one text block, got %+v", res.Content)
	}
	return res.Content[0].Text
}

func TestNewServer_Info(t *testing.T) {
	t.Parallel()
	client, err := slack.New("xoxb-test", "T123")
	if err != nil {
		t.Fatalf("slack.New: %v", err)
	}
	srv := slacktools.NewServer(client, slacktools.WithVersion("1.0.0"))

	info, err := srv.GetServerInfo(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetServerInfo: %v", err)
	}
	if info.Name != slacktools.ServerName || info.Version != "1.0.0" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if _, ok, _ := srv.GetInstructions(context.Background(), nil); !ok {
		t.Fatal("expected instructions")
	}
	if _, ok, _ := srv.GetLoggingCapability(context.Background(), nil); !ok {
		t.Fatal("expected logging capability")
	}
}

func TestTools_Schemas(t *testing.T) {
	t.Parallel()
	cap, _ := mustTools(t, nil)

	page, err := cap.ListTools(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	byName := map[string]mcp.Tool{}
	for _, tool := range page.Items {
		names = append(names, tool.Name)
		byName[tool.Name] = tool
	}
	want := []string{
		slacktools.ListChannels, slacktools.PostMessage, slacktools.ReplyToThread, slacktools.AddReaction,
		slacktools.GetChannelHistory, slacktools.GetThreadReplies, slacktools.GetUsers, slacktools.GetUserProfile,
	}
	if !slices.Equal(names, want) {
		t.Fatalf("tools = %v, want %v", names, want)
	}

	required := map[string][]string{
		slacktools.ListChannels:      nil,
		slacktools.PostMessage:       {"channel_id", "text"},
		slacktools.ReplyToThread:     {"channel_id", "text", "thread_ts"},
		slacktools.AddReaction:       {"channel_id", "reaction", "timestamp"},
		slacktools.GetChannelHistory: {"channel_id"},
		slacktools.GetThreadReplies:  {"channel_id", "thread_ts"},
		slacktools.GetUsers:          nil,
		slacktools.GetUserProfile:    {"user_id"},
	}
	for name, req := range required {
		got := slices.Clone(byName[name].InputSchema.Required)
		slices.Sort(got)
		if !slices.Equal(got, req) {
			t.Errorf("%s required = %v, want %v", name, got, req)
		}
		if byName[name].Description == "" {
			t.Errorf("%s has no description", name)
		}
	}

	// max 0 means the limit is passed to Slack unbounded.
	bounds := []struct {
		tool     string
		max      float64
		defaultV float64
	}{
		{slacktools.ListChannels, 200, 100},
		{slacktools.GetUsers, 200, 100},
		{slacktools.GetChannelHistory, 0, 10},
	}
	for _, b := range bounds {
		limit, _ := byName[b.tool].InputSchema.Property("limit")
		if limit.Type != "integer" || limit.Minimum == nil || *limit.Minimum != 1 {
			t.Errorf("%s limit schema = %+v", b.tool, limit)
		}
		switch {
		case b.max == 0 && limit.Maximum != nil:
			t.Errorf("%s limit should have no maximum, got %v", b.tool, *limit.Maximum)
		case b.max != 0 && (limit.Maximum == nil || *limit.Maximum != b.max):
			t.Errorf("%s limit maximum = %v, want %v", b.tool, limit.Maximum, b.max)
		}
		if d, err := toFloat(limit.Default); err != nil || d != b.defaultV {
			t.Errorf("%s limit default = %v", b.tool, limit.Default)
		}
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	}
	return 0, errors.New("not a number")
}

func TestTools_PropertyOrder(t *testing.T) {
	t.Parallel()
	cap, _ := mustTools(t, nil)

	page, err := cap.ListTools(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	want := map[string][]string{
		slacktools.ListChannels:      {"limit", "cursor"},
		slacktools.ReplyToThread:     {"channel_id", "thread_ts", "text"},
		slacktools.AddReaction:       {"channel_id", "timestamp", "reaction"},
		slacktools.GetChannelHistory: {"channel_id", "limit"},
	}
	for _, tool := range page.Items {
		order, ok := want[tool.Name]
		if !ok {
			continue
		}
		var keys []string
		for el := tool.InputSchema.Properties.Oldest(); el != nil; el = el.Next() {
			keys = append(keys, el.Key)
		}
		if !slices.Equal(keys, order) {
			t.Errorf("%s properties = %v, want %v", tool.Name, keys, order)
		}

		b, err := json.Marshal(tool.InputSchema)
		if err != nil {
			t.Fatalf("marshal %s: %v", tool.Name, err)
		}
		last := -1
		for _, k := range order {
			i := strings.Index(string(b), `"`+k+`":{`)
			if i <= last {
				t.Errorf("%s: %q out of order in %s", tool.Name, k, b)
			}
			last = i
		}
	}
}

func TestTools_RequestConstruction(t *testing.T) {
	t.Parallel()

	cases := []struct {
		tool  string
		args  string
		path  string
		query map[string]string
		body  map[string]string
	}{
		{slacktools.ListChannels, `{}`, "/conversations.list", map[string]string{"limit": "100", "team_id": "T123", "types": "public_channel", "exclude_archived": "true"}, nil},
		{slacktools.ListChannels, `{"limit":5,"cursor":"abc"}`, "/conversations.list", map[string]string{"limit": "5", "cursor": "abc"}, nil},
		{slacktools.PostMessage, `{"channel_id":"C1","text":"hello"}`, "/chat.postMessage", nil, map[string]string{"channel": "C1", "text": "hello"}},
		{slacktools.ReplyToThread, `{"channel_id":"C1","thread_ts":"1700000000.000100","text":"hi"}`, "/chat.postMessage", nil, map[string]string{"channel": "C1", "thread_ts": "1700000000.000100", "text": "hi"}},
		{slacktools.AddReaction, `{"channel_id":"C1","timestamp":"1700000000.000100","reaction":"tada"}`, "/reactions.add", nil, map[string]string{"channel": "C1", "timestamp": "1700000000.000100", "name": "tada"}},
		{slacktools.GetChannelHistory, `{"channel_id":"C1"}`, "/conversations.history", map[string]string{"channel": "C1", "limit": "10"}, nil},
		{slacktools.GetChannelHistory, `{"channel_id":"C1","limit":1000}`, "/conversations.history", map[string]string{"channel": "C1", "limit": "1000"}, nil},
		{slacktools.GetChannelHistory, `{"channel_id":"C1","limit":5000}`, "/conversations.history", map[string]string{"channel": "C1", "limit": "5000"}, nil},
		{slacktools.GetThreadReplies, `{"channel_id":"C1","thread_ts":"1700000000.000100"}`, "/conversations.replies", map[string]string{"channel": "C1", "ts": "1700000000.000100"}, nil},
		{slacktools.GetUsers, `{}`, "/users.list", map[string]string{"limit": "100", "team_id": "T123"}, nil},
		{slacktools.GetUserProfile, `{"user_id":"U1"}`, "/users.profile.get", map[string]string{"user": "U1", "include_labels": "true"}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.tool+tc.args, func(t *testing.T) {
			t.Parallel()
			cap, fake := mustTools(t, nil)
			res, err := callTool(context.Background(), t, cap, tc.tool, tc.args)
			if err != nil {
				t.Fatalf("CallTool: %v", err)
			}
			if res.IsError {
				t.Fatalf("unexpected error result: %+v", res)
			}
			got := fake.last(t)
			if got.path != tc.path {
				t.Fatalf("path = %q, want %q", got.path, tc.path)
			}
			for k, v := range tc.query {
				if got.query[k] != v {
					t.Errorf("query %s = %q, want %q", k, got.query[k], v)
				}
			}
			for k, v := range tc.body {
				if got.body[k] != v {
					t.Errorf("body %s = %q, want %q", k, got.body[k], v)
				}
			}
		})
	}
}

func TestTools_SlackErrorIsOutput(t *testing.T) {
	t.Parallel()
	cap, _ := mustTools(t, map[string]string{
		"chat.postMessage": `{"ok": false, "error": "channel_not_found"}`,
	})

	res, err := callTool(context.Background(), t, cap, slacktools.PostMessage, `{"channel_id":"CX","text":"hi"}`)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatal("ok:false must not be an error result")
	}
	if got := mustText(t, res); got != `{"ok":false,"error":"channel_not_found"}` {
		t.Fatalf("text = %s", got)
	}
}

func TestTools_TransportErrorIsErrorResult(t *testing.T) {
	t.Parallel()
	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()

	client, err := slack.New("xoxb-test", "T123", slack.WithBaseURL(url))
	if err != nil {
		t.Fatalf("slack.New: %v", err)
	}
	cap, _, _ := slacktools.NewServer(client).GetToolsCapability(context.Background(), nil)

	res, err := callTool(context.Background(), t, cap, slacktools.GetUserProfile, `{"user_id":"U1"}`)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected error result, got %+v", res)
	}
	if mustText(t, res) == "" {
		t.Fatal("expected error text")
	}
}

func TestTools_InvalidBodyIsErrorResult(t *testing.T) {
	t.Parallel()
	cap, _ := mustTools(t, map[string]string{"users.list": "<html>oops</html>"})

	res, err := callTool(context.Background(), t, cap, slacktools.GetUsers, `{}`)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected error result, got %+v", res)
	}
}

func TestTools_ArgumentValidation(t *testing.T) {
	t.Parallel()
	cap, fake := mustTools(t, nil)

	cases := []struct {
		tool string
		args string
	}{
		{slacktools.ListChannels, `{"limit":500}`},
		{slacktools.ListChannels, `{"limit":0}`},
		{slacktools.GetChannelHistory, `{"channel_id":"C1","limit":1001}`},
		{slacktools.PostMessage, `{"text":"no channel"}`},
		{slacktools.PostMessage, `{"channel_id":1,"text":"x"}`},
		{slacktools.GetUserProfile, `{"user_id":"U1","extra":true}`},
	}
	for _, tc := range cases {
		_, err := callTool(context.Background(), t, cap, tc.tool, tc.args)
		var argErr *mcpservice.ArgumentError
		if !errors.As(err, &argErr) {
			t.Errorf("%s %s: expected ArgumentError, got %v", tc.tool, tc.args, err)
		}
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.requests) != 0 {
		t.Fatalf("invalid calls reached Slack: %d requests", len(fake.requests))
	}
}

type progressRecorder struct {
	mu    sync.Mutex
	calls [][2]float64
}

func (p *progressRecorder) Report(ctx context.Context, progress, total float64, message string) error {
	p.mu.Lock()
	p.calls = append(p.calls, [2]float64{progress, total})
	p.mu.Unlock()
	return nil
}

func TestListChannels_Predefined(t *testing.T) {
	t.Parallel()
	cap, _ := mustTools(t, map[string]string{
		"conversations.info:C1": `{"ok":true,"channel":{"id":"C1","name":"general","is_archived":false}}`,
		"conversations.info:C2": `{"ok":true,"channel":{"id":"C2","name":"old","is_archived":true}}`,
	}, slack.WithChannelIDs(strings.Split("C1,C2", ",")...))

	rec := &progressRecorder{}
	ctx := mcpservice.WithProgressReporter(context.Background(), rec)
	res, err := callTool(ctx, t, cap, slacktools.ListChannels, `{}`)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}

	var body struct {
		OK       bool `json:"ok"`
		Channels []struct {
			ID string `json:"id"`
		} `json:"channels"`
		ResponseMetadata struct {
			NextCursor *string `json:"next_cursor"`
		} `json:"response_metadata"`
	}
	if err := json.Unmarshal([]byte(mustText(t, res)), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK || len(body.Channels) != 1 || body.Channels[0].ID != "C1" {
		t.Fatalf("unexpected channels: %+v", body)
	}
	if body.ResponseMetadata.NextCursor == nil || *body.ResponseMetadata.NextCursor != "" {
		t.Fatalf("expected empty next_cursor, got %v", body.ResponseMetadata.NextCursor)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if want := [][2]float64{{1, 2}, {2, 2}}; !slices.Equal(rec.calls, want) {
		t.Fatalf("progress = %v, want %v", rec.calls, want)
	}
}
