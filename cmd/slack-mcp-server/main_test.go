package main

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/internal/config"
)

func TestRun_Help(t *testing.T) {
	var stderr bytes.Buffer
	err := run([]string{"--help"}, strings.NewReader(""), io.Discard, &stderr)
	if !errors.Is(err, config.ErrHelp) {
		t.Fatalf("expected ErrHelp, got %v", err)
	}
	if !strings.Contains(stderr.String(), "--transport") {
		t.Fatalf("usage not printed:\n%s", stderr.String())
	}
}

func TestRun_MissingEnv(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "")
	os.Unsetenv("SLACK_BOT_TOKEN")
	t.Setenv("SLACK_TEAM_ID", "T123")

	err := run([]string{"--env-file="}, strings.NewReader(""), io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "SLACK_BOT_TOKEN") {
		t.Fatalf("expected missing SLACK_BOT_TOKEN error, got %v", err)
	}
}

func TestRun_Stdio(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"members":[]}`)
	}))
	t.Cleanup(api.Close)

	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_TEAM_ID", "T123")
	t.Setenv("SLACK_API_URL", api.URL)

	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"cli-test","version":"1.0.0"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"slack_get_users","arguments":{}}}`,
	}, "\n") + "\n"

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--env-file=", "--log-format", "json"}, strings.NewReader(in), &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\n%s", err, stderr.String())
	}

	var lines []string
	sc := bufio.NewScanner(&stdout)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 response lines, got %d:\n%s", len(lines), stdout.String())
	}
	if !strings.Contains(lines[0], `"name":"slack-mcp-server"`) {
		t.Fatalf("unexpected initialize response: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"id":2`) || !strings.Contains(lines[1], `members`) {
		t.Fatalf("unexpected tool response: %s", lines[1])
	}
	// Diagnostics stay off stdout.
	if !strings.Contains(stderr.String(), `"msg":"server.start"`) {
		t.Fatalf("expected JSON logs on stderr, got:\n%s", stderr.String())
	}
}
