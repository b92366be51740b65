package slacktools

import (
	"log/slog"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcp"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcpservice"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/slack"
)

// ServerName is the implementation name reported to clients.
const ServerName = "slack-mcp-server"

const instructions = `Tools for reading and writing a Slack workspace through a bot token.
Use slack_list_channels or slack_get_users to discover ids, then pass them to the other tools.
Results are Slack Web API responses; check the "ok" field and "error" for failures reported by Slack.
Pagination: pass response_metadata.next_cursor back as "cursor".`

// Option configures NewServer.
type Option func(*serverConfig)

type serverConfig struct {
	version  string
	levelVar *slog.LevelVar
}

// WithVersion sets the version reported in serverInfo.
func WithVersion(v string) Option {
	return func(c *serverConfig) { c.version = v }
}

// WithProcessLevelVar makes logging/setLevel also move lv. Meant for the
// stdio transport, where the process serves a single client.
func WithProcessLevelVar(lv *slog.LevelVar) Option {
	return func(c *serverConfig) { c.levelVar = lv }
}

// NewServer assembles the server capabilities exposing client as MCP tools.
func NewServer(client *slack.Client, opts ...Option) mcpservice.ServerCapabilities {
	cfg := &serverConfig{version: "dev"}
	for _, opt := range opts {
		opt(cfg)
	}

	var logOpts []mcpservice.LoggingOption
	if cfg.levelVar != nil {
		logOpts = append(logOpts, mcpservice.WithProcessLevelVar(cfg.levelVar))
	}

	return mcpservice.NewServer(
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: ServerName, Version: cfg.version, Title: "Slack"}),
		mcpservice.WithInstructions(instructions),
		mcpservice.WithToolsCapability(mcpservice.NewToolsContainer(Tools(client)...)),
		mcpservice.WithLoggingCapability(mcpservice.NewSessionLogging(logOpts...)),
	)
}
