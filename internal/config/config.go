// Package config loads process configuration for the slack-mcp-server binary
// from command-line flags, the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Transports accepted by --transport.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Log formats accepted by --log-format.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

const (
	DefaultPort    = 3000
	DefaultEnvFile = ".env"
)

// ErrHelp is returned by Load when -h or --help was given. Usage has already
// been written.
var ErrHelp = pflag.ErrHelp

// Env holds the settings read from environment variables.
type Env struct {
	SlackBotToken   string `env:"SLACK_BOT_TOKEN,required"`
	SlackTeamID     string `env:"SLACK_TEAM_ID,required"`
	SlackChannelIDs string `env:"SLACK_CHANNEL_IDS"`
	SlackAPIURL     string `env:"SLACK_API_URL"`

	// AuthToken is the bearer token fallback when --token is not given.
	AuthToken string `env:"AUTH_TOKEN"`

	SessionIdleTimeout time.Duration `env:"MCP_SESSION_IDLE_TIMEOUT,default=30m,strict"`

	// RedisAddr selects the Redis session host when set.
	RedisAddr         string `env:"REDIS_ADDR"`
	SessionsKeyPrefix string `env:"SESSIONS_KEY_PREFIX,default=mcp:sessions:"`
}

// Config is the fully resolved process configuration.
type Config struct {
	Transport string
	Port      int
	Token     string
	LogLevel  slog.Level
	LogFormat string

	Env
}

// ChannelIDs splits SLACK_CHANNEL_IDS on commas, dropping blanks.
func (c *Config) ChannelIDs() []string {
	var ids []string
	for _, id := range strings.Split(c.SlackChannelIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// BearerToken returns --token if given, otherwise AUTH_TOKEN. An empty
// result means the caller should generate one.
func (c *Config) BearerToken() string {
	if c.Token != "" {
		return c.Token
	}
	return c.AuthToken
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// Load parses args (without the program name), loads the env file and
// decodes the environment. Usage and flag errors are written to out.
func Load(name string, args []string, out io.Writer) (*Config, error) {
	var (
		cfg      Config
		logLevel string
		envFile  string
	)

	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(out)
	flags.StringVar(&cfg.Transport, "transport", TransportStdio, "transport to serve: stdio or http")
	flags.IntVar(&cfg.Port, "port", DefaultPort, "HTTP listen port (http transport only)")
	flags.StringVar(&cfg.Token, "token", "", "bearer token for the http transport (default $AUTH_TOKEN, else generated)")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringVar(&cfg.LogFormat, "log-format", LogFormatText, "log format: text or json")
	flags.StringVar(&envFile, "env-file", DefaultEnvFile, "dotenv file to load before reading the environment")
	flags.Usage = func() {
		fmt.Fprintf(out, "Usage: %s [flags]\n\nFlags:\n%s", name, flags.FlagUsages())
		fmt.Fprint(out, envUsage)
	}

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if flags.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument %q", flags.Arg(0))
	}

	switch cfg.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return nil, fmt.Errorf("invalid --transport %q: must be stdio or http", cfg.Transport)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid --port %d: must be between 1 and 65535", cfg.Port)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	switch cfg.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return nil, fmt.Errorf("invalid --log-format %q: must be text or json", cfg.LogFormat)
	}

	if err := loadEnvFile(envFile, flags.Changed("env-file")); err != nil {
		return nil, err
	}
	if err := envdecode.Decode(&cfg.Env); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Env.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnvFile loads path without overriding variables already set. A
// missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (e *Env) validate() error {
	if e.SlackAPIURL != "" {
		u, err := url.Parse(e.SlackAPIURL)
		if err != nil {
			return fmt.Errorf("invalid SLACK_API_URL: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid SLACK_API_URL %q: must be an absolute http(s) URL", e.SlackAPIURL)
		}
	}
	if e.SessionIdleTimeout < 0 {
		return fmt.Errorf("invalid MCP_SESSION_IDLE_TIMEOUT %s: must not be negative", e.SessionIdleTimeout)
	}
	return nil
}

const envUsage = `
Environment:
  SLACK_BOT_TOKEN           Slack bot token (required)
  SLACK_TEAM_ID             Slack workspace id (required)
  SLACK_CHANNEL_IDS         comma separated channel ids listed instead of all public channels
  SLACK_API_URL             Slack Web API base URL override
  AUTH_TOKEN                bearer token for the http transport when --token is not given
  MCP_SESSION_IDLE_TIMEOUT  close idle HTTP sessions after this duration, 0 disables (default 30m)
  REDIS_ADDR                use Redis at this address for session streams
  SESSIONS_KEY_PREFIX       Redis key prefix (default mcp:sessions:)
`
