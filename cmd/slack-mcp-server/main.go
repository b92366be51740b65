// Command slack-mcp-server exposes a Slack workspace as MCP tools over stdio
// or Streamable HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/auth"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/internal/config"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/internal/logctx"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcpservice"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/sessions"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/sessions/memoryhost"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/sessions/redishost"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/slack"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/slacktools"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/stdio"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/streaminghttp"
)

const (
	name         = "slack-mcp-server"
	drainTimeout = 10 * time.Second
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, config.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := config.Load(name, args, stderr)
	if err != nil {
		return err
	}

	level := new(slog.LevelVar)
	level.Set(cfg.LogLevel)
	log := newLogger(stderr, cfg.LogFormat, level)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	clientOpts := []slack.Option{
		slack.WithLogger(log),
		slack.WithChannelIDs(cfg.ChannelIDs()...),
	}
	if cfg.SlackAPIURL != "" {
		clientOpts = append(clientOpts, slack.WithBaseURL(cfg.SlackAPIURL))
	}
	client, err := slack.New(cfg.SlackBotToken, cfg.SlackTeamID, clientOpts...)
	if err != nil {
		return fmt.Errorf("slack client: %w", err)
	}

	switch cfg.Transport {
	case config.TransportHTTP:
		server := slacktools.NewServer(client, slacktools.WithVersion(version))
		return serveHTTP(ctx, cfg, log, server)
	default:
		server := slacktools.NewServer(client, slacktools.WithVersion(version), slacktools.WithProcessLevelVar(level))
		return serveStdio(ctx, log, server, stdin, stdout)
	}
}

func newLogger(w io.Writer, format string, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == config.LogFormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(logctx.New(h))
}

func serveStdio(ctx context.Context, log *slog.Logger, server mcpservice.ServerCapabilities, stdin io.Reader, stdout io.Writer) error {
	log.InfoContext(ctx, "server.start", slog.String("transport", config.TransportStdio), slog.String("version", version))
	h := stdio.NewHandler(server, stdio.WithIO(stdin, stdout), stdio.WithLogger(log))
	err := h.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		log.InfoContext(ctx, "server.stop")
		return nil
	}
	return err
}

func serveHTTP(ctx context.Context, cfg *config.Config, log *slog.Logger, server mcpservice.ServerCapabilities) error {
	token := cfg.BearerToken()
	if token == "" {
		generated, err := auth.GenerateToken()
		if err != nil {
			return fmt.Errorf("generate auth token: %w", err)
		}
		token = generated
		log.WarnContext(ctx, "auth.token.generated",
			slog.String("token", token),
			slog.String("hint", "pass --token or set AUTH_TOKEN to keep it stable across restarts"),
		)
	}

	host, closeHost, err := newSessionHost(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeHost()

	h, err := streaminghttp.New(server, auth.NewStaticToken(token),
		streaminghttp.WithLogger(log),
		streaminghttp.WithSessionHost(host),
		streaminghttp.WithIdleTimeout(cfg.SessionIdleTimeout),
		streaminghttp.WithServerName(name),
		streaminghttp.WithVersion(version),
		streaminghttp.WithRealm(name),
	)
	if err != nil {
		return fmt.Errorf("http handler: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(ctx, "server.start",
			slog.String("transport", config.TransportHTTP),
			slog.String("addr", srv.Addr),
			slog.String("path", streaminghttp.DefaultPath),
			slog.String("version", version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("server.shutdown.start", slog.Duration("drain", drainTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		// Request contexts derive from ctx, so open SSE streams have already
		// ended; Shutdown waits for in-flight tool calls.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("server.shutdown.drain", slog.String("err", err.Error()))
			_ = srv.Close()
		}
		if err := h.Close(shutdownCtx); err != nil {
			log.Warn("server.shutdown.sessions", slog.String("err", err.Error()))
		}
		log.Info("server.shutdown.ok")
		return nil
	})
	return g.Wait()
}

// newSessionHost picks Redis when REDIS_ADDR is set and the in-process host
// otherwise.
func newSessionHost(ctx context.Context, cfg *config.Config) (sessions.SessionHost, func(), error) {
	if cfg.RedisAddr == "" {
		return memoryhost.New(), func() {}, nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	host, err := redishost.New(pingCtx, redishost.Config{
		RedisAddr: cfg.RedisAddr,
		KeyPrefix: cfg.SessionsKeyPrefix,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("session host: %w", err)
	}
	return host, func() { _ = host.Close() }, nil
}
