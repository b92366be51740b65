package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the Slack Web API root.
const DefaultBaseURL = "https://slack.com/api"

const (
	maxListLimit        = 200
	defaultHistoryLimit = 10
)

// ErrInvalidResponse is returned when Slack answers with a body that is not
// JSON.
var ErrInvalidResponse = errors.New("slack: invalid response body")

type Client struct {
	cl         *http.Client
	baseURL    string
	token      string
	teamID     string
	channelIDs []string
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithHTTPClient(cl *http.Client) Option {
	return func(c *Client) {
		if cl != nil {
			c.cl = cl
		}
	}
}

// WithChannelIDs restricts ListChannels to the given channels. Ids are
// trimmed and empty entries dropped.
func WithChannelIDs(ids ...string) Option {
	return func(c *Client) {
		c.channelIDs = c.channelIDs[:0]
		for _, id := range ids {
			if id = strings.TrimSpace(id); id != "" {
				c.channelIDs = append(c.channelIDs, id)
			}
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New returns a client authenticating with the bot token and scoping
// workspace-wide listings to teamID.
func New(botToken, teamID string, opts ...Option) (*Client, error) {
	if botToken == "" {
		return nil, errors.New("slack: bot token is empty")
	}
	if teamID == "" {
		return nil, errors.New("slack: team id is empty")
	}
	c := &Client{
		cl:      &http.Client{Timeout: 30 * time.Second},
		baseURL: DefaultBaseURL,
		token:   botToken,
		teamID:  teamID,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PostMessage posts text to a channel via chat.postMessage.
func (c *Client) PostMessage(ctx context.Context, channel, text string) (json.RawMessage, error) {
	return c.post(ctx, "chat.postMessage", map[string]string{
		"channel": channel,
		"text":    text,
	})
}

// PostReply posts text as a reply in the thread rooted at threadTS.
func (c *Client) PostReply(ctx context.Context, channel, threadTS, text string) (json.RawMessage, error) {
	return c.post(ctx, "chat.postMessage", map[string]string{
		"channel":   channel,
		"thread_ts": threadTS,
		"text":      text,
	})
}

// AddReaction adds the emoji name (without colons) to a message.
func (c *Client) AddReaction(ctx context.Context, channel, timestamp, name string) (json.RawMessage, error) {
	return c.post(ctx, "reactions.add", map[string]string{
		"channel":   channel,
		"timestamp": timestamp,
		"name":      name,
	})
}

// ChannelHistory returns recent messages of a channel. A non-positive limit
// uses Slack's usual page of 10.
func (c *Client) ChannelHistory(ctx context.Context, channel string, limit int) (json.RawMessage, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	q := url.Values{}
	q.Set("channel", channel)
	q.Set("limit", strconv.Itoa(limit))
	return c.get(ctx, "conversations.history", q)
}

// ThreadReplies returns every message of the thread rooted at threadTS.
func (c *Client) ThreadReplies(ctx context.Context, channel, threadTS string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("channel", channel)
	q.Set("ts", threadTS)
	return c.get(ctx, "conversations.replies", q)
}

// Users returns one page of workspace members.
func (c *Client) Users(ctx context.Context, limit int, cursor string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(clampLimit(limit)))
	q.Set("team_id", c.teamID)
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return c.get(ctx, "users.list", q)
}

// UserProfile returns a member's profile including custom field labels.
func (c *Client) UserProfile(ctx context.Context, user string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("user", user)
	q.Set("include_labels", "true")
	return c.get(ctx, "users.profile.get", q)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func (c *Client) get(ctx context.Context, method string, q url.Values) (json.RawMessage, error) {
	u := c.baseURL + "/" + method
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, method)
}

func (c *Client) post(ctx context.Context, method string, body any) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return c.do(req, method)
}

func (c *Client) do(req *http.Request, method string) (json.RawMessage, error) {
	start := time.Now()
	log := c.log.With(slog.String("slack_method", method))

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.cl.Do(req)
	if err != nil {
		log.WarnContext(req.Context(), "slack.call.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return nil, fmt.Errorf("slack %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WarnContext(req.Context(), "slack.call.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return nil, fmt.Errorf("slack %s: read body: %w", method, err)
	}

	var out bytes.Buffer
	if err := json.Compact(&out, body); err != nil {
		log.WarnContext(req.Context(), "slack.call.fail", slog.Int("status", resp.StatusCode), slog.String("err", err.Error()))
		return nil, fmt.Errorf("slack %s: %w (status %d)", method, ErrInvalidResponse, resp.StatusCode)
	}

	log.DebugContext(req.Context(), "slack.call.ok", slog.Int("status", resp.StatusCode), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return out.Bytes(), nil
}
