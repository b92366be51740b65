package slack

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// channelLookupConcurrency bounds parallel conversations.info calls.
const channelLookupConcurrency = 8

// ProgressFunc is told how many predefined channels have been looked up.
type ProgressFunc func(done, total int)

// ListChannels returns public, unarchived channels of the workspace. When
// predefined channel ids are configured the limit and cursor are ignored and
// each configured channel is looked up instead.
func (c *Client) ListChannels(ctx context.Context, limit int, cursor string) (json.RawMessage, error) {
	return c.ListChannelsProgress(ctx, limit, cursor, nil)
}

// ListChannelsProgress is ListChannels reporting predefined lookups to fn.
func (c *Client) ListChannelsProgress(ctx context.Context, limit int, cursor string, fn ProgressFunc) (json.RawMessage, error) {
	if len(c.channelIDs) > 0 {
		return c.predefinedChannels(ctx, fn)
	}
	q := url.Values{}
	q.Set("types", "public_channel")
	q.Set("exclude_archived", "true")
	q.Set("limit", strconv.Itoa(clampLimit(limit)))
	q.Set("team_id", c.teamID)
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return c.get(ctx, "conversations.list", q)
}

type channelInfo struct {
	OK      bool            `json:"ok"`
	Channel json.RawMessage `json:"channel"`
}

type channelList struct {
	OK               bool              `json:"ok"`
	Channels         []json.RawMessage `json:"channels"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// predefinedChannels looks every configured channel up, keeping configured
// order. Failed lookups and archived channels are left out.
func (c *Client) predefinedChannels(ctx context.Context, fn ProgressFunc) (json.RawMessage, error) {
	found := make([]json.RawMessage, len(c.channelIDs))
	progress := make(chan struct{}, len(c.channelIDs))

	var g errgroup.Group
	g.SetLimit(channelLookupConcurrency)
	for i, id := range c.channelIDs {
		g.Go(func() error {
			defer func() { progress <- struct{}{} }()
			q := url.Values{}
			q.Set("channel", id)
			raw, err := c.get(ctx, "conversations.info", q)
			if err != nil {
				c.log.InfoContext(ctx, "slack.channel.skip", slog.String("channel", id), slog.String("err", err.Error()))
				return nil
			}
			var info channelInfo
			if err := json.Unmarshal(raw, &info); err != nil || !info.OK || len(info.Channel) == 0 || string(info.Channel) == "null" {
				c.log.InfoContext(ctx, "slack.channel.skip", slog.String("channel", id))
				return nil
			}
			var state struct {
				IsArchived bool `json:"is_archived"`
			}
			if err := json.Unmarshal(info.Channel, &state); err != nil || state.IsArchived {
				c.log.DebugContext(ctx, "slack.channel.archived", slog.String("channel", id))
				return nil
			}
			found[i] = info.Channel
			return nil
		})
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- g.Wait() }()

	total := len(c.channelIDs)
	for done := 1; done <= total; done++ {
		<-progress
		if fn != nil {
			fn(done, total)
		}
	}
	if err := <-waitErr; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := channelList{OK: true, Channels: make([]json.RawMessage, 0, total)}
	for _, ch := range found {
		if ch != nil {
			out.Channels = append(out.Channels, ch)
		}
	}
	return json.Marshal(out)
}
