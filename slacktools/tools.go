package slacktools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcpservice"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/sessions"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/slack"
)

// Tool names.
const (
	ListChannels      = "slack_list_channels"
	PostMessage       = "slack_post_message"
	ReplyToThread     = "slack_reply_to_thread"
	AddReaction       = "slack_add_reaction"
	GetChannelHistory = "slack_get_channel_history"
	GetThreadReplies  = "slack_get_thread_replies"
	GetUsers          = "slack_get_users"
	GetUserProfile    = "slack_get_user_profile"
)

type ListChannelsArgs struct {
	Limit  int    `json:"limit,omitempty" jsonschema:"default=100,minimum=1,maximum=200" jsonschema_description:"Maximum number of channels to return (default 100, max 200)"`
	Cursor string `json:"cursor,omitempty" jsonschema_description:"Pagination cursor for next page of results"`
}

type PostMessageArgs struct {
	ChannelID string `json:"channel_id" jsonschema_description:"The ID of the channel to post to"`
	Text      string `json:"text" jsonschema_description:"The message text to post"`
}

type ReplyToThreadArgs struct {
	ChannelID string `json:"channel_id" jsonschema_description:"The ID of the channel containing the thread"`
	ThreadTS  string `json:"thread_ts" jsonschema_description:"The timestamp of the parent message in the format '1234567890.123456'. Timestamps in the format without the period can be converted by adding the period such that 6 numbers come after it."`
	Text      string `json:"text" jsonschema_description:"The reply text"`
}

type AddReactionArgs struct {
	ChannelID string `json:"channel_id" jsonschema_description:"The ID of the channel containing the message"`
	Timestamp string `json:"timestamp" jsonschema_description:"The timestamp of the message to react to"`
	Reaction  string `json:"reaction" jsonschema_description:"The name of the emoji reaction (without ::)"`
}

type ChannelHistoryArgs struct {
	ChannelID string `json:"channel_id" jsonschema_description:"The ID of the channel"`
	Limit     int    `json:"limit,omitempty" jsonschema:"default=10,minimum=1" jsonschema_description:"Number of messages to retrieve (default 10)"`
}

type ThreadRepliesArgs struct {
	ChannelID string `json:"channel_id" jsonschema_description:"The ID of the channel containing the thread"`
	ThreadTS  string `json:"thread_ts" jsonschema_description:"The timestamp of the parent message in the format '1234567890.123456'. Timestamps in the format without the period can be converted by adding the period such that 6 numbers come after it."`
}

type UsersArgs struct {
	Limit  int    `json:"limit,omitempty" jsonschema:"default=100,minimum=1,maximum=200" jsonschema_description:"Maximum number of users to return (default 100, max 200)"`
	Cursor string `json:"cursor,omitempty" jsonschema_description:"Pagination cursor for next page of results"`
}

type UserProfileArgs struct {
	UserID string `json:"user_id" jsonschema_description:"The ID of the user"`
}

// Tools returns the Slack tool definitions bound to client, in listing order.
func Tools(client *slack.Client) []mcpservice.StaticTool {
	return []mcpservice.StaticTool{
		mcpservice.NewTool(ListChannels,
			func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[ListChannelsArgs]) error {
				a := r.Args()
				body, err := client.ListChannelsProgress(ctx, a.Limit, a.Cursor, func(done, total int) {
					_ = w.SendProgress(float64(done), float64(total), "")
				})
				return respond(ctx, s, w, r.Name(), body, err)
			},
			mcpservice.WithToolTitle("List channels"),
			mcpservice.WithToolDescription("List public or pre-defined channels in the workspace with pagination"),
		),
		mcpservice.NewTool(PostMessage,
			func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[PostMessageArgs]) error {
				a := r.Args()
				body, err := client.PostMessage(ctx, a.ChannelID, a.Text)
				return respond(ctx, s, w, r.Name(), body, err)
			},
			mcpservice.WithToolTitle("Post message"),
			mcpservice.WithToolDescription("Post a new message to a Slack channel"),
		),
		mcpservice.NewTool(ReplyToThread,
			func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[ReplyToThreadArgs]) error {
				a := r.Args()
				body, err := client.PostReply(ctx, a.ChannelID, a.ThreadTS, a.Text)
				return respond(ctx, s, w, r.Name(), body, err)
			},
			mcpservice.WithToolTitle("Reply to thread"),
			mcpservice.WithToolDescription("Reply to a specific message thread in Slack"),
		),
		mcpservice.NewTool(AddReaction,
			func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[AddReactionArgs]) error {
				a := r.Args()
				body, err := client.AddReaction(ctx, a.ChannelID, a.Timestamp, a.Reaction)
				return respond(ctx, s, w, r.Name(), body, err)
			},
			mcpservice.WithToolTitle("Add reaction"),
			mcpservice.WithToolDescription("Add a reaction emoji to a message"),
		),
		mcpservice.NewTool(GetChannelHistory,
			func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[ChannelHistoryArgs]) error {
				a := r.Args()
				body, err := client.ChannelHistory(ctx, a.ChannelID, a.Limit)
				return respond(ctx, s, w, r.Name(), body, err)
			},
			mcpservice.WithToolTitle("Get channel history"),
			mcpservice.WithToolDescription("Get recent messages from a channel"),
		),
		mcpservice.NewTool(GetThreadReplies,
			func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[ThreadRepliesArgs]) error {
				a := r.Args()
				body, err := client.ThreadReplies(ctx, a.ChannelID, a.ThreadTS)
				return respond(ctx, s, w, r.Name(), body, err)
			},
			mcpservice.WithToolTitle("Get thread replies"),
			mcpservice.WithToolDescription("Get all replies in a message thread"),
		),
		mcpservice.NewTool(GetUsers,
			func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[UsersArgs]) error {
				a := r.Args()
				body, err := client.Users(ctx, a.Limit, a.Cursor)
				return respond(ctx, s, w, r.Name(), body, err)
			},
			mcpservice.WithToolTitle("Get users"),
			mcpservice.WithToolDescription("Get a list of all users in the workspace with their basic profile information"),
		),
		mcpservice.NewTool(GetUserProfile,
			func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[UserProfileArgs]) error {
				body, err := client.UserProfile(ctx, r.Args().UserID)
				return respond(ctx, s, w, r.Name(), body, err)
			},
			mcpservice.WithToolTitle("Get user profile"),
			mcpservice.WithToolDescription("Get detailed profile information for a specific user"),
		),
	}
}

// respond writes Slack's body as the tool output. A failed call becomes an
// error result, except for cancellation which is handed back to the engine.
func respond(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, tool string, body json.RawMessage, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return err
			}
		}
		s.Logger().WarnContext(ctx, "slack request failed", slog.String("tool", tool), slog.String("err", err.Error()))
		w.SetError(true)
		return w.AppendText(err.Error())
	}
	return w.AppendText(string(body))
}
