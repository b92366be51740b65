// Package slacktools exposes the Slack Web API operations of package slack
// as MCP tools and assembles the server capabilities shared by the stdio
// and HTTP transports.
//
// Every tool answers with a single text block holding Slack's JSON body
// unchanged. A Slack response with "ok": false is ordinary output; only a
// failed call (network error, non-JSON body) marks the result as an error.
package slacktools
