// Package slack is a thin client for the Slack Web API methods the tool layer
// exposes. Responses are returned verbatim as json.RawMessage so that callers
// see exactly what Slack sent, including "ok": false business errors.
package slack
