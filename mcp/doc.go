// Package mcp contains the Model Context Protocol data types and constants
// used by the transports and the tool layer. It mirrors the wire
// representation of the protocol (exported structs with json tags, string
// constants for method names and enumerations) and holds no transport logic.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsCallMethod).
//
// # Versions
//
// SupportedProtocolVersions lists the protocol revisions the server accepts
// during initialize, newest first. NegotiateProtocolVersion picks the
// revision to answer with.
//
// # Logging Levels
//
// LoggingLevel values mirror syslog severities. Use IsValidLoggingLevel to
// validate client-provided values and LoggingLevel.Enabled to filter
// notifications against a session's threshold.
package mcp
