// Package mcpservice provides the building blocks the protocol engine
// consumes: a ServerCapabilities value describing the server, a typed tool
// container and the logging capability.
//
// Quick start:
//
//	type EchoArgs struct {
//		Message string `json:"message" jsonschema_description:"Text to echo"`
//	}
//
//	tools := mcpservice.NewToolsContainer(
//		mcpservice.NewTool("echo", func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[EchoArgs]) error {
//			return w.AppendText(r.Args().Message)
//		}, mcpservice.WithToolDescription("Echo a message back")),
//	)
//
//	srv := mcpservice.NewServer(
//		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "example", Version: "1.0.0"}),
//		mcpservice.WithToolsCapability(tools),
//		mcpservice.WithLoggingCapability(mcpservice.NewSessionLogging()),
//	)
//
// Tool input schemas are reflected from the argument struct with
// invopop/jsonschema. Incoming arguments are validated against that schema
// before the handler runs; violations surface as *ArgumentError.
package mcpservice
