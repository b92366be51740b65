package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcp"
	"github.com/fastmcp-me/slack-mcp-server-zencoderai/sessions"
)

// ErrToolNotFound is returned by CallTool for names that are not registered.
var ErrToolNotFound = errors.New("tool not found")

const defaultToolsPageSize = 50

// ToolHandler is the function signature used to handle a tool invocation.
type ToolHandler func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)

// StaticTool pairs an MCP tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolRequest carries the validated, decoded arguments of a tool call.
type ToolRequest[A any] struct {
	name string
	args A
}

func (r *ToolRequest[A]) Name() string { return r.name }

func (r *ToolRequest[A]) Args() A { return r.args }

// ToolOption configures NewTool behavior.
type ToolOption func(*toolConfig)

type toolConfig struct {
	title       string
	description string
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolTitle sets the optional human friendly title.
func WithToolTitle(title string) ToolOption {
	return func(c *toolConfig) { c.title = title }
}

// NewTool constructs a StaticTool from a typed args struct A. The input
// schema is reflected from A with additionalProperties=false; every call is
// validated against it (defaults applied) before fn runs.
func NewTool[A any](name string, fn func(ctx context.Context, session sessions.Session, w ToolResponseWriter, r *ToolRequest[A]) error, opts ...ToolOption) StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	input := reflectToMCPInputSchema[A]()
	desc := mcp.Tool{
		Name:        name,
		Title:       cfg.title,
		Description: cfg.description,
		InputSchema: input,
	}

	handler := func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
		normalized, err := validateArguments(input, req.Arguments)
		if err != nil {
			return nil, err
		}
		var a A
		dec := json.NewDecoder(bytes.NewReader(normalized))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&a); err != nil {
			return nil, &ArgumentError{Reason: err.Error()}
		}
		w := newToolResponseWriter(ctx)
		r := &ToolRequest[A]{name: req.Name, args: a}
		if err := fn(ctx, session, w, r); err != nil {
			return nil, err
		}
		return w.Result(), nil
	}

	return StaticTool{Descriptor: desc, Handler: handler}
}

// ToolsContainer is an immutable set of tools. It implements ToolsCapability
// and dispatches calls by name.
type ToolsContainer struct {
	tools    []mcp.Tool
	handlers map[string]ToolHandler
	pageSize int
}

// NewToolsContainer registers defs in order. It panics on duplicate names.
func NewToolsContainer(defs ...StaticTool) *ToolsContainer {
	tc := &ToolsContainer{
		tools:    make([]mcp.Tool, 0, len(defs)),
		handlers: make(map[string]ToolHandler, len(defs)),
		pageSize: defaultToolsPageSize,
	}
	for _, d := range defs {
		name := d.Descriptor.Name
		if _, dup := tc.handlers[name]; dup {
			panic(fmt.Sprintf("mcpservice: duplicate tool %q", name))
		}
		tc.tools = append(tc.tools, d.Descriptor)
		tc.handlers[name] = d.Handler
	}
	return tc
}

// Snapshot returns a copy of the tool descriptors.
func (tc *ToolsContainer) Snapshot() []mcp.Tool {
	out := make([]mcp.Tool, len(tc.tools))
	copy(out, tc.tools)
	return out
}

// ListTools implements ToolsCapability with offset cursors.
func (tc *ToolsContainer) ListTools(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Tool], error) {
	start := parseCursor(cursor)
	if start > len(tc.tools) {
		start = 0
	}
	end := min(start+tc.pageSize, len(tc.tools))
	items := make([]mcp.Tool, end-start)
	copy(items, tc.tools[start:end])
	if end < len(tc.tools) {
		return NewPage(items, WithNextCursor[mcp.Tool](strconv.Itoa(end))), nil
	}
	return NewPage(items), nil
}

// CallTool implements ToolsCapability.
func (tc *ToolsContainer) CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, &ArgumentError{Field: "name", Reason: "missing tool name"}
	}
	h := tc.handlers[req.Name]
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, req.Name)
	}
	return h(ctx, session, req)
}

var _ ToolsCapability = (*ToolsContainer)(nil)
