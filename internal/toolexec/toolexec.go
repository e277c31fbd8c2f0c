// Package toolexec implements the tool executor façade (spec.md §4.F):
// a uniform Execute/ListTools contract in front of the MCP fabric, with a
// composite executor that falls back to MCP only on NotFound.
//
// Grounded on the teacher's internal/providers/mcp/provider.go callTool
// (content flattening to a joined-text result) and its discoverTools
// (schema listing), generalized into a façade decoupled from any one
// provider and tightened with gojsonschema argument validation the
// teacher never had a reason to add.
package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/coreflux/agoncore/internal/agonlog"
	"github.com/coreflux/agoncore/internal/mcperrors"
	"github.com/coreflux/agoncore/internal/mcpmanager"
	"github.com/coreflux/agoncore/internal/mcpwire"
	"github.com/coreflux/agoncore/internal/toolindex"
)

// ToolCall is one request to execute a registered tool.
type ToolCall struct {
	Name      string
	Arguments json.RawMessage
}

// ToolResult is a successful tool execution's outcome.
type ToolResult struct {
	Success           bool
	Result            string
	DisplayPreference string
}

// ToolSchema is one entry in an executor's ListTools.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Executor is the uniform tool-execution contract.
type Executor interface {
	Execute(ctx context.Context, call ToolCall) (ToolResult, error)
	ListTools() []ToolSchema
}

// MCPExecutor resolves calls through the shared alias index and dispatches
// them to the manager that owns the backing MCP server.
type MCPExecutor struct {
	index   *toolindex.Index
	manager *mcpmanager.Manager
}

// NewMCPExecutor builds an executor over the given index/manager pair.
func NewMCPExecutor(index *toolindex.Index, manager *mcpmanager.Manager) *MCPExecutor {
	return &MCPExecutor{index: index, manager: manager}
}

// Execute resolves call.Name via the tool index, validates its arguments
// against the tool's JSON schema when one is present, and dispatches the
// call through the manager.
func (e *MCPExecutor) Execute(ctx context.Context, call ToolCall) (ToolResult, error) {
	entry, ok := e.index.Lookup(call.Name)
	if !ok {
		return ToolResult{}, mcperrors.Newf(mcperrors.KindNotFound, "tool %q not registered", call.Name)
	}

	var args map[string]any
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return ToolResult{}, mcperrors.New(mcperrors.KindInvalidArguments, err)
		}
	} else {
		args = map[string]any{}
	}

	if len(entry.Parameters) > 0 {
		if err := validateArguments(entry.Parameters, args); err != nil {
			return ToolResult{}, mcperrors.New(mcperrors.KindInvalidArguments, err)
		}
	}

	result, err := e.manager.CallTool(ctx, entry.ServerID, entry.OriginalName, args)
	if err != nil {
		return ToolResult{}, mcperrors.New(mcperrors.KindExecution, err)
	}

	text := flattenContent(result.Content)
	agonlog.ToolExecution(entry.ServerID, entry.OriginalName, !result.IsError, text)

	return ToolResult{Success: !result.IsError, Result: text}, nil
}

// ListTools enumerates every currently registered tool across every
// connected server.
func (e *MCPExecutor) ListTools() []ToolSchema {
	aliases := e.index.AllAliases()
	out := make([]ToolSchema, 0, len(aliases))
	for _, alias := range aliases {
		entry, ok := e.index.Lookup(alias)
		if !ok {
			continue
		}
		out = append(out, ToolSchema{Name: alias, Description: entry.Description, Parameters: entry.Parameters})
	}
	return out
}

func validateArguments(schema map[string]any, args map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	documentLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("arguments do not satisfy schema: %v", result.Errors())
	}
	return nil
}

// flattenContent renders an MCP tools/call result's content items to a
// single string per spec.md §4.F: text items joined verbatim by newline,
// images rendered as a placeholder, resources as a labeled excerpt.
func flattenContent(items []mcpwire.ContentItem) string {
	var parts []string
	for _, item := range items {
		switch item.Type {
		case mcpwire.ContentText:
			parts = append(parts, item.Text)
		case mcpwire.ContentImage:
			parts = append(parts, fmt.Sprintf("[Image: %s (%d bytes)]", item.MIMEType, len(item.Data)))
		case mcpwire.ContentResource:
			if item.ResourceText != "" {
				parts = append(parts, fmt.Sprintf("[Resource %s]: %s", item.URI, item.ResourceText))
			} else {
				parts = append(parts, fmt.Sprintf("[Resource %s]", item.URI))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// CompositeExecutor tries a built-in executor first and falls back to MCP
// only when the built-in reports NotFound; every other error propagates
// without retry.
type CompositeExecutor struct {
	builtin Executor
	mcp     Executor
}

// NewCompositeExecutor builds a composite over a built-in executor and the
// MCP fallback.
func NewCompositeExecutor(builtin, mcp Executor) *CompositeExecutor {
	return &CompositeExecutor{builtin: builtin, mcp: mcp}
}

// Execute tries the built-in executor first, falling back to MCP exactly
// once when the built-in reports NotFound.
func (c *CompositeExecutor) Execute(ctx context.Context, call ToolCall) (ToolResult, error) {
	result, err := c.builtin.Execute(ctx, call)
	if err == nil {
		return result, nil
	}
	if !mcperrors.Is(err, mcperrors.KindNotFound) {
		return ToolResult{}, err
	}
	return c.mcp.Execute(ctx, call)
}

// ListTools concatenates the built-in and MCP tool schemas.
func (c *CompositeExecutor) ListTools() []ToolSchema {
	return append(c.builtin.ListTools(), c.mcp.ListTools()...)
}
