// Package mcpwire defines the MCP-specific JSON-RPC payloads (spec.md
// §4.A): initialize, tools/list, tools/call, and their shared ContentItem
// union. Grounded on the teacher's inline payload structs in
// internal/providers/mcp/provider.go (discoverTools, callTool) and the
// reference server in mcp/main.go, generalized into reusable DTOs shared
// by both the client and any fixture server.
package mcpwire

import "encoding/json"

// ProtocolVersion is the MCP protocol version this fabric speaks.
const ProtocolVersion = "2024-11-05"

// ClientInfo identifies the host application during the initialize handshake.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeParams is the "initialize" request's params object.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      ClientInfo     `json:"clientInfo"`
}

// ServerInfo identifies the remote MCP server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeResult is the "initialize" response payload.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
	Instructions    string         `json:"instructions,omitempty"`
}

// ToolInfo is a single entry in the "tools/list" result.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ToolsListResult is the "tools/list" response payload.
type ToolsListResult struct {
	Tools []ToolInfo `json:"tools"`
}

// ToolsCallParams is the "tools/call" request's params object.
type ToolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ContentType tags the kind of a ContentItem.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentImage    ContentType = "image"
	ContentResource ContentType = "resource"
)

// ContentItem is the tagged union returned inside tools/call results.
type ContentItem struct {
	Type ContentType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image
	Data     string `json:"data,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`

	// resource
	URI          string `json:"uri,omitempty"`
	ResourceText string `json:"resourceText,omitempty"`
}

// ToolsCallResult is the "tools/call" response payload.
type ToolsCallResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// NewInitializeParams builds the standard initialize params with the given
// client name (spec.md §6: "Client identity sent in clientInfo.name = the
// host product name").
func NewInitializeParams(clientName string) InitializeParams {
	return InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      ClientInfo{Name: clientName, Version: "dev"},
	}
}

// Marshal encodes v as a json.RawMessage, returning json.Marshal's error
// unchanged.
func Marshal(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}
