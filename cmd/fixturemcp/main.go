// Command fixturemcp is a minimal MCP server over stdio, speaking the
// newline-delimited JSON-RPC 2.0 framing spec.md §4.B mandates for the
// stdio transport. It exists to give the stdio transport and the server
// manager a realistic, deterministic peer to exercise in tests.
//
// Grounded on the teacher's mcp/main.go and servers/mcp/main.go reference
// servers — same jsonrpcRequest/jsonrpcResponse shapes and
// initialize/ping/tools.list/tools.call dispatch — but rewritten onto one
// JSON document per line instead of their Content-Length/LSP-style
// framing, and with deterministic tools (echo, current_time) instead of
// the teacher's live geocoding/weather calls, so tests never touch the
// network.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type toolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func writeMessage(w *bufio.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.WriteString("\n"); err != nil {
		return err
	}
	return w.Flush()
}

func readMessage(r *bufio.Reader) (*jsonrpcRequest, error) {
	line, err := r.ReadString('\n')
	if len(line) == 0 && err != nil {
		return nil, err
	}
	var req jsonrpcRequest
	if jsonErr := json.Unmarshal([]byte(line), &req); jsonErr != nil {
		return nil, jsonErr
	}
	return &req, nil
}

func makeResult(id json.RawMessage, result any) jsonrpcResponse {
	return jsonrpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func makeError(id json.RawMessage, code int, msg string) jsonrpcResponse {
	return jsonrpcResponse{JSONRPC: "2.0", ID: id, Error: &jsonrpcError{Code: code, Message: msg}}
}

func toolDefinitions() []toolDef {
	return []toolDef{
		{
			Name:        "echo",
			Description: "Echoes the given text back.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"text": map[string]any{"type": "string"}},
				"required":   []string{"text"},
			},
		},
		{
			Name:        "current_time",
			Description: "Returns the current UTC time in RFC3339.",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		},
	}
}

func runTool(name string, args map[string]any) []contentPart {
	switch name {
	case "echo":
		text, _ := args["text"].(string)
		return []contentPart{{Type: "text", Text: text}}
	case "current_time":
		return []contentPart{{Type: "text", Text: time.Now().UTC().Format(time.RFC3339)}}
	default:
		return []contentPart{{Type: "text", Text: fmt.Sprintf("unknown tool: %s", name)}}
	}
}

func handleRequest(req *jsonrpcRequest, w *bufio.Writer) error {
	switch req.Method {
	case "initialize":
		result := map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities":    map[string]any{},
			"serverInfo":      map[string]any{"name": "fixturemcp", "version": "0.1.0"},
		}
		return writeMessage(w, makeResult(req.ID, result))

	case "notifications/initialized":
		return nil

	case "ping":
		return writeMessage(w, makeResult(req.ID, map[string]any{}))

	case "tools/list":
		return writeMessage(w, makeResult(req.ID, map[string]any{"tools": toolDefinitions()}))

	case "tools/call":
		var params toolsCallParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return writeMessage(w, makeError(req.ID, -32602, "invalid params"))
			}
		}
		content := runTool(params.Name, params.Arguments)
		return writeMessage(w, makeResult(req.ID, map[string]any{"content": content}))

	default:
		return writeMessage(w, makeError(req.ID, -32601, fmt.Sprintf("method not found: %s", req.Method)))
	}
}

func main() {
	r := bufio.NewReader(os.Stdin)
	w := bufio.NewWriter(os.Stdout)

	for {
		req, err := readMessage(r)
		if err != nil {
			if err == io.EOF {
				return
			}
			fmt.Fprintln(os.Stderr, "fixturemcp: read error:", err)
			return
		}
		if req == nil {
			continue
		}
		if err := handleRequest(req, w); err != nil {
			fmt.Fprintln(os.Stderr, "fixturemcp: handle error:", err)
		}
	}
}
