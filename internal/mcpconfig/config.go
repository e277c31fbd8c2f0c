// Package mcpconfig defines the configuration structs consumed by the MCP
// client fabric. It does not load or watch configuration files — that is
// the host application's job — it only decodes the canonical JSON shape
// the fabric expects, the way the teacher's appconfig package decodes its
// own config.json without pulling in its viper/legacy-path machinery.
package mcpconfig

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// TransportKind tags which transport a ServerConfig uses.
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportSSE   TransportKind = "sse"
)

// Header is a single HTTP header name/value pair, matching the array-of-
// objects shape the canonical SSE transport config uses (rather than a
// map, so header order and duplicate names survive round-tripping).
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// StdioTransport configures a subprocess-backed MCP server.
type StdioTransport struct {
	Command           string            `json:"command"`
	Args              []string          `json:"args,omitempty"`
	Cwd               string            `json:"cwd,omitempty"`
	Env               map[string]string `json:"env,omitempty"`
	StartupTimeoutMS  int               `json:"startup_timeout_ms,omitempty"`
}

// StartupTimeout returns the configured startup timeout, defaulting to 20s.
func (t StdioTransport) StartupTimeout() time.Duration {
	if t.StartupTimeoutMS <= 0 {
		return 20 * time.Second
	}
	return time.Duration(t.StartupTimeoutMS) * time.Millisecond
}

// SSETransport configures an HTTP/SSE-backed MCP server.
type SSETransport struct {
	URL              string   `json:"url"`
	Headers          []Header `json:"headers,omitempty"`
	ConnectTimeoutMS int      `json:"connect_timeout_ms,omitempty"`
}

// ConnectTimeout returns the configured connect timeout, defaulting to 10s.
func (t SSETransport) ConnectTimeout() time.Duration {
	if t.ConnectTimeoutMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(t.ConnectTimeoutMS) * time.Millisecond
}

// Transport is a tagged union over the two supported transports.
type Transport struct {
	Type  TransportKind  `json:"type"`
	Stdio *StdioTransport `json:"stdio,omitempty"`
	SSE   *SSETransport   `json:"sse,omitempty"`
}

// transportWire is the canonical wire shape: fields are flattened onto the
// transport object alongside "type" rather than nested under it, matching
// spec.md §6's example payload.
type transportWire struct {
	Type             TransportKind     `json:"type"`
	Command          string            `json:"command,omitempty"`
	Args             []string          `json:"args,omitempty"`
	Cwd              string            `json:"cwd,omitempty"`
	Env              map[string]string `json:"env,omitempty"`
	StartupTimeoutMS int               `json:"startup_timeout_ms,omitempty"`
	URL              string            `json:"url,omitempty"`
	Headers          []Header          `json:"headers,omitempty"`
	ConnectTimeoutMS int               `json:"connect_timeout_ms,omitempty"`
}

// UnmarshalJSON decodes the flattened canonical transport shape into the
// tagged-union Transport.
func (t *Transport) UnmarshalJSON(data []byte) error {
	var wire transportWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	t.Type = wire.Type
	switch wire.Type {
	case TransportStdio:
		t.Stdio = &StdioTransport{
			Command:          wire.Command,
			Args:             wire.Args,
			Cwd:              wire.Cwd,
			Env:              wire.Env,
			StartupTimeoutMS: wire.StartupTimeoutMS,
		}
	case TransportSSE:
		t.SSE = &SSETransport{
			URL:              wire.URL,
			Headers:          wire.Headers,
			ConnectTimeoutMS: wire.ConnectTimeoutMS,
		}
	default:
		return fmt.Errorf("mcpconfig: unknown transport type %q", wire.Type)
	}
	return nil
}

// MarshalJSON encodes the tagged union back to the flattened canonical shape.
func (t Transport) MarshalJSON() ([]byte, error) {
	wire := transportWire{Type: t.Type}
	if t.Stdio != nil {
		wire.Command = t.Stdio.Command
		wire.Args = t.Stdio.Args
		wire.Cwd = t.Stdio.Cwd
		wire.Env = t.Stdio.Env
		wire.StartupTimeoutMS = t.Stdio.StartupTimeoutMS
	}
	if t.SSE != nil {
		wire.URL = t.SSE.URL
		wire.Headers = t.SSE.Headers
		wire.ConnectTimeoutMS = t.SSE.ConnectTimeoutMS
	}
	return json.Marshal(wire)
}

// ReconnectConfig configures the manager's exponential-backoff reconnect loop.
type ReconnectConfig struct {
	Enabled          bool `json:"enabled"`
	InitialBackoffMS int  `json:"initial_backoff_ms"`
	MaxBackoffMS     int  `json:"max_backoff_ms"`
	MaxAttempts      int  `json:"max_attempts"`
}

// InitialBackoff returns the starting backoff duration.
func (r ReconnectConfig) InitialBackoff() time.Duration {
	if r.InitialBackoffMS <= 0 {
		return time.Second
	}
	return time.Duration(r.InitialBackoffMS) * time.Millisecond
}

// MaxBackoff returns the backoff ceiling.
func (r ReconnectConfig) MaxBackoff() time.Duration {
	if r.MaxBackoffMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.MaxBackoffMS) * time.Millisecond
}

// Unlimited reports whether max_attempts == 0 means "retry forever".
func (r ReconnectConfig) Unlimited() bool {
	return r.MaxAttempts <= 0
}

// ServerConfig describes one configured MCP server.
type ServerConfig struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name,omitempty"`
	Enabled               bool            `json:"enabled"`
	Transport             Transport       `json:"transport"`
	RequestTimeoutMS      int             `json:"request_timeout_ms"`
	HealthcheckIntervalMS int             `json:"healthcheck_interval_ms"`
	Reconnect             ReconnectConfig `json:"reconnect"`
	AllowedTools          []string        `json:"allowed_tools"`
	DeniedTools           []string        `json:"denied_tools"`
}

// RequestTimeout returns the per-RPC timeout, defaulting to 60s.
func (c ServerConfig) RequestTimeout() time.Duration {
	if c.RequestTimeoutMS <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// HealthcheckInterval returns the ping interval, defaulting to 30s.
func (c ServerConfig) HealthcheckInterval() time.Duration {
	if c.HealthcheckIntervalMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.HealthcheckIntervalMS) * time.Millisecond
}

// File is the top-level canonical configuration document (spec.md §6).
type File struct {
	Version int            `json:"version"`
	Servers []ServerConfig `json:"servers"`
}

// ParseServers decodes the canonical MCP configuration document. It is a
// thin test/demo helper, not a config-file loader: no search path, no
// legacy fallback, no encryption-at-rest — those remain the host
// application's responsibility.
func ParseServers(r io.Reader) ([]ServerConfig, error) {
	var file File
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("mcpconfig: decode: %w", err)
	}
	for i, s := range file.Servers {
		if s.ID == "" {
			return nil, fmt.Errorf("mcpconfig: server at index %d missing id", i)
		}
	}
	return file.Servers, nil
}
