// Package mcpmanager owns the lifecycle of every configured MCP server:
// connecting, tool discovery, health checks, and bounded-backoff
// reconnection (spec.md §4.E).
//
// Grounded on the teacher's internal/providers/mcp/provider.go for the
// connect/initialize/discoverTools sequence and its Close's buffered-
// channel-plus-timeout shutdown pattern, generalized from one hardcoded
// subprocess into N concurrently managed servers (stdio or SSE) each with
// their own state machine, and on internal/metrics/provider.go's
// singleton-registry shape for how the manager keeps a concurrent map of
// long-lived per-server state.
package mcpmanager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreflux/agoncore/internal/agonlog"
	"github.com/coreflux/agoncore/internal/mcpconfig"
	"github.com/coreflux/agoncore/internal/mcperrors"
	"github.com/coreflux/agoncore/internal/mcpprotocol"
	"github.com/coreflux/agoncore/internal/mcptransport"
	"github.com/coreflux/agoncore/internal/mcptransport/sse"
	"github.com/coreflux/agoncore/internal/mcptransport/stdio"
	"github.com/coreflux/agoncore/internal/metrics"
	"github.com/coreflux/agoncore/internal/toolindex"
)

// ServerRuntime is one configured server's live state.
type ServerRuntime struct {
	cfg mcpconfig.ServerConfig

	clientMu  sync.RWMutex
	transport mcptransport.Transport
	client    *mcpprotocol.Client
	tools     []mcpprotocol.ToolSchema
	aliases   []string

	stateMu        sync.Mutex
	status         Status
	lastError      error
	lastPingAt     time.Time
	disconnectedAt time.Time
	restartCount   int
	currentBackoff time.Duration
	attempt        int

	shutdown     atomic.Bool
	reconnecting atomic.Bool
}

func (r *ServerRuntime) setStatus(s Status) {
	r.stateMu.Lock()
	r.status = s
	r.stateMu.Unlock()
}

func (r *ServerRuntime) getStatus() Status {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.status
}

// Manager owns every running ServerRuntime and the shared tool index.
type Manager struct {
	clientID string
	index    *toolindex.Index
	events   chan Event

	mu       sync.RWMutex
	runtimes map[string]*ServerRuntime
}

// New constructs a manager. clientID is sent as clientInfo.name during
// every server's initialize handshake.
func New(clientID string, index *toolindex.Index) *Manager {
	return &Manager{
		clientID: clientID,
		index:    index,
		events:   make(chan Event, eventCapacity),
		runtimes: make(map[string]*ServerRuntime),
	}
}

func buildTransport(cfg mcpconfig.ServerConfig) (mcptransport.Transport, error) {
	switch cfg.Transport.Type {
	case mcpconfig.TransportStdio:
		if cfg.Transport.Stdio == nil {
			return nil, fmt.Errorf("server %q: stdio transport missing config", cfg.ID)
		}
		return stdio.New(stdio.Config{ServerID: cfg.ID, Spec: *cfg.Transport.Stdio}), nil
	case mcpconfig.TransportSSE:
		if cfg.Transport.SSE == nil {
			return nil, fmt.Errorf("server %q: sse transport missing config", cfg.ID)
		}
		return sse.New(sse.Config{ServerID: cfg.ID, Spec: *cfg.Transport.SSE}), nil
	default:
		return nil, fmt.Errorf("server %q: unknown transport type %q", cfg.ID, cfg.Transport.Type)
	}
}

// StartServer connects, performs the MCP handshake, discovers tools, and
// spawns the runtime's health loop.
func (m *Manager) StartServer(ctx context.Context, cfg mcpconfig.ServerConfig) error {
	m.mu.Lock()
	if _, exists := m.runtimes[cfg.ID]; exists {
		m.mu.Unlock()
		return mcperrors.New(mcperrors.KindAlreadyRunning, fmt.Errorf("server %q already running", cfg.ID))
	}
	runtime := &ServerRuntime{
		cfg:            cfg,
		status:         StatusConnecting,
		currentBackoff: cfg.Reconnect.InitialBackoff(),
	}
	m.runtimes[cfg.ID] = runtime
	m.mu.Unlock()

	if err := m.connectRuntime(ctx, runtime); err != nil {
		m.mu.Lock()
		delete(m.runtimes, cfg.ID)
		m.mu.Unlock()
		return err
	}

	runtime.setStatus(StatusReady)
	m.emit(Event{Kind: EventServerStatusChanged, ServerID: cfg.ID, Status: StatusReady})
	m.emit(Event{Kind: EventToolsChanged, ServerID: cfg.ID, Aliases: runtime.aliases})
	agonlog.ServerStatus(cfg.ID, string(StatusReady), "")

	go m.healthLoop(cfg.ID)
	return nil
}

// connectRuntime builds a transport, connects, initializes, and discovers
// tools, populating runtime.client/tools/aliases. It does not change
// runtime.status itself.
func (m *Manager) connectRuntime(ctx context.Context, runtime *ServerRuntime) error {
	cfg := runtime.cfg

	transport, err := buildTransport(cfg)
	if err != nil {
		return mcperrors.New(mcperrors.KindTransport, err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, startupTimeout(cfg))
	defer cancel()
	if err := transport.Connect(connectCtx); err != nil {
		return mcperrors.New(mcperrors.KindTransport, err)
	}

	client := mcpprotocol.New(transport, m.clientID)

	if _, err := client.Initialize(ctx, cfg.RequestTimeout()); err != nil {
		client.Close()
		_ = transport.Disconnect()
		return err
	}

	tools, err := client.ListTools(ctx, cfg.RequestTimeout())
	if err != nil {
		client.Close()
		_ = transport.Disconnect()
		return err
	}

	idxTools := make([]toolindex.Tool, 0, len(tools))
	for _, t := range tools {
		idxTools = append(idxTools, toolindex.Tool{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	aliases := m.index.RegisterServerTools(cfg.ID, idxTools, cfg.AllowedTools, cfg.DeniedTools)

	runtime.clientMu.Lock()
	runtime.transport = transport
	runtime.client = client
	runtime.tools = tools
	runtime.aliases = aliases
	runtime.clientMu.Unlock()

	return nil
}

func startupTimeout(cfg mcpconfig.ServerConfig) time.Duration {
	if cfg.Transport.Stdio != nil {
		return cfg.Transport.Stdio.StartupTimeout()
	}
	if cfg.Transport.SSE != nil {
		return cfg.Transport.SSE.ConnectTimeout()
	}
	return 20 * time.Second
}

// StopServer tears a running server down and removes its tools from the index.
func (m *Manager) StopServer(id string) error {
	m.mu.Lock()
	runtime, ok := m.runtimes[id]
	if ok {
		delete(m.runtimes, id)
	}
	m.mu.Unlock()
	if !ok {
		return mcperrors.Newf(mcperrors.KindNotFound, "server %q not running", id)
	}

	runtime.shutdown.Store(true)

	runtime.clientMu.Lock()
	if runtime.client != nil {
		runtime.client.Close()
	}
	if runtime.transport != nil {
		_ = runtime.transport.Disconnect()
	}
	runtime.clientMu.Unlock()

	runtime.setStatus(StatusStopped)
	m.index.RemoveServerTools(id)
	m.emit(Event{Kind: EventServerStatusChanged, ServerID: id, Status: StatusStopped})
	agonlog.ServerStatus(id, string(StatusStopped), "")
	return nil
}

func (m *Manager) getRuntime(id string) (*ServerRuntime, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runtimes[id]
	return r, ok
}

// CallTool dispatches a tool call through the named server's client.
func (m *Manager) CallTool(ctx context.Context, serverID, name string, args map[string]any) (mcpprotocol.CallResult, error) {
	runtime, ok := m.getRuntime(serverID)
	if !ok {
		return mcpprotocol.CallResult{}, mcperrors.Newf(mcperrors.KindNotFound, "server %q not running", serverID)
	}

	runtime.clientMu.RLock()
	client := runtime.client
	timeout := runtime.cfg.RequestTimeout()
	runtime.clientMu.RUnlock()

	if client == nil {
		return mcpprotocol.CallResult{}, mcperrors.Newf(mcperrors.KindTransport, "server %q has no active client", serverID)
	}

	result, err := client.CallTool(ctx, name, args, timeout)
	success := err == nil && !result.IsError
	m.emit(Event{Kind: EventToolExecuted, ServerID: serverID, ToolName: name, Success: success})
	metrics.IncToolExecution(serverID, success)
	return result, err
}

// RefreshTools re-lists a server's tools and atomically replaces the
// cached tools and aliases.
func (m *Manager) RefreshTools(ctx context.Context, id string) error {
	runtime, ok := m.getRuntime(id)
	if !ok {
		return mcperrors.Newf(mcperrors.KindNotFound, "server %q not running", id)
	}

	runtime.clientMu.RLock()
	client := runtime.client
	timeout := runtime.cfg.RequestTimeout()
	runtime.clientMu.RUnlock()
	if client == nil {
		return mcperrors.Newf(mcperrors.KindTransport, "server %q has no active client", id)
	}

	tools, err := client.ListTools(ctx, timeout)
	if err != nil {
		return err
	}

	idxTools := make([]toolindex.Tool, 0, len(tools))
	for _, t := range tools {
		idxTools = append(idxTools, toolindex.Tool{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	m.index.RemoveServerTools(id)
	aliases := m.index.RegisterServerTools(id, idxTools, runtime.cfg.AllowedTools, runtime.cfg.DeniedTools)

	runtime.clientMu.Lock()
	runtime.tools = tools
	runtime.aliases = aliases
	runtime.clientMu.Unlock()

	m.emit(Event{Kind: EventToolsChanged, ServerID: id, Aliases: aliases})
	return nil
}

// Status reports a running server's current status, or false if unknown.
func (m *Manager) Status(id string) (Status, bool) {
	runtime, ok := m.getRuntime(id)
	if !ok {
		return "", false
	}
	return runtime.getStatus(), true
}
