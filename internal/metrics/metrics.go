// Package metrics keeps lightweight in-process counters for tool
// execution, reconnection, and streamed-chunk activity.
//
// Grounded on the teacher's internal/metrics/aggregator.go singleton
// (sync.Once-guarded instance, mutex-protected map), trimmed down from its
// full analyze/report/benchmark subsystem (~4700 lines across
// analyzeMetrics.go, report.go, benchmark_parse.go, analyze.go — none of
// it grounded in anything this core exposes) to the handful of counters
// the MCP fabric and provider translators actually produce: tool
// executions, reconnect attempts, and streamed chunks.
package metrics

import "sync"

// ToolCounters tallies successes/failures for one server's tool calls.
type ToolCounters struct {
	Success int64
	Failure int64
}

// ReconnectCounters tallies reconnect attempts for one server.
type ReconnectCounters struct {
	Attempts int64
	Recovered int64
}

// Registry is the process-wide counter store.
type Registry struct {
	mu         sync.Mutex
	tools      map[string]*ToolCounters
	reconnects map[string]*ReconnectCounters
	chunks     map[string]int64
}

var (
	instance *Registry
	once     sync.Once
)

// GetInstance returns the singleton registry.
func GetInstance() *Registry {
	once.Do(func() {
		instance = NewRegistry()
	})
	return instance
}

// NewRegistry constructs an empty registry; tests use this instead of the
// process-wide singleton to avoid cross-test bleed.
func NewRegistry() *Registry {
	return &Registry{
		tools:      make(map[string]*ToolCounters),
		reconnects: make(map[string]*ReconnectCounters),
		chunks:     make(map[string]int64),
	}
}

// IncToolExecution records a server's tool-call outcome on the singleton.
func IncToolExecution(serverID string, success bool) {
	GetInstance().IncToolExecution(serverID, success)
}

// IncReconnectAttempt records a reconnect attempt's outcome on the singleton.
func IncReconnectAttempt(serverID string, recovered bool) {
	GetInstance().IncReconnectAttempt(serverID, recovered)
}

// IncChunk records one streamed chunk for a provider on the singleton.
func IncChunk(provider string) {
	GetInstance().IncChunk(provider)
}

func (r *Registry) IncToolExecution(serverID string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.tools[serverID]
	if !ok {
		c = &ToolCounters{}
		r.tools[serverID] = c
	}
	if success {
		c.Success++
	} else {
		c.Failure++
	}
}

func (r *Registry) IncReconnectAttempt(serverID string, recovered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.reconnects[serverID]
	if !ok {
		c = &ReconnectCounters{}
		r.reconnects[serverID] = c
	}
	c.Attempts++
	if recovered {
		c.Recovered++
	}
}

func (r *Registry) IncChunk(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks[provider]++
}

// ToolSnapshot returns a copy of one server's tool-execution counters.
func (r *Registry) ToolSnapshot(serverID string) ToolCounters {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.tools[serverID]; ok {
		return *c
	}
	return ToolCounters{}
}

// ReconnectSnapshot returns a copy of one server's reconnect counters.
func (r *Registry) ReconnectSnapshot(serverID string) ReconnectCounters {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.reconnects[serverID]; ok {
		return *c
	}
	return ReconnectCounters{}
}

// ChunkSnapshot returns the streamed-chunk count for a provider.
func (r *Registry) ChunkSnapshot(provider string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunks[provider]
}
