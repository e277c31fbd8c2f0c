package mcpmanager

import (
	"testing"
	"time"

	"github.com/coreflux/agoncore/internal/mcpconfig"
	"github.com/coreflux/agoncore/internal/mcpprotocol"
	"github.com/coreflux/agoncore/internal/toolindex"
)

func newTestRuntime(id string, transport *fakeTransport, reconnect mcpconfig.ReconnectConfig) *ServerRuntime {
	cfg := mcpconfig.ServerConfig{
		ID:                    id,
		Enabled:               true,
		HealthcheckIntervalMS: 10,
		RequestTimeoutMS:      500,
		Reconnect:             reconnect,
		Transport: mcpconfig.Transport{
			Type:  mcpconfig.TransportStdio,
			Stdio: &mcpconfig.StdioTransport{Command: "unused-in-this-test"},
		},
	}
	runtime := &ServerRuntime{
		cfg:            cfg,
		status:         StatusReady,
		currentBackoff: cfg.Reconnect.InitialBackoff(),
	}
	runtime.transport = transport
	runtime.client = mcpprotocol.New(transport, "test-client")
	return runtime
}

func waitForStatusEvent(t *testing.T, m *Manager, want Status, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-m.Events():
			if ev.Kind == EventServerStatusChanged && ev.Status == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %q", want)
		}
	}
}

func TestHealthLoopDegradesOnFailedPing(t *testing.T) {
	m := New("test-client", toolindex.New())
	transport := newFakeTransport(func(attempt int) bool { return false })
	runtime := newTestRuntime("srv", transport, mcpconfig.ReconnectConfig{Enabled: false})

	m.mu.Lock()
	m.runtimes["srv"] = runtime
	m.mu.Unlock()

	go m.healthLoop("srv")
	defer runtime.shutdown.Store(true)

	ev := waitForStatusEvent(t, m, StatusDegraded, 2*time.Second)
	if ev.Err == nil {
		t.Fatal("expected a non-nil Err on the degraded event")
	}
	if got := runtime.getStatus(); got != StatusDegraded {
		t.Fatalf("got runtime status %q, want degraded", got)
	}
}

func TestHealthLoopRecoversFromDegradedToReady(t *testing.T) {
	m := New("test-client", toolindex.New())
	transport := newFakeTransport(func(attempt int) bool { return attempt > 2 })
	runtime := newTestRuntime("srv", transport, mcpconfig.ReconnectConfig{Enabled: false})

	m.mu.Lock()
	m.runtimes["srv"] = runtime
	m.mu.Unlock()

	go m.healthLoop("srv")
	defer runtime.shutdown.Store(true)

	waitForStatusEvent(t, m, StatusDegraded, 2*time.Second)
	waitForStatusEvent(t, m, StatusReady, 2*time.Second)

	if got := runtime.getStatus(); got != StatusReady {
		t.Fatalf("got runtime status %q, want ready", got)
	}
}

func TestAttemptReconnectionExhaustsAndEmitsSentinel(t *testing.T) {
	m := New("test-client", toolindex.New())
	cfg := mcpconfig.ServerConfig{
		ID:               "srv",
		RequestTimeoutMS: 500,
		Reconnect: mcpconfig.ReconnectConfig{
			Enabled:          true,
			InitialBackoffMS: 1,
			MaxBackoffMS:     2,
			MaxAttempts:      2,
		},
		Transport: mcpconfig.Transport{
			Type: mcpconfig.TransportStdio,
			// A command that can never be spawned, so every reconnect
			// attempt fails immediately without touching the network or
			// a real subprocess.
			Stdio: &mcpconfig.StdioTransport{Command: "agoncore-nonexistent-fixture-binary"},
		},
	}
	runtime := &ServerRuntime{
		cfg:            cfg,
		status:         StatusDegraded,
		currentBackoff: cfg.Reconnect.InitialBackoff(),
	}

	m.mu.Lock()
	m.runtimes["srv"] = runtime
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.attemptReconnection("srv")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("attemptReconnection did not return in time")
	}

	ev := waitForStatusEvent(t, m, StatusError, time.Second)
	if ev.Err == nil || ev.Err.Error() != "Max reconnection attempts reached" {
		t.Fatalf("got event Err %v, want \"Max reconnection attempts reached\"", ev.Err)
	}

	runtime.stateMu.Lock()
	lastError := runtime.lastError
	status := runtime.status
	runtime.stateMu.Unlock()
	if status != StatusError {
		t.Fatalf("got runtime status %q, want error", status)
	}
	if lastError == nil || lastError.Error() != "Max reconnection attempts reached" {
		t.Fatalf("got runtime.lastError %v, want \"Max reconnection attempts reached\"", lastError)
	}
}
