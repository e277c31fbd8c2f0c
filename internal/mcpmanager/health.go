package mcpmanager

import (
	"context"
	"errors"
	"time"

	"github.com/coreflux/agoncore/internal/agonlog"
	"github.com/coreflux/agoncore/internal/metrics"
)

// errMaxReconnectAttemptsReached is the sentinel recorded as both the
// runtime's lastError and the terminal event's Err once a bounded
// reconnect loop exhausts its attempts (spec.md §8 scenario 1).
var errMaxReconnectAttemptsReached = errors.New("Max reconnection attempts reached")

// healthLoop runs for the life of one server. It only ever looks the
// runtime up fresh by id on each tick (never holds a direct *ServerRuntime
// across a sleep), so a concurrent StopServer that removes the id from
// the map is enough to retire the loop on its own next checkpoint — per
// spec.md §9's "narrow handle" guidance, no goroutine here ever blocks
// StopServer on the manager's lock.
func (m *Manager) healthLoop(serverID string) {
	runtime, ok := m.getRuntime(serverID)
	if !ok {
		return
	}
	interval := runtime.cfg.HealthcheckInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		runtime, ok := m.getRuntime(serverID)
		if !ok {
			return
		}
		if runtime.shutdown.Load() {
			return
		}
		if runtime.reconnecting.Load() {
			continue
		}

		runtime.clientMu.RLock()
		client := runtime.client
		timeout := runtime.cfg.RequestTimeout()
		runtime.clientMu.RUnlock()
		if client == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := client.Ping(ctx, timeout)
		cancel()

		if err == nil {
			runtime.stateMu.Lock()
			runtime.lastPingAt = time.Now()
			wasDegraded := runtime.status == StatusDegraded
			runtime.status = StatusReady
			runtime.stateMu.Unlock()
			if wasDegraded {
				m.emit(Event{Kind: EventServerStatusChanged, ServerID: serverID, Status: StatusReady})
				agonlog.ServerStatus(serverID, string(StatusReady), "")
			}
			continue
		}

		runtime.stateMu.Lock()
		runtime.status = StatusDegraded
		runtime.lastError = err
		runtime.stateMu.Unlock()
		m.emit(Event{Kind: EventServerStatusChanged, ServerID: serverID, Status: StatusDegraded, Err: err})
		agonlog.ServerStatus(serverID, string(StatusDegraded), err.Error())

		if runtime.cfg.Reconnect.Enabled {
			go m.attemptReconnection(serverID)
		}
	}
}

// attemptReconnection is guarded by a CAS on reconnecting: only one
// reconnect task runs per runtime at a time.
func (m *Manager) attemptReconnection(serverID string) {
	runtime, ok := m.getRuntime(serverID)
	if !ok {
		return
	}
	if !runtime.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer runtime.reconnecting.Store(false)

	for {
		runtime, ok := m.getRuntime(serverID)
		if !ok {
			return
		}
		if runtime.shutdown.Load() {
			return
		}

		runtime.stateMu.Lock()
		maxAttempts := runtime.cfg.Reconnect.MaxAttempts
		attempt := runtime.attempt
		backoff := runtime.currentBackoff
		if !runtime.cfg.Reconnect.Unlimited() && attempt >= maxAttempts {
			runtime.status = StatusError
			runtime.disconnectedAt = time.Now()
			runtime.lastError = errMaxReconnectAttemptsReached
			runtime.stateMu.Unlock()
			m.emit(Event{Kind: EventServerStatusChanged, ServerID: serverID, Status: StatusError, Err: errMaxReconnectAttemptsReached})
			agonlog.ServerStatus(serverID, string(StatusError), errMaxReconnectAttemptsReached.Error())
			return
		}
		runtime.attempt++
		runtime.stateMu.Unlock()

		time.Sleep(backoff)

		if err := m.reconnectServer(runtime); err != nil {
			agonlog.Reconnect(serverID, attempt+1, err)
			runtime.stateMu.Lock()
			runtime.lastError = err
			runtime.currentBackoff = minDuration(runtime.currentBackoff*2, runtime.cfg.Reconnect.MaxBackoff())
			runtime.stateMu.Unlock()
			metrics.IncReconnectAttempt(serverID, false)
			continue
		}

		runtime.stateMu.Lock()
		runtime.restartCount++
		runtime.lastError = nil
		runtime.disconnectedAt = time.Time{}
		runtime.attempt = 0
		runtime.currentBackoff = runtime.cfg.Reconnect.InitialBackoff()
		runtime.status = StatusReady
		runtime.stateMu.Unlock()

		metrics.IncReconnectAttempt(serverID, true)
		agonlog.Reconnect(serverID, attempt+1, nil)
		m.emit(Event{Kind: EventServerStatusChanged, ServerID: serverID, Status: StatusReady})
		agonlog.ServerStatus(serverID, string(StatusReady), "")
		return
	}
}

// reconnectServer disconnects the stale client (best-effort), builds a
// fresh transport+client, re-initializes, re-lists tools, swaps the
// runtime's client/tools under lock, and replaces the runtime's aliases
// in the shared index.
func (m *Manager) reconnectServer(runtime *ServerRuntime) error {
	runtime.clientMu.Lock()
	staleClient := runtime.client
	staleTransport := runtime.transport
	runtime.clientMu.Unlock()

	if staleClient != nil {
		staleClient.Close()
	}
	if staleTransport != nil {
		_ = staleTransport.Disconnect()
	}

	m.index.RemoveServerTools(runtime.cfg.ID)

	if err := m.connectRuntime(context.Background(), runtime); err != nil {
		return err
	}

	runtime.clientMu.RLock()
	aliases := runtime.aliases
	runtime.clientMu.RUnlock()

	m.emit(Event{Kind: EventToolsChanged, ServerID: runtime.cfg.ID, Aliases: aliases})
	return nil
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
