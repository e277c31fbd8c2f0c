package mcpmanager

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// fakeTransport is an in-memory mcptransport.Transport double used to drive
// healthLoop/attemptReconnection against a scripted peer without spawning a
// real subprocess. respond is called once per outbound "ping" request and
// decides whether that ping succeeds.
type fakeTransport struct {
	mu      sync.Mutex
	sent    [][]byte
	inbound chan []byte

	pingCount int
	respond   func(attempt int) (ok bool)
}

func newFakeTransport(respond func(attempt int) bool) *fakeTransport {
	return &fakeTransport{inbound: make(chan []byte, 10), respond: respond}
}

func (f *fakeTransport) Connect(ctx context.Context) error { return nil }
func (f *fakeTransport) Disconnect() error                 { return nil }
func (f *fakeTransport) IsConnected() bool                 { return true }

func (f *fakeTransport) Send(ctx context.Context, line []byte) error {
	var shape struct {
		ID     uint64 `json:"id"`
		Method string `json:"method"`
	}
	if err := json.Unmarshal(line, &shape); err != nil {
		return err
	}
	if shape.Method != "ping" {
		return nil
	}

	f.mu.Lock()
	f.pingCount++
	attempt := f.pingCount
	f.mu.Unlock()

	ok := f.respond(attempt)
	var resp map[string]any
	if ok {
		resp = map[string]any{"jsonrpc": "2.0", "id": shape.ID, "result": map[string]any{}}
	} else {
		resp = map[string]any{"jsonrpc": "2.0", "id": shape.ID, "error": map[string]any{"code": -32000, "message": "simulated ping failure"}}
	}
	data, _ := json.Marshal(resp)
	f.inbound <- data
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context) ([]byte, bool, error) {
	select {
	case line := <-f.inbound:
		return line, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-time.After(20 * time.Millisecond):
		return nil, false, nil
	}
}
