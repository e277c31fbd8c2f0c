package stdio

import (
	"context"
	"encoding/json"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/coreflux/agoncore/internal/mcpconfig"
)

// fixturemcpDir resolves cmd/fixturemcp's directory relative to this test
// file, independent of the package the test runner's working directory
// happens to be in.
func fixturemcpDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "cmd", "fixturemcp")
}

func newFixtureTransport(t *testing.T) *Transport {
	t.Helper()
	return New(Config{
		ServerID: "fixture",
		Spec: mcpconfig.StdioTransport{
			Command: "go",
			Args:    []string{"run", fixturemcpDir(t)},
		},
	})
}

func TestConnectSendReceiveRoundTrip(t *testing.T) {
	tr := newFixtureTransport(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	if !tr.IsConnected() {
		t.Fatal("expected IsConnected true right after Connect")
	}

	req := []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	if err := tr.Send(ctx, req); err != nil {
		t.Fatalf("Send: %v", err)
	}

	line, ok, err := waitForLine(ctx, tr)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !ok {
		t.Fatal("expected a response line")
	}

	var resp struct {
		ID     int `json:"id"`
		Result struct {
			ServerInfo struct {
				Name string `json:"name"`
			} `json:"serverInfo"`
		} `json:"result"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("unmarshal response: %v (line=%s)", err, line)
	}
	if resp.ID != 1 {
		t.Fatalf("got id %d, want 1", resp.ID)
	}
	if resp.Result.ServerInfo.Name != "fixturemcp" {
		t.Fatalf("got serverInfo.name %q, want fixturemcp", resp.Result.ServerInfo.Name)
	}
}

func TestDisconnectStopsConnection(t *testing.T) {
	tr := newFixtureTransport(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := tr.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if tr.IsConnected() {
		t.Fatal("expected IsConnected false after Disconnect")
	}
	// Disconnect must be idempotent.
	if err := tr.Disconnect(); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
}

// waitForLine polls Receive a few times since the fixture's "go run" cold
// start can take longer than a single ~100ms Receive window.
func waitForLine(ctx context.Context, tr *Transport) ([]byte, bool, error) {
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		line, ok, err := tr.Receive(ctx)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return line, true, nil
		}
	}
	return nil, false, nil
}
