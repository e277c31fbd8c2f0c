package sse

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coreflux/agoncore/internal/mcpconfig"
)

func TestDerivedMessageURLTrimsTrailingSSE(t *testing.T) {
	cases := map[string]string{
		"http://host/sse":     "http://host/message",
		"http://host/mcp/sse": "http://host/mcp/message",
		"http://host":         "http://host/message",
	}
	for in, want := range cases {
		if got := derivedMessageURL(in); got != want {
			t.Errorf("derivedMessageURL(%q) = %q, want %q", in, got, want)
		}
	}
}

// sseServer is a minimal test double speaking the GET-stream/POST-message
// contract. announceEndpoint controls whether it emits an "endpoint"
// event before the connect timeout elapses.
type sseServer struct {
	mu        sync.Mutex
	posts     [][]byte
	postPaths []string
}

func newSSEServer(t *testing.T, announceEndpoint bool) (*httptest.Server, *sseServer) {
	t.Helper()
	srv := &sseServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		if announceEndpoint {
			fmt.Fprintf(w, "event: endpoint\ndata: /message\n\n")
			flusher.Flush()
		}
		fmt.Fprintf(w, "event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{}}\n\n")
		flusher.Flush()
		<-r.Context().Done()
	})
	mux.HandleFunc("/message", func(w http.ResponseWriter, r *http.Request) {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		buf := bufio.NewReader(r.Body)
		line, _ := buf.ReadString('\n')
		if line == "" {
			line, _ = buf.ReadString(0)
		}
		srv.posts = append(srv.posts, []byte(line))
		srv.postPaths = append(srv.postPaths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	return httptest.NewServer(mux), srv
}

func (s *sseServer) postCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts)
}

func (s *sseServer) lastPostPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.postPaths) == 0 {
		return ""
	}
	return s.postPaths[len(s.postPaths)-1]
}

func TestConnectUsesAnnouncedEndpoint(t *testing.T) {
	ts, _ := newSSEServer(t, true)
	defer ts.Close()

	tr := New(Config{
		ServerID: "s1",
		Spec:     mcpconfig.SSETransport{URL: ts.URL + "/sse", ConnectTimeoutMS: 2000},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	if tr.postURL != ts.URL+"/message" {
		t.Fatalf("got postURL %q, want %q", tr.postURL, ts.URL+"/message")
	}

	line, ok, err := tr.Receive(ctx)
	if err != nil || !ok {
		t.Fatalf("Receive: line=%s ok=%v err=%v", line, ok, err)
	}
}

func TestConnectFallsBackToDerivedEndpointWhenNotAnnounced(t *testing.T) {
	ts, srv := newSSEServer(t, false)
	defer ts.Close()

	tr := New(Config{
		ServerID: "s2",
		Spec:     mcpconfig.SSETransport{URL: ts.URL + "/sse", ConnectTimeoutMS: 200},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	want := derivedMessageURL(ts.URL + "/sse")
	if tr.postURL != want {
		t.Fatalf("got postURL %q, want %q (derived, not raw configured URL %q)", tr.postURL, want, ts.URL+"/sse")
	}

	if err := tr.Send(ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := srv.postCount(); got != 1 {
		t.Fatalf("got %d posts received, want 1", got)
	}
	if got := srv.lastPostPath(); got != "/message" {
		t.Fatalf("got post path %q, want /message", got)
	}
}

func TestIsConnectedFalseAfterDisconnect(t *testing.T) {
	ts, _ := newSSEServer(t, true)
	defer ts.Close()

	tr := New(Config{
		ServerID: "s3",
		Spec:     mcpconfig.SSETransport{URL: ts.URL + "/sse", ConnectTimeoutMS: 2000},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !tr.IsConnected() {
		t.Fatal("expected connected")
	}
	if err := tr.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if tr.IsConnected() {
		t.Fatal("expected disconnected")
	}
}
