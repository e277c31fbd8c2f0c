package jsonrpc

import "testing"

func TestClassifyResponse(t *testing.T) {
	kind, resp, _, err := Classify([]byte(`{"jsonrpc":"2.0","id":3,"result":{"ok":true}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != KindResponse {
		t.Fatalf("got kind %v, want KindResponse", kind)
	}
	if resp.ID != 3 {
		t.Fatalf("got id %d, want 3", resp.ID)
	}
}

func TestClassifyNotification(t *testing.T) {
	kind, _, note, err := Classify([]byte(`{"jsonrpc":"2.0","method":"notifications/progress","params":{}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != KindNotification {
		t.Fatalf("got kind %v, want KindNotification", kind)
	}
	if note.Method != "notifications/progress" {
		t.Fatalf("got method %q", note.Method)
	}
}

func TestClassifyMalformed(t *testing.T) {
	kind, _, _, err := Classify([]byte(`{"jsonrpc":"2.0"}`))
	if err == nil {
		t.Fatalf("expected error for message with neither id nor method")
	}
	if kind != KindUnknown {
		t.Fatalf("got kind %v, want KindUnknown", kind)
	}
}

func TestClassifyResponseWithError(t *testing.T) {
	kind, resp, _, err := Classify([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"not found"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != KindResponse {
		t.Fatalf("got kind %v, want KindResponse", kind)
	}
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("got error %+v", resp.Error)
	}
}

func TestNewRequestMarshalsParams(t *testing.T) {
	req, err := NewRequest(1, "tools/call", map[string]any{"name": "echo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Method != "tools/call" || req.ID != 1 || req.JSONRPC != Version {
		t.Fatalf("unexpected request: %+v", req)
	}
	if string(req.Params) != `{"name":"echo"}` {
		t.Fatalf("got params %s", req.Params)
	}
}
