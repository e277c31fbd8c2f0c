package metrics

import "testing"

func TestToolCountersSeparatedBySuccess(t *testing.T) {
	r := NewRegistry()
	r.IncToolExecution("fs", true)
	r.IncToolExecution("fs", true)
	r.IncToolExecution("fs", false)

	got := r.ToolSnapshot("fs")
	if got.Success != 2 || got.Failure != 1 {
		t.Fatalf("got %+v", got)
	}
}

func TestReconnectCountersTrackRecovery(t *testing.T) {
	r := NewRegistry()
	r.IncReconnectAttempt("fs", false)
	r.IncReconnectAttempt("fs", false)
	r.IncReconnectAttempt("fs", true)

	got := r.ReconnectSnapshot("fs")
	if got.Attempts != 3 || got.Recovered != 1 {
		t.Fatalf("got %+v", got)
	}
}

func TestChunkSnapshotPerProvider(t *testing.T) {
	r := NewRegistry()
	r.IncChunk("openai")
	r.IncChunk("openai")
	r.IncChunk("gemini")

	if r.ChunkSnapshot("openai") != 2 || r.ChunkSnapshot("gemini") != 1 {
		t.Fatalf("got openai=%d gemini=%d", r.ChunkSnapshot("openai"), r.ChunkSnapshot("gemini"))
	}
}

func TestSnapshotOfUnknownServerIsZeroValue(t *testing.T) {
	r := NewRegistry()
	if got := r.ToolSnapshot("missing"); got != (ToolCounters{}) {
		t.Fatalf("got %+v, want zero value", got)
	}
}

func TestGetInstanceIsASingleton(t *testing.T) {
	if GetInstance() != GetInstance() {
		t.Fatalf("GetInstance should always return the same registry")
	}
}
