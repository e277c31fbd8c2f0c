// Package ssecodec parses the Server-Sent Events line format shared by the
// MCP SSE transport (spec.md §4.B) and the provider stream readers
// (spec.md §4.H). Grounded on the teacher's manual bufio-based framing
// style (internal/providers/mcp/provider.go's Content-Length reader,
// internal/providers/ollama/provider.go's json.Decoder loop) — the corpus
// never reaches for a third-party SSE client library (no r3labs/sse or
// donovanhide/eventsource import anywhere in _examples), so this stays a
// small hand-rolled scanner in the same idiom.
package ssecodec

import (
	"bufio"
	"strings"
)

// Event is one decoded SSE event: an optional event name and its
// concatenated data lines (data: lines are joined with "\n" per the SSE
// spec when an event spans more than one data: line).
type Event struct {
	Name string
	Data string
}

// Reader incrementally decodes SSE events from an underlying byte stream.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader wraps scanner in a line-oriented SSE event reader.
func NewReader(scanner *bufio.Scanner) *Reader {
	scanner.Split(bufio.ScanLines)
	return &Reader{scanner: scanner}
}

// Next reads and returns the next complete SSE event, blocking on the
// underlying scanner. It returns ok=false once the stream is exhausted or
// scanning stops because of an error (inspect the Reader's Err after that).
func (r *Reader) Next() (Event, bool) {
	var name string
	var data []string
	sawAny := false

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if sawAny {
				return Event{Name: name, Data: strings.Join(data, "\n")}, true
			}
			continue
		}

		sawAny = true
		switch {
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, ":"):
			// comment / keepalive line, ignored
		default:
			// unrecognized field, ignored per the SSE spec
		}
	}

	if sawAny {
		return Event{Name: name, Data: strings.Join(data, "\n")}, true
	}
	return Event{}, false
}

// Err returns the first non-EOF error encountered by the underlying scanner.
func (r *Reader) Err() error {
	return r.scanner.Err()
}
