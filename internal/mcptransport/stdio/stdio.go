// Package stdio implements the subprocess-backed MCP transport (spec.md
// §4.B): one JSON document per line, newline-terminated, over a spawned
// process's stdin/stdout, with stderr drained to the log.
//
// Grounded on the teacher's internal/providers/mcp/provider.go, which
// spawns an MCP server the same way (exec.Cmd with piped stdin/stdout,
// os.Stderr passthrough, a buffered reader) — this rewrites its
// Content-Length framing as newline framing per spec.md §4.B and adds the
// short-read-deadline / graceful-shutdown behavior the teacher's
// single-shot CLI provider never needed.
package stdio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreflux/agoncore/internal/agonlog"
	"github.com/coreflux/agoncore/internal/mcpconfig"
)

// Config configures a stdio transport instance.
type Config struct {
	ServerID string
	Spec     mcpconfig.StdioTransport
}

const inboundCapacity = 100

// Transport is an mcptransport.Transport backed by a spawned subprocess.
type Transport struct {
	cfg Config

	cmd   *exec.Cmd
	stdin io.WriteCloser

	inbound chan []byte
	readErr chan error

	connected atomic.Bool
	closeOnce sync.Once
}

// New constructs a stdio transport from config. Call Connect to spawn the
// subprocess.
func New(cfg Config) *Transport {
	return &Transport{
		cfg:     cfg,
		inbound: make(chan []byte, inboundCapacity),
		readErr: make(chan error, 1),
	}
}

// Connect spawns the configured subprocess and starts draining its output.
func (t *Transport) Connect(ctx context.Context) error {
	cmd := exec.Command(t.cfg.Spec.Command, t.cfg.Spec.Args...)
	if t.cfg.Spec.Cwd != "" {
		cmd.Dir = t.cfg.Spec.Cwd
	}
	if len(t.cfg.Spec.Env) > 0 {
		env := cmd.Environ()
		for k, v := range t.cfg.Spec.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdio transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdio transport: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stdio transport: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("stdio transport: start %q: %w", t.cfg.Spec.Command, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.connected.Store(true)

	go t.drainStderr(stderr)
	go t.readLoop(stdout)

	return nil
}

func (t *Transport) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		agonlog.Event("server stderr: server=%s line=%s", t.cfg.ServerID, scanner.Text())
	}
}

func (t *Transport) readLoop(r io.Reader) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed != "" {
			select {
			case t.inbound <- []byte(trimmed):
			default:
				// bounded channel full: drop, matching the event-bus
				// backpressure policy in spec.md §9.
				agonlog.Event("stdio transport: inbound channel full, dropping message: server=%s", t.cfg.ServerID)
			}
		}
		if err != nil {
			t.connected.Store(false)
			if errors.Is(err, io.EOF) {
				t.readErr <- fmt.Errorf("stdio transport: disconnected: subprocess closed stdout")
			} else {
				t.readErr <- fmt.Errorf("stdio transport: read: %w", err)
			}
			close(t.inbound)
			return
		}
	}
}

// Send writes one line to the subprocess's stdin.
func (t *Transport) Send(ctx context.Context, line []byte) error {
	if !t.connected.Load() {
		return errors.New("stdio transport: not connected")
	}
	if _, err := t.stdin.Write(append(append([]byte{}, line...), '\n')); err != nil {
		return fmt.Errorf("stdio transport: write: %w", err)
	}
	return nil
}

// Receive waits up to ~100ms for the next inbound line.
func (t *Transport) Receive(ctx context.Context) ([]byte, bool, error) {
	select {
	case line, ok := <-t.inbound:
		if !ok {
			select {
			case err := <-t.readErr:
				return nil, false, err
			default:
				return nil, false, errors.New("stdio transport: disconnected")
			}
		}
		return line, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-time.After(100 * time.Millisecond):
		return nil, false, nil
	}
}

// IsConnected reports whether the subprocess is believed to be alive.
func (t *Transport) IsConnected() bool {
	return t.connected.Load()
}

// Disconnect closes stdin to signal EOF, waits up to 5s for the subprocess
// to exit gracefully, then kills it.
func (t *Transport) Disconnect() error {
	var err error
	t.closeOnce.Do(func() {
		t.connected.Store(false)
		if t.stdin != nil {
			_ = t.stdin.Close()
		}
		if t.cmd == nil || t.cmd.Process == nil {
			return
		}
		done := make(chan error, 1)
		go func() { done <- t.cmd.Wait() }()
		select {
		case waitErr := <-done:
			if waitErr != nil {
				agonlog.Event("stdio transport: subprocess exit: server=%s error=%v", t.cfg.ServerID, waitErr)
			}
		case <-time.After(5 * time.Second):
			_ = t.cmd.Process.Kill()
			<-done
		}
	})
	return err
}
