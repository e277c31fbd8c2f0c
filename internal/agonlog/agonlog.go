// Package agonlog is the structured event log used by the MCP fabric and
// the provider translators. It mirrors the teacher's mcplog/logging split:
// a single mutex-guarded file, opened lazily, with line-oriented helpers
// instead of a third-party structured logger.
package agonlog

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coreflux/agoncore/internal/util"
)

var (
	mu      sync.Mutex
	logFile *os.File
)

// Init opens path for append-only structured logging. An empty path
// disables file logging; Event and the helpers built on it become no-ops.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	if strings.TrimSpace(path) == "" {
		return nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	logFile = file
	return nil
}

// Close closes the underlying log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// Event writes a single formatted line, timestamped.
func Event(format string, args ...any) {
	writeLine(fmt.Sprintf(format, args...))
}

// ServerStatus logs a server status transition.
func ServerStatus(serverID, status string, errText string) {
	if errText == "" {
		Event("server status changed: server=%s status=%s", serverID, status)
		return
	}
	Event("server status changed: server=%s status=%s error=%s", serverID, status, errText)
}

// ToolExecution logs the outcome of a tool dispatch, truncating long results
// the way the teacher's mcp.Provider.logToolSuccess does.
func ToolExecution(serverID, toolName string, success bool, result string) {
	Event("tool executed: server=%s tool=%s success=%t output=%s", serverID, toolName, success, util.TruncateRunes(result, 160))
}

// Reconnect logs a reconnection attempt.
func Reconnect(serverID string, attempt int, err error) {
	if err == nil {
		Event("reconnection succeeded: server=%s attempt=%d", serverID, attempt)
		return
	}
	Event("reconnection attempt failed: server=%s attempt=%d error=%v", serverID, attempt, err)
}

func writeLine(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return
	}
	fmt.Fprintf(logFile, "[%s] %s\n", time.Now().Format(time.RFC3339), line)
}
