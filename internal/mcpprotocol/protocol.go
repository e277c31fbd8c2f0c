// Package mcpprotocol implements the MCP protocol client (spec.md §4.C):
// request/response correlation over a Transport, a background reader
// loop, and the high-level initialize/list_tools/call_tool/ping
// operations.
//
// Grounded on the teacher's internal/providers/mcp/provider.go, which
// does the same id-allocate/write/block-for-response dance inline
// (nextID, writeMessage, readResponse) around a single stdio pipe; this
// generalizes it to any mcptransport.Transport and adds the notification
// fan-out and waiter-timeout machinery the teacher's one-shot CLI client
// never needed.
package mcpprotocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreflux/agoncore/internal/jsonrpc"
	"github.com/coreflux/agoncore/internal/mcperrors"
	"github.com/coreflux/agoncore/internal/mcptransport"
	"github.com/coreflux/agoncore/internal/mcpwire"
)

const notificationCapacity = 100

// ToolSchema is the client-facing shape of a discovered MCP tool.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// CallResult is the client-facing shape of a tools/call outcome.
type CallResult struct {
	Content []mcpwire.ContentItem
	IsError bool
}

// Notification is a server-pushed message with no matching request.
type Notification struct {
	Method string
	Params json.RawMessage
}

type waiter struct {
	resp chan jsonrpc.Response
	err  chan error
}

// Client is one protocol session over a single Transport.
type Client struct {
	transport mcptransport.Transport
	clientID  string

	nextID uint64

	mu      sync.Mutex
	waiters map[uint64]*waiter

	notifications chan Notification

	readerCtx    context.Context
	readerCancel context.CancelFunc
	readerDone   chan struct{}

	closed atomic.Bool
}

// New constructs a protocol client over an already-constructed transport
// and starts its background reader loop. clientID becomes clientInfo.name
// during initialize.
func New(transport mcptransport.Transport, clientID string) *Client {
	readerCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		transport:     transport,
		clientID:      clientID,
		waiters:       make(map[uint64]*waiter),
		notifications: make(chan Notification, notificationCapacity),
		readerCtx:     readerCtx,
		readerCancel:  cancel,
		readerDone:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Notifications returns the channel of server-pushed notifications.
func (c *Client) Notifications() <-chan Notification {
	return c.notifications
}

func (c *Client) allocID() uint64 {
	return atomic.AddUint64(&c.nextID, 1)
}

func (c *Client) readLoop() {
	defer close(c.readerDone)
	for {
		line, ok, err := c.transport.Receive(c.readerCtx)
		if err != nil {
			c.failAllWaiters(err)
			return
		}
		if !ok {
			select {
			case <-c.readerCtx.Done():
				return
			default:
				continue
			}
		}

		kind, resp, note, err := jsonrpc.Classify(line)
		if err != nil {
			continue
		}
		switch kind {
		case jsonrpc.KindResponse:
			c.resolve(resp)
		case jsonrpc.KindNotification:
			select {
			case c.notifications <- Notification{Method: note.Method, Params: note.Params}:
			default:
			}
		}
	}
}

func (c *Client) resolve(resp jsonrpc.Response) {
	c.mu.Lock()
	w, ok := c.waiters[resp.ID]
	if ok {
		delete(c.waiters, resp.ID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	w.resp <- resp
}

func (c *Client) failAllWaiters(err error) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = make(map[uint64]*waiter)
	c.mu.Unlock()
	for _, w := range waiters {
		w.err <- err
	}
}

// SendRequest allocates an id, sends method/params, and blocks for the
// matching response under timeout.
func (c *Client) SendRequest(ctx context.Context, method string, params any, timeout time.Duration) (jsonrpc.Response, error) {
	id := c.allocID()
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return jsonrpc.Response{}, mcperrors.New(mcperrors.KindProtocol, err)
	}
	data, err := json.Marshal(req)
	if err != nil {
		return jsonrpc.Response{}, mcperrors.New(mcperrors.KindProtocol, err)
	}

	w := &waiter{resp: make(chan jsonrpc.Response, 1), err: make(chan error, 1)}
	c.mu.Lock()
	c.waiters[id] = w
	c.mu.Unlock()

	if err := c.transport.Send(ctx, data); err != nil {
		c.mu.Lock()
		delete(c.waiters, id)
		c.mu.Unlock()
		return jsonrpc.Response{}, mcperrors.New(mcperrors.KindTransport, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-w.resp:
		if resp.Error != nil {
			return jsonrpc.Response{}, mcperrors.Newf(mcperrors.KindProtocol, "%d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp, nil
	case err := <-w.err:
		return jsonrpc.Response{}, mcperrors.New(mcperrors.KindTransport, err)
	case <-timer.C:
		c.mu.Lock()
		delete(c.waiters, id)
		c.mu.Unlock()
		return jsonrpc.Response{}, mcperrors.New(mcperrors.KindTimeout, fmt.Errorf("%s timed out after %s", method, timeout))
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.waiters, id)
		c.mu.Unlock()
		return jsonrpc.Response{}, mcperrors.New(mcperrors.KindTimeout, ctx.Err())
	}
}

func (c *Client) sendNotification(ctx context.Context, method string, params any) error {
	note, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return mcperrors.New(mcperrors.KindProtocol, err)
	}
	data, err := json.Marshal(note)
	if err != nil {
		return mcperrors.New(mcperrors.KindProtocol, err)
	}
	if err := c.transport.Send(ctx, data); err != nil {
		return mcperrors.New(mcperrors.KindTransport, err)
	}
	return nil
}

// Initialize performs the MCP handshake: initialize request followed by a
// fire-and-forget notifications/initialized.
func (c *Client) Initialize(ctx context.Context, timeout time.Duration) (mcpwire.InitializeResult, error) {
	params := mcpwire.NewInitializeParams(c.clientID)
	resp, err := c.SendRequest(ctx, "initialize", params, timeout)
	if err != nil {
		return mcpwire.InitializeResult{}, err
	}
	var result mcpwire.InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return mcpwire.InitializeResult{}, mcperrors.New(mcperrors.KindProtocol, err)
	}
	_ = c.sendNotification(ctx, "notifications/initialized", nil)
	return result, nil
}

// ListTools lists the server's tools, defaulting Parameters to an empty
// object when the server omits inputSchema.
func (c *Client) ListTools(ctx context.Context, timeout time.Duration) ([]ToolSchema, error) {
	resp, err := c.SendRequest(ctx, "tools/list", nil, timeout)
	if err != nil {
		return nil, err
	}
	var result mcpwire.ToolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, mcperrors.New(mcperrors.KindProtocol, err)
	}
	schemas := make([]ToolSchema, 0, len(result.Tools))
	for _, t := range result.Tools {
		params := t.InputSchema
		if params == nil {
			params = map[string]any{}
		}
		schemas = append(schemas, ToolSchema{Name: t.Name, Description: t.Description, Parameters: params})
	}
	return schemas, nil
}

// CallTool invokes a tool by name.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any, timeout time.Duration) (CallResult, error) {
	params := mcpwire.ToolsCallParams{Name: name, Arguments: args}
	resp, err := c.SendRequest(ctx, "tools/call", params, timeout)
	if err != nil {
		return CallResult{}, err
	}
	var result mcpwire.ToolsCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return CallResult{}, mcperrors.New(mcperrors.KindProtocol, err)
	}
	return CallResult{Content: result.Content, IsError: result.IsError}, nil
}

// Ping sends a liveness ping and discards the result.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) error {
	_, err := c.SendRequest(ctx, "ping", nil, timeout)
	return err
}

// Close stops the reader loop. It does not close the underlying
// transport — the caller (the server manager) owns that lifecycle.
func (c *Client) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.readerCancel()
		<-c.readerDone
	}
}
