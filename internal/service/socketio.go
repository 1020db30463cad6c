package service

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/patchgridgo/internal/ctxlog"
)

// Wire events of the graph service's control namespace.
const (
	eventGlobalAdded   = "global-added"
	eventGlobalRemoved = "global-removed"
	eventLinkState     = "link-state-changed"
	eventSync          = "sync"
	eventCreateLink    = "create-link"
	eventDestroyGlobal = "destroy-global"
)

const dialTimeout = 15 * time.Second

// DialOptions tunes the socket.io connection.
type DialOptions struct {
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
}

// socketConn is the socket.io-backed Conn implementation.
type socketConn struct {
	io *socket.Socket

	mu          sync.Mutex
	onAdded     func(Global)
	onRemoved   func(uint32)
	onLinkState func(uint32, string)
	onClosed    func(string)
	closed      bool
}

// Dial connects to the graph service's control socket. The URL selects
// scheme, host and path; the websocket transport is always used.
func Dial(ctx context.Context, rawURL string, dialOpts DialOptions) (Conn, error) {
	logger := ctxlog.FromContext(ctx).With("service_url", rawURL)

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service URL: %w", err)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if dialOpts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket("/", opts)

	c := &socketConn{io: io}

	connectChan := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to graph service", "sid", io.Id())
		reportConnectOutcome(connectChan, nil)
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err, _ := errs[0].(error)
		if err == nil {
			err = fmt.Errorf("connect_error without error payload")
		}
		reportConnectOutcome(connectChan, err)
	})

	io.On(types.EventName(eventGlobalAdded), func(data ...any) {
		g, ok := decodeGlobal(data...)
		if !ok {
			logger.Debug("Dropping malformed global-added payload")
			return
		}
		c.mu.Lock()
		fn := c.onAdded
		c.mu.Unlock()
		if fn != nil {
			fn(g)
		}
	})
	io.On(types.EventName(eventGlobalRemoved), func(data ...any) {
		id, ok := decodeRemoval(data...)
		if !ok {
			logger.Debug("Dropping malformed global-removed payload")
			return
		}
		c.mu.Lock()
		fn := c.onRemoved
		c.mu.Unlock()
		if fn != nil {
			fn(id)
		}
	})
	io.On(types.EventName(eventLinkState), func(data ...any) {
		if len(data) == 0 {
			return
		}
		obj, ok := data[0].(map[string]any)
		if !ok {
			return
		}
		id, ok := asUint32(obj["id"])
		if !ok {
			logger.Debug("Dropping malformed link-state-changed payload")
			return
		}
		state, _ := obj["state"].(string)
		c.mu.Lock()
		fn := c.onLinkState
		c.mu.Unlock()
		if fn != nil {
			fn(id, state)
		}
	})
	io.On(types.EventName("disconnect"), func(data ...any) {
		reason := "connection lost"
		if len(data) > 0 {
			if s, ok := data[0].(string); ok {
				reason = s
			}
		}
		c.mu.Lock()
		fn := c.onClosed
		wasClosed := c.closed
		c.mu.Unlock()
		if fn != nil && !wasClosed {
			fn(reason)
		}
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("graph service connection failed: %w", err)
		}
		return c, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while connecting to graph service")
	case <-time.After(dialTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %v connecting to graph service", dialTimeout)
	}
}

// reportConnectOutcome hands a connect result to the dialer without ever
// blocking the socket's event loop. Both connect and connect_error can
// eventually fire, and the dialer stops listening after a timeout or
// cancellation, so late outcomes are dropped rather than queued.
func reportConnectOutcome(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

func (c *socketConn) OnGlobalAdded(fn func(Global)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAdded = fn
}

func (c *socketConn) OnGlobalRemoved(fn func(uint32)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRemoved = fn
}

func (c *socketConn) OnLinkStateChanged(fn func(uint32, string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLinkState = fn
}

func (c *socketConn) OnClosed(fn func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClosed = fn
}

func (c *socketConn) Sync() error {
	if !c.io.Connected() {
		return fmt.Errorf("cannot sync: not connected")
	}
	c.io.Emit(eventSync)
	return nil
}

// lingerHandle is the client-side handle for a lingering link. The service
// keeps the link alive on its own, so releasing is a no-op.
type lingerHandle struct{}

func (lingerHandle) Release() {}

func (c *socketConn) CreateLink(props map[string]string) (LinkHandle, error) {
	if !c.io.Connected() {
		return nil, fmt.Errorf("cannot create link: not connected")
	}
	c.io.Emit(eventCreateLink, props)
	return lingerHandle{}, nil
}

func (c *socketConn) DestroyGlobal(id uint32) error {
	if !c.io.Connected() {
		return fmt.Errorf("cannot destroy object %d: not connected", id)
	}
	c.io.Emit(eventDestroyGlobal, map[string]any{"id": id})
	return nil
}

func (c *socketConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.io.Disconnect()
	return nil
}

// decodeGlobal turns a global-added payload into a Global. Payloads are
// JSON objects: {"id": n, "type": "node|port|link", "props": {...}}.
func decodeGlobal(data ...any) (Global, bool) {
	if len(data) == 0 {
		return Global{}, false
	}
	obj, ok := data[0].(map[string]any)
	if !ok {
		return Global{}, false
	}
	id, ok := asUint32(obj["id"])
	if !ok {
		return Global{}, false
	}

	g := Global{ID: id, Type: ObjectOther, Props: map[string]string{}}
	if s, ok := obj["type"].(string); ok {
		switch ObjectType(s) {
		case ObjectNode, ObjectPort, ObjectLink:
			g.Type = ObjectType(s)
		}
	}
	if props, ok := obj["props"].(map[string]any); ok {
		for k, v := range props {
			if s, ok := v.(string); ok {
				g.Props[k] = s
			}
		}
	}
	return g, true
}

// decodeRemoval accepts either a bare id or {"id": n}.
func decodeRemoval(data ...any) (uint32, bool) {
	if len(data) == 0 {
		return 0, false
	}
	if obj, ok := data[0].(map[string]any); ok {
		return asUint32(obj["id"])
	}
	return asUint32(data[0])
}

// asUint32 coerces the JSON number shapes the socket.io parser produces.
func asUint32(v any) (uint32, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint32(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint32(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint32(n), true
	case uint32:
		return n, true
	default:
		return 0, false
	}
}
