// Package homeassistant connects to a Home Assistant instance over its
// WebSocket API and exposes it as the pipeline's host.
package homeassistant

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/strawgate/homeassistant-elasticsearch/internal/errs"
	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

const component = "homeassistant"

type Config struct {
	URL            string
	Token          string
	RequestTimeout time.Duration
	VerifyCerts    bool
	// RegistryRefreshInterval is the minimum gap between two registry reloads.
	RegistryRefreshInterval time.Duration
}

type message struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success bool            `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Event   json.RawMessage `json:"event,omitempty"`
	Error   *commandError   `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

type commandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *commandError) Error() string { return e.Code + ": " + e.Message }

type eventHandler func(raw json.RawMessage)

// Client is one authenticated WebSocket session. Commands may be issued from
// any goroutine; events are dispatched on the single reader goroutine.
type Client struct {
	cfg  Config
	obs  ports.Observability
	conn *websocket.Conn

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu       sync.Mutex
	pending  map[int]chan message
	handlers map[int]eventHandler

	registry atomic.Pointer[registrySnapshot]
	refresh  chan struct{}

	done      chan struct{}
	closing   atomic.Bool
	closeOnce sync.Once
	cancel    context.CancelFunc
	err       error
}

// Dial connects and authenticates. The registries are loaded before it
// returns and kept current afterwards.
func Dial(ctx context.Context, cfg Config, obs ports.Observability) (*Client, error) {
	if cfg.Token == "" {
		return nil, errs.WrapInvalid(fmt.Errorf("access token is required: %w", errs.ErrInvalidConfig), component, "Dial")
	}
	wsURL, err := WebsocketURL(cfg.URL)
	if err != nil {
		return nil, errs.WrapInvalid(err, component, "Dial")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RegistryRefreshInterval <= 0 {
		cfg.RegistryRefreshInterval = 5 * time.Second
	}

	dialer := &websocket.Dialer{HandshakeTimeout: cfg.RequestTimeout}
	if !cfg.VerifyCerts && strings.HasPrefix(wsURL, "wss://") {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, errs.WrapTransient(fmt.Errorf("%w: %v", errs.ErrNotReady, err), component, "Dial")
	}

	c := &Client{
		cfg:      cfg,
		obs:      obs,
		conn:     conn,
		pending:  make(map[int]chan message),
		handlers: make(map[int]eventHandler),
		refresh:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	c.registry.Store(&registrySnapshot{})

	if err := c.authenticate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.readLoop()

	if err := c.startRegistry(ctx, loopCtx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// WebsocketURL turns the instance base URL into its WebSocket API endpoint.
func WebsocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid home assistant url %q: %w", raw, errs.ErrInvalidConfig)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q: %w", u.Scheme, errs.ErrInvalidConfig)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/api/websocket"
	}
	return u.String(), nil
}

func (c *Client) authenticate(ctx context.Context) error {
	deadline := time.Now().Add(c.cfg.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetReadDeadline(deadline)
	defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()

	var hello message
	if err := c.conn.ReadJSON(&hello); err != nil {
		return errs.WrapTransient(fmt.Errorf("%w: %v", errs.ErrNotReady, err), component, "Auth")
	}
	if hello.Type != "auth_required" {
		return errs.WrapTransient(fmt.Errorf("unexpected greeting %q", hello.Type), component, "Auth")
	}
	if err := c.conn.WriteJSON(map[string]string{"type": "auth", "access_token": c.cfg.Token}); err != nil {
		return errs.WrapTransient(err, component, "Auth")
	}

	var reply message
	if err := c.conn.ReadJSON(&reply); err != nil {
		return errs.WrapTransient(fmt.Errorf("%w: %v", errs.ErrNotReady, err), component, "Auth")
	}
	switch reply.Type {
	case "auth_ok":
		return nil
	case "auth_invalid":
		return errs.WrapAuth(fmt.Errorf("%w: %s", errs.ErrAuthFailed, reply.Message), component, "Auth")
	default:
		return errs.WrapTransient(fmt.Errorf("unexpected auth reply %q", reply.Type), component, "Auth")
	}
}

func (c *Client) readLoop() {
	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if c.closing.Load() {
				c.shutdown(errs.ErrStopped)
			} else {
				c.shutdown(fmt.Errorf("%w: %v", errs.ErrConnectionLost, err))
			}
			return
		}
		switch msg.Type {
		case "result", "pong":
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
		case "event":
			c.mu.Lock()
			h := c.handlers[msg.ID]
			c.mu.Unlock()
			if h != nil {
				h(msg.Event)
			}
		}
	}
}

// call sends one command and waits for its result.
func (c *Client) call(ctx context.Context, cmd map[string]any, out any) error {
	return c.callWithID(ctx, int(c.nextID.Add(1)), cmd, out)
}

// subscribe registers h for eventType and returns the subscription id.
func (c *Client) subscribe(ctx context.Context, eventType string, h eventHandler) (int, error) {
	// The handler has to be in place before the result arrives, events can
	// follow it immediately.
	id := int(c.nextID.Add(1))
	c.mu.Lock()
	c.handlers[id] = h
	c.mu.Unlock()

	if err := c.callWithID(ctx, id, map[string]any{"type": "subscribe_events", "event_type": eventType}, nil); err != nil {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
		return 0, err
	}
	return id, nil
}

func (c *Client) callWithID(ctx context.Context, id int, cmd map[string]any, out any) error {
	cmd["id"] = id
	ch := make(chan message, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(cmd)
	c.writeMu.Unlock()
	op, _ := cmd["type"].(string)
	if err != nil {
		return errs.WrapTransient(fmt.Errorf("%w: %v", errs.ErrConnectionLost, err), component, op)
	}
	return c.await(ctx, op, ch, out)
}

func (c *Client) unsubscribe(id int) {
	c.mu.Lock()
	_, ok := c.handlers[id]
	delete(c.handlers, id)
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()
	if err := c.call(ctx, map[string]any{"type": "unsubscribe_events", "subscription": id}, nil); err != nil {
		c.obs.LogWarn("unsubscribe_failed", ports.F("subscription", id), ports.F("error", err.Error()))
	}
}

func (c *Client) await(ctx context.Context, op string, ch chan message, out any) error {
	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case msg := <-ch:
		if !msg.Success {
			if msg.Error != nil {
				return errs.WrapInvalid(msg.Error, component, op)
			}
			return errs.WrapInvalid(errors.New("command failed"), component, op)
		}
		if out != nil && len(msg.Result) > 0 {
			if err := json.Unmarshal(msg.Result, out); err != nil {
				return errs.WrapInvalid(fmt.Errorf("decode result: %w", err), component, op)
			}
		}
		return nil
	case <-timer.C:
		return errs.WrapTransient(fmt.Errorf("no reply within %s", c.cfg.RequestTimeout), component, op)
	case <-c.done:
		return errs.WrapTransient(c.Err(), component, op)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = cause
		c.mu.Unlock()
		if c.cancel != nil {
			c.cancel()
		}
		_ = c.conn.Close()
		close(c.done)
	})
}

// Done is closed when the session ends, either by Close or a lost connection.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the session ended. It is nil while the session is open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) Close() {
	c.closing.Store(true)
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.shutdown(errs.ErrStopped)
}
