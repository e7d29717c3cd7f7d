// Package wsconn provides a WebSocket client with pull-based reads.
package wsconn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/fd1az/headlag-exporter/internal/apperror"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateClosed       State = "closed"
)

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	Name           string
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64         // read limit in bytes
	PingInterval   time.Duration // 0 disables keep-alive pings
	PongTimeout    time.Duration
	HTTPHeader     http.Header
	HTTPClient     *http.Client // handshake client; nil uses http.DefaultClient
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		DialTimeout:    10 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxMessageSize: 1 << 20,
		PingInterval:   0,
		PongTimeout:    10 * time.Second,
	}
}

// Client is a single WebSocket connection. It does not reconnect; callers
// own the retry policy.
type Client struct {
	config Config

	conn   *websocket.Conn
	connMu sync.RWMutex

	state         State
	stateMu       sync.RWMutex
	onStateChange func(State, error)

	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

// New creates a new WebSocket client.
func New(config Config) (*Client, error) {
	u, err := url.Parse(config.URL)
	if err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("invalid websocket url"))
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(fmt.Sprintf("unsupported websocket scheme %q", u.Scheme)))
	}

	return &Client{
		config: config,
		state:  StateDisconnected,
		done:   make(chan struct{}),
	}, nil
}

// OnStateChange registers a callback invoked on every state transition.
func (c *Client) OnStateChange(fn func(State, error)) {
	c.stateMu.Lock()
	c.onStateChange = fn
	c.stateMu.Unlock()
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.config.Name))
	}

	c.setState(StateConnecting, nil)

	dialCtx := ctx
	if c.config.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.config.DialTimeout)
		defer cancel()
	}

	conn, resp, err := websocket.Dial(dialCtx, c.config.URL, &websocket.DialOptions{
		HTTPHeader: c.config.HTTPHeader,
		HTTPClient: c.config.HTTPClient,
	})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.setState(StateDisconnected, err)
		return apperror.New(apperror.CodeConnectFailed,
			apperror.WithCause(err),
			apperror.WithContext(c.config.Name))
	}

	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.setState(StateConnected, nil)

	if c.config.PingInterval > 0 {
		go c.keepAlive(conn)
	}

	return nil
}

// Send writes a text message.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	conn := c.current()
	if conn == nil {
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.config.Name))
	}

	if c.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.WriteTimeout)
		defer cancel()
	}

	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithCause(err),
			apperror.WithContext(c.config.Name))
	}
	return nil
}

// SendJSON marshals v and writes it as a text message.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperror.New(apperror.CodeInvalidInput,
			apperror.WithCause(err),
			apperror.WithContext("marshal websocket payload"))
	}
	return c.Send(ctx, data)
}

// Read blocks until the next message arrives or ctx is done. Any read error
// leaves the connection unusable; the underlying library closes it when ctx
// expires mid-read.
func (c *Client) Read(ctx context.Context) ([]byte, error) {
	conn := c.current()
	if conn == nil {
		return nil, apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.config.Name))
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		if !c.closed.Load() {
			c.setState(StateDisconnected, err)
		}
		return nil, err
	}
	return data, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// IsConnected reports whether the connection is usable.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)

		c.connMu.Lock()
		conn := c.conn
		c.conn = nil
		c.connMu.Unlock()

		// A connection torn down by a failed read returns an error here;
		// there is nothing left to release.
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
		}

		c.setState(StateClosed, nil)
	})
	return nil
}

func (c *Client) current() *websocket.Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

func (c *Client) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.config.PongTimeout)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				c.setState(StateDisconnected, err)
				_ = conn.CloseNow()
				return
			}
		}
	}
}

func (c *Client) setState(state State, err error) {
	c.stateMu.Lock()
	if c.state == StateClosed {
		c.stateMu.Unlock()
		return
	}
	c.state = state
	fn := c.onStateChange
	c.stateMu.Unlock()

	if fn != nil {
		fn(state, err)
	}
}
