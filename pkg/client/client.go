package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/dyscypliner/dyscypliner-go/pkg/registry"
	"github.com/dyscypliner/dyscypliner-go/pkg/wire"
)

// Client errors.
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyOpen   = errors.New("client already open")
	ErrClientClosed  = errors.New("client closed")
	ErrBadCredential = errors.New("credentials rejected")
)

// State represents the client connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates automatic reconnection is in progress.
	StateReconnecting

	// StateClosed indicates the client has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Config configures an observer client.
type Config struct {
	// Addr is the hub host:port.
	Addr string

	// Login and Password authenticate the observer.
	Login    string
	Password string

	// AutoReconnect re-dials with backoff after a lost connection.
	AutoReconnect bool

	// Backoff customizes reconnection delays (zero values use defaults).
	Backoff BackoffConfig

	// OnAnnouncement is invoked for every parsed hub message, after the
	// roster has been updated. Optional.
	OnAnnouncement func(wire.Announcement)

	// OnStateChange is invoked on connection state transitions. Optional.
	OnStateChange func(oldState, newState State)
}

// Client is an observer connection to a hub with a mirrored device roster.
type Client struct {
	config  Config
	backoff *Backoff

	mu      sync.RWMutex
	state   State
	conn    *websocket.Conn
	devices map[string]registry.Device

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a client. Open must be called to connect.
func New(config Config) (*Client, error) {
	if config.Addr == "" {
		return nil, errors.New("hub address is required")
	}
	return &Client{
		config:  config,
		backoff: NewBackoffWithConfig(config.Backoff),
		state:   StateDisconnected,
		devices: make(map[string]registry.Device),
	}, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Open dials the hub and starts the read loop. It returns after the first
// connection attempt; with AutoReconnect a failed first dial still returns
// the error and does not retry.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClientClosed
	case StateConnected, StateReconnecting:
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	conn, err := c.dial(c.ctx)
	if err != nil {
		return err
	}

	c.setConn(conn)
	c.setState(StateConnected)
	c.backoff.Reset()

	c.wg.Add(1)
	go c.readLoop()

	return nil
}

// Close tears the client down. It is idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	old := c.state
	c.state = StateClosed
	conn := c.conn
	c.conn = nil
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
	c.wg.Wait()

	if c.config.OnStateChange != nil && old != StateClosed {
		c.config.OnStateChange(old, StateClosed)
	}
}

// AddDevice asks the hub to register a new device.
func (c *Client) AddDevice(ctx context.Context, name string) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}
	return conn.Write(ctx, websocket.MessageText, []byte("ADDDEV "+name))
}

// Devices returns the mirrored roster sorted by name.
func (c *Client) Devices() []registry.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]registry.Device, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Find returns the mirrored device with the given id.
func (c *Client) Find(id string) (registry.Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.devices[id]
	return d, ok
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	url := fmt.Sprintf("ws://%s/ws/%s/%s", c.config.Addr, c.config.Login, c.config.Password)

	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, resp, err := websocket.Dial(dctx, url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == 401 {
			return nil, ErrBadCredential
		}
		return nil, fmt.Errorf("dial hub: %w", err)
	}
	return conn, nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) setState(newState State) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	old := c.state
	c.state = newState
	c.mu.Unlock()

	if c.config.OnStateChange != nil && old != newState {
		c.config.OnStateChange(old, newState)
	}
}

// readLoop consumes hub messages and triggers reconnection on failure.
func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil || c.State() == StateClosed {
				return
			}
			if !c.config.AutoReconnect {
				c.setState(StateDisconnected)
				return
			}
			if !c.reconnect() {
				return
			}
			continue
		}

		ann, err := wire.ParseAnnouncement(string(data))
		if err != nil {
			// Unknown messages are skipped; the protocol may grow.
			continue
		}

		c.applyAnnouncement(ann)
		if c.config.OnAnnouncement != nil {
			c.config.OnAnnouncement(ann)
		}
	}
}

// reconnect re-dials with backoff until it succeeds or the client closes.
// Returns false when the client is done.
func (c *Client) reconnect() bool {
	c.setState(StateReconnecting)

	for {
		delay := c.backoff.Next()
		select {
		case <-c.ctx.Done():
			return false
		case <-time.After(delay):
		}

		conn, err := c.dial(c.ctx)
		if err != nil {
			if errors.Is(err, ErrBadCredential) || c.ctx.Err() != nil {
				c.setState(StateDisconnected)
				return false
			}
			continue
		}

		c.setConn(conn)
		c.setState(StateConnected)
		c.backoff.Reset()
		return true
	}
}

// applyAnnouncement folds an announcement into the mirrored roster. INIT
// replaces the roster wholesale; a NEWSTATUS for an unknown id is dropped.
func (c *Client) applyAnnouncement(ann wire.Announcement) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ann.Kind {
	case wire.AnnounceInit:
		c.devices = make(map[string]registry.Device, len(ann.Devices))
		for _, d := range ann.Devices {
			c.devices[d.ID] = d
		}
	case wire.AnnounceNewDevice:
		c.devices[ann.Device.ID] = ann.Device
	case wire.AnnounceNewStatus:
		if d, ok := c.devices[ann.Device.ID]; ok {
			d.Status = ann.Device.Status
			c.devices[d.ID] = d
		}
	}
}
