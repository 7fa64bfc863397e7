package ws

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"telechat/internal/models"
)

// State is the observable lifecycle of the realtime channel. Callers gate
// send affordances on StateOpen; everything else is a degraded-but-visible
// condition, never an exception.
type State int

const (
	StateUninstantiated State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "uninstantiated"
	}
}

var (
	ErrNotOpen  = errors.New("connection is not open")
	ErrDisabled = errors.New("connection is disabled")
)

// Socket is the minimal duplex transport the connection drives.
type Socket interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type Config struct {
	// BaseURL is the ws:// or wss:// origin of the backend.
	BaseURL   string
	SessionID int
	Token     string

	// Enabled suppresses dialing entirely when false. The caller sets it
	// only while the session is active and a token is available.
	Enabled bool

	// RedialWait, when positive, re-dials after an unexpected close with a
	// linear backoff of RedialWait per attempt. Zero keeps the source
	// behavior: one connection, no automatic retry.
	RedialWait time.Duration

	// Dial overrides the transport, used by tests.
	Dial func(ctx context.Context, url string) (Socket, error)
}

// Conn owns the single realtime channel of one mounted session view.
type Conn struct {
	cfg Config

	mu       sync.Mutex
	state    State
	sock     Socket
	watchers []chan State

	frames chan models.Frame
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config) *Conn {
	if cfg.Dial == nil {
		cfg.Dial = dialGorilla
	}
	return &Conn{
		cfg:    cfg,
		state:  StateUninstantiated,
		frames: make(chan models.Frame, 16),
		done:   make(chan struct{}),
	}
}

// URL builds the authenticated join endpoint.
func (c *Conn) URL() string {
	return fmt.Sprintf("%s/v1/chats/%d/join?token=%s",
		c.cfg.BaseURL, c.cfg.SessionID, url.QueryEscape(c.cfg.Token))
}

// Connect starts the channel. It is a no-op when the connection is disabled
// or already started. Frames() is closed once the channel is fully down.
func (c *Conn) Connect(ctx context.Context) error {
	if !c.cfg.Enabled || c.cfg.Token == "" {
		return ErrDisabled
	}

	c.mu.Lock()
	if c.state != StateUninstantiated {
		c.mu.Unlock()
		return nil
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.setState(StateConnecting)
	go c.run(ctx)
	return nil
}

func (c *Conn) run(ctx context.Context) {
	defer func() {
		c.setState(StateClosed)
		c.closeWatchers()
		close(c.frames)
		close(c.done)
	}()

	attempt := 0
	for {
		sock, err := c.cfg.Dial(ctx, c.URL())
		if err == nil {
			attempt = 0
			c.mu.Lock()
			c.sock = sock
			c.mu.Unlock()
			c.setState(StateOpen)

			err = c.readLoop(ctx, sock)
			_ = sock.Close()
			c.mu.Lock()
			c.sock = nil
			c.mu.Unlock()
		}

		if ctx.Err() != nil || c.cfg.RedialWait <= 0 {
			return
		}

		attempt++
		c.setState(StateConnecting)
		select {
		case <-time.After(time.Duration(attempt) * c.cfg.RedialWait):
		case <-ctx.Done():
			return
		}
	}
}

func (c *Conn) readLoop(ctx context.Context, sock Socket) error {
	for {
		var frame models.Frame
		if err := sock.ReadJSON(&frame); err != nil {
			return err
		}
		select {
		case c.frames <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Send writes one frame. It fails with ErrNotOpen unless the channel is open;
// callers are expected to gate their affordances on State() instead of
// retrying.
func (c *Conn) Send(frame models.Frame) error {
	c.mu.Lock()
	sock, state := c.sock, c.state
	c.mu.Unlock()

	if state != StateOpen || sock == nil {
		return ErrNotOpen
	}
	return sock.WriteJSON(frame)
}

// Frames returns the inbound frame stream. The channel is closed on teardown
// so a dead reducer never receives frames.
func (c *Conn) Frames() <-chan models.Frame {
	return c.frames
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Watch returns a channel that receives every state transition. Transitions
// are dropped, not blocked on, when the watcher falls behind. The channel is
// closed on teardown so forwarder goroutines ranging over it terminate.
func (c *Conn) Watch() <-chan State {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan State, 8)
	if c.state == StateClosed && c.watchers == nil {
		close(ch)
		return ch
	}
	c.watchers = append(c.watchers, ch)
	return ch
}

func (c *Conn) closeWatchers() {
	c.mu.Lock()
	watchers := c.watchers
	c.watchers = nil
	c.mu.Unlock()

	for _, ch := range watchers {
		close(ch)
	}
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	watchers := c.watchers
	c.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- s:
		default:
		}
	}
}

// Close tears the channel down. Safe to call at any time, including before
// Connect and more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.state == StateUninstantiated || c.state == StateClosed || c.state == StateClosing {
		cancel := c.cancel
		if cancel == nil {
			// Never connected: no run goroutine exists, so the watcher
			// channels are released here.
			c.state = StateClosed
			c.mu.Unlock()
			c.closeWatchers()
			return
		}
		c.mu.Unlock()
		cancel()
		<-c.done
		return
	}
	c.state = StateClosing
	cancel := c.cancel
	sock := c.sock
	c.mu.Unlock()

	if sock != nil {
		_ = sock.Close()
	}
	if cancel != nil {
		cancel()
	}
	<-c.done
}

func dialGorilla(ctx context.Context, target string) (Socket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
