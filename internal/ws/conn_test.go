package ws

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"telechat/internal/models"
)

type mockSocket struct {
	mu      sync.Mutex
	readCh  chan models.Frame
	written []models.Frame
	closeCh chan struct{}
	closed  bool
}

func newMockSocket() *mockSocket {
	return &mockSocket{
		readCh:  make(chan models.Frame, 10),
		closeCh: make(chan struct{}),
	}
}

func (m *mockSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.closeCh)
	return nil
}

func (m *mockSocket) WriteJSON(v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("connection closed")
	}
	if f, ok := v.(models.Frame); ok {
		m.written = append(m.written, f)
	}
	return nil
}

func (m *mockSocket) ReadJSON(v interface{}) error {
	select {
	case f := <-m.readCh:
		if ptr, ok := v.(*models.Frame); ok {
			*ptr = f
		}
		return nil
	case <-m.closeCh:
		return errors.New("connection closed")
	}
}

func (m *mockSocket) writtenFrames() []models.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Frame, len(m.written))
	copy(out, m.written)
	return out
}

func dialMock(sock *mockSocket) func(context.Context, string) (Socket, error) {
	return func(ctx context.Context, url string) (Socket, error) {
		return sock, nil
	}
}

func waitState(t *testing.T, c *Conn, want State) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state never reached %s, currently %s", want, c.State())
}

func TestConn_Disabled(t *testing.T) {
	c := New(Config{Enabled: false, Token: "tok"})
	if err := c.Connect(context.Background()); err != ErrDisabled {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if c.State() != StateUninstantiated {
		t.Errorf("disabled connection must stay uninstantiated, got %s", c.State())
	}

	// No token suppresses dialing too.
	c = New(Config{Enabled: true})
	if err := c.Connect(context.Background()); err != ErrDisabled {
		t.Fatalf("expected ErrDisabled without token, got %v", err)
	}
}

func TestConn_SendGatedOnOpen(t *testing.T) {
	sock := newMockSocket()
	c := New(Config{Enabled: true, Token: "tok", Dial: dialMock(sock)})

	if err := c.Send(models.Frame{Message: "early"}); err != ErrNotOpen {
		t.Fatalf("expected ErrNotOpen before connect, got %v", err)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitState(t, c, StateOpen)

	if err := c.Send(models.Frame{Message: "hello", MessageType: models.MessageKindChat}); err != nil {
		t.Fatalf("Send failed while open: %v", err)
	}
	if got := sock.writtenFrames(); len(got) != 1 || got[0].Message != "hello" {
		t.Errorf("expected one written frame, got %v", got)
	}

	c.Close()
	if err := c.Send(models.Frame{Message: "late"}); err != ErrNotOpen {
		t.Errorf("expected ErrNotOpen after close, got %v", err)
	}
}

func TestConn_DeliversInboundFrames(t *testing.T) {
	sock := newMockSocket()
	c := New(Config{Enabled: true, Token: "tok", Dial: dialMock(sock)})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitState(t, c, StateOpen)

	sock.readCh <- models.Frame{Message: "one", MessageType: models.MessageKindChat}
	sock.readCh <- models.Frame{Message: "two", MessageType: models.MessageKindChat}

	for _, want := range []string{"one", "two"} {
		select {
		case f := <-c.Frames():
			if f.Message != want {
				t.Errorf("expected %q, got %q", want, f.Message)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for frame %q", want)
		}
	}

	c.Close()
}

func TestConn_CloseTearsDown(t *testing.T) {
	sock := newMockSocket()
	c := New(Config{Enabled: true, Token: "tok", Dial: dialMock(sock)})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitState(t, c, StateOpen)

	c.Close()
	if c.State() != StateClosed {
		t.Errorf("expected StateClosed, got %s", c.State())
	}

	// Frames channel must be closed so a dead reducer never receives.
	if _, ok := <-c.Frames(); ok {
		t.Error("frames channel must be closed after teardown")
	}

	// Close is idempotent.
	c.Close()
}

func TestConn_WatchClosesOnTeardown(t *testing.T) {
	sock := newMockSocket()
	c := New(Config{Enabled: true, Token: "tok", Dial: dialMock(sock)})

	watch := c.Watch()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitState(t, c, StateOpen)

	// A forwarder ranging over the watch channel must terminate on Close,
	// not leak per mount/unmount cycle.
	drained := make(chan []State)
	go func() {
		var seen []State
		for s := range watch {
			seen = append(seen, s)
		}
		drained <- seen
	}()

	c.Close()

	select {
	case seen := <-drained:
		if len(seen) == 0 || seen[len(seen)-1] != StateClosed {
			t.Errorf("expected final transition StateClosed, got %v", seen)
		}
	case <-time.After(time.Second):
		t.Fatal("watch channel never closed after Close")
	}
}

func TestConn_WatchClosesWithoutConnect(t *testing.T) {
	// The never-connected case: no run goroutine exists, Close alone must
	// release the watchers.
	c := New(Config{Enabled: true, Token: "tok", Dial: dialMock(newMockSocket())})
	watch := c.Watch()
	c.Close()

	select {
	case _, ok := <-watch:
		if ok {
			t.Error("expected closed watch channel, got a transition")
		}
	case <-time.After(time.Second):
		t.Fatal("watch channel never closed after Close without Connect")
	}

	// Watch after teardown hands back an already-closed channel.
	if _, ok := <-c.Watch(); ok {
		t.Error("watch channel obtained after Close must be closed")
	}
}

func TestConn_NoRedialByDefault(t *testing.T) {
	sock := newMockSocket()
	dials := 0
	c := New(Config{
		Enabled: true,
		Token:   "tok",
		Dial: func(ctx context.Context, url string) (Socket, error) {
			dials++
			return sock, nil
		},
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitState(t, c, StateOpen)

	// Server-side drop.
	_ = sock.Close()
	waitState(t, c, StateClosed)

	if dials != 1 {
		t.Errorf("expected a single dial without RedialWait, got %d", dials)
	}
}

func TestConn_RedialWithBackoff(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	socks := []*mockSocket{newMockSocket(), newMockSocket()}

	c := New(Config{
		Enabled:    true,
		Token:      "tok",
		RedialWait: 5 * time.Millisecond,
		Dial: func(ctx context.Context, url string) (Socket, error) {
			mu.Lock()
			defer mu.Unlock()
			if dials >= len(socks) {
				return nil, errors.New("no more sockets")
			}
			sock := socks[dials]
			dials++
			return sock, nil
		},
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitState(t, c, StateOpen)

	_ = socks[0].Close()
	waitState(t, c, StateOpen)

	mu.Lock()
	got := dials
	mu.Unlock()
	if got != 2 {
		t.Errorf("expected redial after drop, got %d dials", got)
	}

	c.Close()
}

func TestConn_URL(t *testing.T) {
	c := New(Config{BaseURL: "ws://example.test", SessionID: 12, Token: "a b"})
	want := "ws://example.test/v1/chats/12/join?token=a+b"
	if got := c.URL(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
