package typing

import (
	"sync"
	"time"

	"telechat/internal/models"
)

const DefaultDebounce = 1500 * time.Millisecond

type Config struct {
	// LocalUserID filters out our own echoed typing frames.
	LocalUserID int

	// Debounce is the window of keystroke inactivity after which the local
	// flag drops. Defaults to 1500ms.
	Debounce time.Duration

	// RemoteIdle, when positive, clears a stuck remote flag after that much
	// inactivity from the counterpart. Zero keeps the source behavior: the
	// flag is only cleared by an opposing inbound frame.
	RemoteIdle time.Duration

	// Emit sends an outbound typing frame. Called on every transition of
	// the local flag.
	Emit func(models.Frame)

	// OnChange, if set, receives both flags after either one changes. It
	// must not call back into the coordinator.
	OnChange func(local, remote bool)
}

// Coordinator translates raw keystroke activity into a debounced local flag
// and interprets the counterpart's typing frames into a remote flag.
type Coordinator struct {
	cfg Config

	mu        sync.Mutex
	local     bool
	remote    bool
	timer     *time.Timer
	idleTimer *time.Timer
	stopped   bool
}

func New(cfg Config) *Coordinator {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Emit == nil {
		cfg.Emit = func(models.Frame) {}
	}
	return &Coordinator{cfg: cfg}
}

// Touch registers one keystroke. The first keystroke raises the local flag
// and emits is_typing=true; each subsequent keystroke just rewinds the
// debounce timer.
func (c *Coordinator) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.cfg.Debounce, c.lapse)

	if !c.local {
		c.local = true
		c.cfg.Emit(models.TypingFrame(true))
		c.notify()
	}
}

// lapse fires when the debounce window passes with no further input. The
// false frame is emitted exactly once per lapse.
func (c *Coordinator) lapse() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || !c.local {
		return
	}
	c.local = false
	c.cfg.Emit(models.TypingFrame(false))
	c.notify()
}

// HandleFrame interprets one inbound frame. Only typing-shaped frames from
// the counterpart update the remote flag; content frames never touch it.
func (c *Coordinator) HandleFrame(f models.Frame) {
	if !f.IsTypingFrame() || f.SenderID == c.cfg.LocalUserID {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}

	if c.cfg.RemoteIdle > 0 {
		if c.idleTimer != nil {
			c.idleTimer.Stop()
		}
		c.idleTimer = time.AfterFunc(c.cfg.RemoteIdle, c.remoteLapse)
	}

	if c.remote != *f.IsTyping {
		c.remote = *f.IsTyping
		c.notify()
	}
}

func (c *Coordinator) remoteLapse() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || !c.remote {
		return
	}
	c.remote = false
	c.notify()
}

// Local reports whether the local participant is typing.
func (c *Coordinator) Local() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

// Remote reports whether the counterpart is typing.
func (c *Coordinator) Remote() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

// Stop halts all timers. No frames are emitted after Stop returns.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
	}
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
}

// notify is called with the mutex held.
func (c *Coordinator) notify() {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange(c.local, c.remote)
	}
}
