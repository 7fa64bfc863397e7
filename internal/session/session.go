package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"telechat/internal/models"
)

// Phase is the lifecycle of one mounted session view. Ended is terminal: the
// channel must not reconnect and all compose affordances stay disabled.
type Phase int

const (
	PhaseActive Phase = iota
	PhaseEnding
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseEnding:
		return "ending"
	case PhaseEnded:
		return "ended"
	default:
		return "active"
	}
}

const DefaultCountdownFrom = 30

var ErrNotActive = errors.New("session is not active")

type Config struct {
	Role models.Role

	// CountdownFrom is the number of one-second ticks the doctor path waits
	// before the terminal action. Defaults to 30.
	CountdownFrom int

	// Tick overrides the tick interval, used by tests. Defaults to a second.
	Tick time.Duration

	// EndChat performs the terminal REST mutation.
	EndChat func(ctx context.Context) error

	// Broadcast sends the chat-ended alert frame to the counterpart. Send
	// failures are ignored: the session state is already final server-side
	// and is reconciled on the next hydration.
	Broadcast func(models.Frame)

	// OnTick, if set, observes each remaining-seconds value.
	OnTick func(remaining int)
}

// Machine drives the end-of-session flow. The doctor path runs a strictly
// decreasing countdown with no user-facing cancel; the patient path ends
// immediately. Both perform the terminal action exactly once.
type Machine struct {
	cfg Config

	mu        sync.Mutex
	phase     Phase
	remaining int

	finalize sync.Once
}

func New(cfg Config) *Machine {
	if cfg.CountdownFrom <= 0 {
		cfg.CountdownFrom = DefaultCountdownFrom
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	return &Machine{cfg: cfg}
}

// End runs the confirmed end-chat action. For doctors it blocks through the
// countdown; cancellation is only observable through ctx (component
// unmount), not through any user affordance.
func (m *Machine) End(ctx context.Context) error {
	m.mu.Lock()
	if m.phase != PhaseActive {
		m.mu.Unlock()
		return ErrNotActive
	}

	if m.cfg.Role != models.RoleDoctor {
		m.mu.Unlock()
		return m.runFinalize(ctx)
	}

	m.phase = PhaseEnding
	m.remaining = m.cfg.CountdownFrom
	m.mu.Unlock()

	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			m.remaining--
			remaining := m.remaining
			m.mu.Unlock()

			if m.cfg.OnTick != nil {
				m.cfg.OnTick(remaining)
			}
			if remaining <= 0 {
				return m.runFinalize(ctx)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runFinalize performs the terminal REST call and the alert broadcast
// exactly once, then pins the phase to Ended. A failed mutation is surfaced
// but not rolled back; the server truth wins on the next hydration.
func (m *Machine) runFinalize(ctx context.Context) error {
	var err error
	m.finalize.Do(func() {
		if m.cfg.EndChat != nil {
			err = m.cfg.EndChat(ctx)
		}
		if err == nil && m.cfg.Broadcast != nil {
			m.cfg.Broadcast(models.AlertFrame(models.AlertChatEnded))
		}
	})

	m.mu.Lock()
	m.phase = PhaseEnded
	m.mu.Unlock()
	return err
}

// MarkEnded pins the phase to Ended without the terminal action. Used when
// the counterpart ends the chat (chat-ended alert) or hydration reports a
// non-active status.
func (m *Machine) MarkEnded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = PhaseEnded
}

func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Remaining returns the countdown's remaining seconds while Ending.
func (m *Machine) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remaining
}

// CanCompose gates the compose, attachment and typing affordances.
func (m *Machine) CanCompose() bool {
	return m.Phase() == PhaseActive
}

// CanEnd gates the end-chat confirmation control. It goes inert as soon as
// the countdown starts.
func (m *Machine) CanEnd() bool {
	return m.Phase() == PhaseActive
}
