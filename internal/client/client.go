package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"telechat/internal/attach"
	"telechat/internal/models"
	"telechat/internal/rest"
	"telechat/internal/session"
	"telechat/internal/sidebar"
	"telechat/internal/stream"
	"telechat/internal/typing"
	"telechat/internal/ws"
)

var (
	ErrEmptySend   = errors.New("nothing to send")
	ErrNotMounted  = errors.New("client is not mounted")
	ErrSessionOver = errors.New("session has ended")
)

type Config struct {
	APIBaseURL string
	WSBaseURL  string
	Token      string
	UserID     int
	Role       models.Role
	SessionID  int

	// RedialWait enables linear-backoff reconnection when positive.
	RedialWait time.Duration

	// RemoteIdle enables the optional stuck-typing timeout when positive.
	RemoteIdle time.Duration

	// Observers. All are optional and called from the dispatch goroutine.
	OnMessage       func(models.Message)
	OnTyping        func(remote bool)
	OnState         func(ws.State)
	OnSession       func(*models.Session)
	OnCountdownTick func(remaining int)
}

// Client is one mounted consultation session view: hydration, the live
// channel, the transcript, typing state, attachments and the end-of-session
// flow, composed the way the page wires them.
//
// Sent messages are not appended locally. The server echoes every frame back
// over the same channel, and that echo is the append; adding a local echo
// without wire-level message ids would double-render.
type Client struct {
	cfg Config

	api     *rest.Client
	conn    *ws.Conn
	log     *stream.Log
	typing  *typing.Coordinator
	machine *session.Machine
	sidebar *sidebar.Coordinator
	stager  *attach.Stager

	mu      sync.Mutex
	session *models.Session
	mounted bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(cfg Config) *Client {
	return &Client{
		cfg:    cfg,
		api:    rest.NewClient(cfg.APIBaseURL, cfg.Token),
		log:    stream.New(),
		stager: attach.NewStager(),
		done:   make(chan struct{}),
	}
}

// Mount hydrates the session over REST, opens the realtime channel while the
// session is active, and starts dispatching inbound frames. It corresponds
// to the session view appearing on screen.
func (c *Client) Mount(ctx context.Context) error {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return errors.New("already mounted")
	}
	c.mounted = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	sess, err := c.api.GetChat(ctx, c.cfg.SessionID)
	if err != nil {
		// A failed hydration leaves the client unmounted so the caller can
		// retry Mount on the same instance.
		c.mu.Lock()
		c.mounted = false
		cancel := c.cancel
		c.cancel = nil
		c.mu.Unlock()
		cancel()
		return fmt.Errorf("hydrate session %d: %w", c.cfg.SessionID, err)
	}
	c.setSession(sess)
	c.log.Hydrate(sess.Messages)

	c.conn = ws.New(ws.Config{
		BaseURL:    c.cfg.WSBaseURL,
		SessionID:  c.cfg.SessionID,
		Token:      c.cfg.Token,
		Enabled:    sess.Active() && c.cfg.Token != "",
		RedialWait: c.cfg.RedialWait,
	})

	c.machine = session.New(session.Config{
		Role: c.cfg.Role,
		EndChat: func(ctx context.Context) error {
			resp, err := c.api.EndChat(ctx, c.cfg.SessionID)
			if err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("end chat: %s", resp.Message)
			}
			return nil
		},
		Broadcast: c.broadcast,
		OnTick:    c.cfg.OnCountdownTick,
	})
	if !sess.Active() {
		c.machine.MarkEnded()
	}

	c.typing = typing.New(typing.Config{
		LocalUserID: c.cfg.UserID,
		RemoteIdle:  c.cfg.RemoteIdle,
		Emit: func(f models.Frame) {
			if c.machine.CanCompose() {
				_ = c.conn.Send(f)
			}
		},
		OnChange: func(_, remote bool) {
			if c.cfg.OnTyping != nil {
				c.cfg.OnTyping(remote)
			}
		},
	})

	c.sidebar = sidebar.New(sidebar.Config{
		Fetch: func(ctx context.Context) (*models.Session, error) {
			return c.api.GetChat(ctx, c.cfg.SessionID)
		},
		OnSession: func(s *models.Session) {
			c.setSession(s)
			if c.cfg.OnSession != nil {
				c.cfg.OnSession(s)
			}
		},
		OnEnded:   c.machine.MarkEnded,
		Broadcast: c.broadcast,
	})

	// The transcript observer and the sidebar are independent subscribers
	// over the same stream.
	if c.cfg.OnMessage != nil {
		c.log.Subscribe(c.cfg.OnMessage)
	}
	c.log.Subscribe(func(m models.Message) {
		c.sidebar.HandleMessage(ctx, m)
	})

	if c.cfg.OnState != nil {
		watch := c.conn.Watch()
		go func() {
			for s := range watch {
				c.cfg.OnState(s)
			}
		}()
	}

	if err := c.conn.Connect(ctx); err != nil {
		// A disabled channel (ended session, missing token) is a valid
		// mount: the transcript stays readable, affordances stay gated.
		if errors.Is(err, ws.ErrDisabled) {
			close(c.done)
			return nil
		}
		return err
	}

	go c.dispatch()
	return nil
}

// dispatch fans each inbound frame out to the typing coordinator and the
// stream log. Frames matching neither shape are dropped, never fatal.
func (c *Client) dispatch() {
	defer close(c.done)
	for frame := range c.conn.Frames() {
		switch {
		case frame.IsTypingFrame():
			c.typing.HandleFrame(frame)
		case frame.IsContent():
			c.log.Append(frame)
		default:
			// Unrecognized shape, ignore.
		}
	}
}

// Keystroke registers compose-box input with the typing coordinator.
func (c *Client) Keystroke() {
	if c.typing != nil && c.machine.CanCompose() {
		c.typing.Touch()
	}
}

// StageAttachment validates and stages one selected file, replacing any
// previous selection of either kind.
func (c *Client) StageAttachment(name string, data []byte, release func()) (*attach.Staged, error) {
	if c.machine != nil && !c.machine.CanCompose() {
		if release != nil {
			release()
		}
		return nil, ErrSessionOver
	}
	return c.stager.Stage(name, data, release)
}

// ClearAttachment drops the staged attachment and releases its preview.
func (c *Client) ClearAttachment() {
	c.stager.Clear()
}

// Send emits one content frame with the compose text and any staged
// attachment. Sending with neither is a no-op error and nothing reaches the
// wire. There is no local append; the server echo produces it.
func (c *Client) Send(text string) error {
	if c.conn == nil {
		return ErrNotMounted
	}
	if !c.machine.CanCompose() {
		return ErrSessionOver
	}

	staged := c.stager.Staged()
	if text == "" && staged == nil {
		return ErrEmptySend
	}

	frame := models.Frame{
		SenderID:    c.cfg.UserID,
		Message:     text,
		MessageType: models.MessageKindChat,
	}
	if staged != nil {
		frame.Attachment = staged.Encoded()
	}

	if err := c.conn.Send(frame); err != nil {
		return err
	}
	// The staged attachment is consumed, and its preview released, only
	// after a successful write.
	if staged != nil {
		c.stager.Clear()
	}
	return nil
}

// End runs the confirmed end-chat flow for the local role. Doctors block
// through the 30-second countdown; ctx cancellation (unmount) is the only
// way to stop it.
func (c *Client) End(ctx context.Context) error {
	if c.machine == nil {
		return ErrNotMounted
	}
	return c.machine.End(ctx)
}

// IssuePrescription creates or updates the session's prescription and, on
// success, broadcasts the matching alert so the counterpart refreshes.
func (c *Client) IssuePrescription(ctx context.Context, p models.Prescription, update bool) error {
	if c.cfg.Role != models.RoleDoctor {
		return errors.New("only the doctor can issue a prescription")
	}
	if !c.machine.CanCompose() {
		return ErrSessionOver
	}

	var (
		resp rest.Result
		err  error
		kind = models.AlertPrescriptionIssued
	)
	if update {
		resp, err = c.api.UpdatePrescription(ctx, c.cfg.SessionID, p)
		kind = models.AlertPrescriptionUpdated
	} else {
		resp, err = c.api.AddPrescription(ctx, c.cfg.SessionID, p)
	}
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("prescription: %s", resp.Message)
	}
	c.sidebar.NotifyArtifact(kind)
	return nil
}

// IssueSickLeave creates or updates the session's sick leave certificate
// and, on success, broadcasts the matching alert.
func (c *Client) IssueSickLeave(ctx context.Context, f models.SickLeaveForm, update bool) error {
	if c.cfg.Role != models.RoleDoctor {
		return errors.New("only the doctor can issue a certificate")
	}
	if !c.machine.CanCompose() {
		return ErrSessionOver
	}

	var (
		resp rest.Result
		err  error
		kind = models.AlertSickLeaveIssued
	)
	if update {
		resp, err = c.api.UpdateSickLeave(ctx, c.cfg.SessionID, f)
		kind = models.AlertSickLeaveUpdated
	} else {
		resp, err = c.api.AddSickLeave(ctx, c.cfg.SessionID, f)
	}
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("sick leave: %s", resp.Message)
	}
	c.sidebar.NotifyArtifact(kind)
	return nil
}

// Unmount tears everything down: the channel, the typing timers and any
// running countdown. Safe to call once the view navigates away.
func (c *Client) Unmount() {
	c.mu.Lock()
	cancel := c.cancel
	mounted := c.mounted
	c.mu.Unlock()

	if !mounted {
		return
	}
	if cancel != nil {
		cancel()
	}
	if c.typing != nil {
		c.typing.Stop()
	}
	if c.conn != nil {
		c.conn.Close()
		<-c.done
	}
	c.stager.Clear()
}

// Messages returns the ordered transcript.
func (c *Client) Messages() []models.Message {
	return c.log.Messages()
}

// RemoteTyping reports whether the counterpart is typing.
func (c *Client) RemoteTyping() bool {
	if c.typing == nil {
		return false
	}
	return c.typing.Remote()
}

// ConnState exposes the channel state for "reconnecting" style affordances.
func (c *Client) ConnState() ws.State {
	if c.conn == nil {
		return ws.StateUninstantiated
	}
	return c.conn.State()
}

// Phase exposes the lifecycle phase for gating affordances.
func (c *Client) Phase() session.Phase {
	if c.machine == nil {
		return session.PhaseActive
	}
	return c.machine.Phase()
}

// CountdownRemaining returns the end-chat countdown's remaining seconds.
func (c *Client) CountdownRemaining() int {
	if c.machine == nil {
		return 0
	}
	return c.machine.Remaining()
}

// Session returns the latest hydrated session record.
func (c *Client) Session() *models.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) setSession(s *models.Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	if !s.Active() && c.machine != nil {
		c.machine.MarkEnded()
	}
}

func (c *Client) broadcast(f models.Frame) {
	f.SenderID = c.cfg.UserID
	if err := c.conn.Send(f); err != nil {
		// Transport errors are state, not exceptions; the counterpart
		// reconciles on its next hydration.
		return
	}
}
