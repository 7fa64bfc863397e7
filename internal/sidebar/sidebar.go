package sidebar

import (
	"context"
	"log"

	"telechat/internal/models"
)

type Config struct {
	// Fetch re-reads the owning session record, which embeds the current
	// prescription and sick leave certificate.
	Fetch func(ctx context.Context) (*models.Session, error)

	// OnSession receives each refetched session.
	OnSession func(*models.Session)

	// OnEnded fires when the counterpart ends the chat.
	OnEnded func()

	// Broadcast sends an alert frame to the counterpart after a local
	// artifact mutation succeeds. The alert is the sole cross-participant
	// notification mechanism; there is no separate artifact channel.
	Broadcast func(models.Frame)
}

// Coordinator keeps the prescription and sick-leave views consistent with
// server state without polling, by reacting to alert entries on the message
// stream.
type Coordinator struct {
	cfg Config
}

func New(cfg Config) *Coordinator {
	return &Coordinator{cfg: cfg}
}

// HandleMessage inspects one appended transcript entry. Each of the five
// known alert bodies triggers exactly one session refetch; unknown alert
// bodies trigger none.
func (c *Coordinator) HandleMessage(ctx context.Context, m models.Message) {
	if m.Kind != models.MessageKindAlert {
		return
	}

	kind := models.AlertKindOf(m.Body)
	if kind == models.AlertUnknown {
		return
	}

	if kind == models.AlertChatEnded && c.cfg.OnEnded != nil {
		c.cfg.OnEnded()
	}

	c.refetch(ctx)
}

func (c *Coordinator) refetch(ctx context.Context) {
	if c.cfg.Fetch == nil {
		return
	}
	session, err := c.cfg.Fetch(ctx)
	if err != nil {
		log.Printf("sidebar: refetch session: %v", err)
		return
	}
	if c.cfg.OnSession != nil {
		c.cfg.OnSession(session)
	}
}

// NotifyArtifact broadcasts the alert matching a completed local artifact
// mutation, so the counterpart's coordinator refetches in turn.
func (c *Coordinator) NotifyArtifact(kind models.AlertKind) {
	if c.cfg.Broadcast != nil {
		c.cfg.Broadcast(models.AlertFrame(kind))
	}
}
