package hub

import (
	"log"
	"sync"
	"time"

	"telechat/internal/content"
	"telechat/internal/models"
)

type store interface {
	AppendMessage(sessionID int, msg models.Message) error
}

// Hub fans frames out to the connected members of each session. Every
// accepted frame is echoed to all members including the sender: clients do
// not append locally and rely on the echo.
type Hub struct {
	store store

	mu      sync.RWMutex
	members map[int]map[string]chan models.Frame
}

func New(store store) *Hub {
	return &Hub{
		store:   store,
		members: make(map[int]map[string]chan models.Frame),
	}
}

// Join registers one connection of a session and returns its outbound
// channel.
func (h *Hub) Join(sessionID int, connID string) chan models.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.members[sessionID]
	if !ok {
		conns = make(map[string]chan models.Frame)
		h.members[sessionID] = conns
	}

	ch := make(chan models.Frame, 32)
	conns[connID] = ch
	return ch
}

func (h *Hub) Leave(sessionID int, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.members[sessionID]
	if !ok {
		return
	}
	if ch, ok := conns[connID]; ok {
		close(ch)
		delete(conns, connID)
	}
	if len(conns) == 0 {
		delete(h.members, sessionID)
	}
}

// Dispatch handles one inbound frame from a member. Typing frames are
// broadcast but never persisted; content and alert frames are sanitized,
// persisted and then echoed. Frames matching neither shape are dropped.
func (h *Hub) Dispatch(sessionID, senderID int, frame models.Frame) {
	frame.SenderID = senderID

	switch {
	case frame.IsTypingFrame():
		h.broadcast(sessionID, frame)
	case frame.IsContent():
		frame.Message = content.Sanitize(frame.Message)
		if !frame.IsContent() {
			// Sanitization emptied the body and there is no attachment.
			return
		}
		now := time.Now()
		frame.CreatedAt = &now
		if err := h.store.AppendMessage(sessionID, frame.AsMessage()); err != nil {
			log.Printf("hub: persist message for session %d: %v", sessionID, err)
			return
		}
		h.broadcast(sessionID, frame)
	}
}

func (h *Hub) broadcast(sessionID int, frame models.Frame) {
	h.mu.RLock()
	conns := make([]chan models.Frame, 0, len(h.members[sessionID]))
	for _, ch := range h.members[sessionID] {
		conns = append(conns, ch)
	}
	h.mu.RUnlock()

	for _, ch := range conns {
		select {
		case ch <- frame:
		default:
			// Slow consumer, drop rather than block the dispatcher.
		}
	}
}
