package stream

import (
	"sync"

	"telechat/internal/models"
)

// Log is the single source of truth for the ordered transcript of one
// mounted session view. It is append-only: entries are never removed or
// reordered, and arrival order of inbound frames is display order.
type Log struct {
	mu   sync.RWMutex
	msgs []models.Message
	subs []func(models.Message)

	// notifyMu serializes subscriber delivery. It is acquired before mu is
	// released in Append, so delivery order always matches log order even
	// when appends race.
	notifyMu sync.Mutex
}

func New() *Log {
	return &Log{}
}

// Hydrate seeds the log from REST-fetched history, dropping entries with
// neither text nor attachment. It is idempotent: once the log is non-empty a
// later hydration is a no-op, so a refetch racing with live appends cannot
// truncate the log.
func (l *Log) Hydrate(history []models.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.msgs) > 0 {
		return
	}
	for _, m := range history {
		if m.HasContent() {
			l.msgs = append(l.msgs, m)
		}
	}
}

// Append adds one inbound frame to the end of the log, in arrival order.
// Typing and otherwise empty frames are rejected. Returns the appended entry
// and whether an append happened. Subscribers receive entries in log order;
// they must not call back into the log.
func (l *Log) Append(f models.Frame) (models.Message, bool) {
	if !f.IsContent() {
		return models.Message{}, false
	}

	msg := f.AsMessage()

	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	subs := l.subs
	l.notifyMu.Lock()
	l.mu.Unlock()

	for _, fn := range subs {
		fn(msg)
	}
	l.notifyMu.Unlock()
	return msg, true
}

// Subscribe registers a callback invoked once per appended entry. Subscribers
// are independent: the transcript and the sidebar both watch the same stream
// without coupling to each other.
func (l *Log) Subscribe(fn func(models.Message)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, fn)
}

// Messages returns a copy of the ordered transcript.
func (l *Log) Messages() []models.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}
