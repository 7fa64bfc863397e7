package stream

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"telechat/internal/models"
)

func history(bodies ...string) []models.Message {
	var msgs []models.Message
	for _, b := range bodies {
		msgs = append(msgs, models.Message{
			SenderID:  1,
			Kind:      models.MessageKindChat,
			Body:      b,
			CreatedAt: time.Now(),
		})
	}
	return msgs
}

func TestLog_AppendOrder(t *testing.T) {
	for _, n := range []int{0, 1, 5, 20} {
		l := New()
		l.Hydrate(history("A", "B"))

		for i := 0; i < n; i++ {
			_, ok := l.Append(models.Frame{SenderID: 2, Message: fmt.Sprintf("live %d", i), MessageType: models.MessageKindChat})
			if !ok {
				t.Fatalf("n=%d: append %d rejected", n, i)
			}
		}

		msgs := l.Messages()
		if len(msgs) != 2+n {
			t.Fatalf("n=%d: expected %d messages, got %d", n, 2+n, len(msgs))
		}
		if msgs[0].Body != "A" || msgs[1].Body != "B" {
			t.Errorf("n=%d: history out of order: %q, %q", n, msgs[0].Body, msgs[1].Body)
		}
		for i := 0; i < n; i++ {
			want := fmt.Sprintf("live %d", i)
			if msgs[2+i].Body != want {
				t.Errorf("n=%d: index %d: expected %q, got %q", n, 2+i, want, msgs[2+i].Body)
			}
		}
	}
}

func TestLog_HydrateFiltersEmpty(t *testing.T) {
	l := New()
	l.Hydrate([]models.Message{
		{Body: "hello", Kind: models.MessageKindChat},
		{Body: "", Attachment: ""}, // pure typing/empty record
		{Attachment: "aGk=", Kind: models.MessageKindChat},
	})

	if l.Len() != 2 {
		t.Errorf("expected 2 messages after filtering, got %d", l.Len())
	}
}

func TestLog_HydrateIdempotent(t *testing.T) {
	l := New()
	l.Hydrate(history("A", "B"))
	l.Append(models.Frame{Message: "C", MessageType: models.MessageKindChat})

	// The fetch layer re-running hydration must not truncate live state.
	l.Hydrate(history("A", "B"))

	msgs := l.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[2].Body != "C" {
		t.Errorf("live append lost: expected C, got %q", msgs[2].Body)
	}
}

func TestLog_RejectsNonContent(t *testing.T) {
	l := New()
	typing := true
	if _, ok := l.Append(models.Frame{IsTyping: &typing}); ok {
		t.Error("typing frame should not be appended")
	}
	if _, ok := l.Append(models.Frame{}); ok {
		t.Error("empty frame should not be appended")
	}
	if l.Len() != 0 {
		t.Errorf("expected empty log, got %d entries", l.Len())
	}
}

func TestLog_AlertsAreAppended(t *testing.T) {
	l := New()
	_, ok := l.Append(models.Frame{Message: models.AlertTextChatEnded, MessageType: models.MessageKindAlert})
	if !ok {
		t.Fatal("alert frame should be appended")
	}
	if got := l.Messages()[0].Kind; got != models.MessageKindAlert {
		t.Errorf("expected alert kind, got %d", got)
	}
}

func TestLog_Subscribers(t *testing.T) {
	l := New()
	var first, second []string
	l.Subscribe(func(m models.Message) { first = append(first, m.Body) })
	l.Subscribe(func(m models.Message) { second = append(second, m.Body) })

	l.Append(models.Frame{Message: "one", MessageType: models.MessageKindChat})
	l.Append(models.Frame{Message: "two", MessageType: models.MessageKindChat})

	for name, got := range map[string][]string{"first": first, "second": second} {
		if len(got) != 2 || got[0] != "one" || got[1] != "two" {
			t.Errorf("%s subscriber: expected [one two], got %v", name, got)
		}
	}
}

func TestLog_ConcurrentAppendsDeliverInLogOrder(t *testing.T) {
	l := New()

	var mu sync.Mutex
	var delivered []string
	l.Subscribe(func(m models.Message) {
		mu.Lock()
		delivered = append(delivered, m.Body)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		body := fmt.Sprintf("msg %d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Append(models.Frame{Message: body, MessageType: models.MessageKindChat})
		}()
	}
	wg.Wait()

	msgs := l.Messages()
	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != len(msgs) {
		t.Fatalf("expected %d deliveries, got %d", len(msgs), len(delivered))
	}
	for i := range msgs {
		if delivered[i] != msgs[i].Body {
			t.Fatalf("delivery order diverged from log order at %d: %q vs %q", i, delivered[i], msgs[i].Body)
		}
	}
}
