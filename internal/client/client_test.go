package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"telechat/internal/models"
	"telechat/internal/session"
)

func TestClient_MountRetriesAfterFailedHydration(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "backend unavailable", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(models.Session{
			ID:       7,
			DoctorID: 1,
			UserID:   2,
			StatusID: models.SessionStatusEnded,
		})
	}))
	defer srv.Close()

	c := New(Config{
		APIBaseURL: srv.URL,
		Token:      "tok",
		UserID:     2,
		Role:       models.RolePatient,
		SessionID:  7,
	})

	if err := c.Mount(context.Background()); err == nil {
		t.Fatal("expected first mount to fail on hydration")
	}

	// A failed hydration leaves the client unmounted; the same instance
	// retries instead of reporting "already mounted".
	if err := c.Mount(context.Background()); err != nil {
		t.Fatalf("retry mount failed: %v", err)
	}
	defer c.Unmount()

	if calls != 2 {
		t.Errorf("expected 2 hydration calls, got %d", calls)
	}
	if got := c.Phase(); got != session.PhaseEnded {
		t.Errorf("expected ended phase after hydrating an ended session, got %v", got)
	}
}
