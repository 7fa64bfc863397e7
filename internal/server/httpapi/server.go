package httpapi

import (
	"context"
	"log"
	"net/http"
	"sync"

	"telechat/internal/server/auth"
	"telechat/internal/server/hub"
	"telechat/internal/server/storage"
)

// Server exposes the consultation REST API and the realtime join endpoint.
type Server struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewServer(tokens *auth.TokenService, store *storage.BboltStorage, h *hub.Hub, addr string) *Server {
	api := NewAPI(tokens, store, h)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/login", api.LoginHandler)
	mux.HandleFunc("POST /v1/chats", api.CreateChatHandler)
	mux.HandleFunc("GET /v1/chats/{id}", api.GetChatHandler)
	mux.HandleFunc("POST /v1/chats/{id}/end", api.EndChatHandler)
	mux.HandleFunc("POST /v1/chats/{id}/prescription", api.PrescriptionHandler)
	mux.HandleFunc("PATCH /v1/chats/{id}/prescription", api.PrescriptionHandler)
	mux.HandleFunc("POST /v1/chats/{id}/sick-leave", api.SickLeaveHandler)
	mux.HandleFunc("PATCH /v1/chats/{id}/sick-leave", api.SickLeaveHandler)

	// Realtime channel
	mux.HandleFunc("GET /v1/chats/{id}/join", api.JoinHandler)

	if addr == "" {
		addr = ":8080"
	}

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *Server) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
