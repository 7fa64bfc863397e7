package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"telechat/internal/models"
)

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

var upgrader = &websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// JoinHandler upgrades GET /v1/chats/{id}/join to a websocket. The token
// travels as a query parameter; sockets are refused for ended sessions so a
// terminal session can never reconnect.
func (a *API) JoinHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.tokens.Resolve(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	session, ok := a.sessionOf(w, r, user)
	if !ok {
		return
	}
	if !session.Active() {
		http.Error(w, "Session has ended", http.StatusConflict)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("error upgrading to websocket: %v", err)
		return
	}

	conn := newMemberConn(a.hub, ws, session.ID, user.ID)
	if err := conn.Handle(r.Context()); err != nil {
		log.Printf("session %d member %d: %v", session.ID, user.ID, err)
	}
}

// memberConn pumps frames between one member socket and the hub.
type memberConn struct {
	ws        wsConnection
	hub       frameHub
	sessionID int
	userID    int
	connID    string

	fromClient chan models.Frame
	fromHub    chan models.Frame
	errorCh    chan error
}

type frameHub interface {
	Join(sessionID int, connID string) chan models.Frame
	Leave(sessionID int, connID string)
	Dispatch(sessionID, senderID int, frame models.Frame)
}

func newMemberConn(hub frameHub, ws wsConnection, sessionID, userID int) *memberConn {
	connID := uuid.NewString()
	return &memberConn{
		ws:         ws,
		hub:        hub,
		sessionID:  sessionID,
		userID:     userID,
		connID:     connID,
		fromClient: make(chan models.Frame),
		fromHub:    hub.Join(sessionID, connID),
		errorCh:    make(chan error, 2),
	}
}

func (c *memberConn) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.hub.Leave(c.sessionID, c.connID)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	_ = c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *memberConn) pumpMessages(ctx context.Context) error {
	for {
		var frame models.Frame
		if err := c.ws.ReadJSON(&frame); err != nil {
			return err
		}
		select {
		case c.fromClient <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *memberConn) mainLoop(ctx context.Context) error {
	for {
		select {
		case frame := <-c.fromClient:
			c.hub.Dispatch(c.sessionID, c.userID, frame)
		case frame, ok := <-c.fromHub:
			if !ok {
				return nil
			}
			if err := c.ws.WriteJSON(frame); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
