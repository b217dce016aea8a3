package realtime

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

func (h *Hub) upgrader() *websocket.Upgrader {
	u := &websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	if len(h.origins) > 0 {
		u.CheckOrigin = h.checkOrigin
	}
	return u
}

// checkOrigin accepts requests without an Origin header, since only
// browsers send one.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

type wsSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *wsSession) Send(ctx context.Context, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetWriteDeadline(deadline)
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *wsSession) Close() error {
	return s.conn.Close()
}

// Serve upgrades the request and blocks until the client goes away. The only
// client frame with meaning is the text "ping", answered with "pong".
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, recipientID string) error {
	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	s := &wsSession{conn: conn}
	h.Register(recipientID, s)
	h.logger.Info().Str("recipient", recipientID).Msg("session connected")
	defer func() {
		h.Unregister(recipientID, s)
		_ = s.Close()
		h.logger.Info().Str("recipient", recipientID).Msg("session closed")
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		if mt == websocket.TextMessage && strings.TrimSpace(string(data)) == "ping" {
			if err := s.Send(r.Context(), []byte("pong")); err != nil {
				return nil
			}
		}
	}
}
