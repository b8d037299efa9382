package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// handleLive streams the device state over a WebSocket.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.V(1).Info("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err.Error())
		return
	}
	defer conn.Close()
	log := s.log.WithValues("remote", r.RemoteAddr)
	log.V(1).Info("Live view connected")

	// the read side only watches for the peer going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.live)
	defer ticker.Stop()

	for {
		_ = conn.SetWriteDeadline(time.Now().Add(s.live * 4))
		if err := conn.WriteJSON(s.Snapshot()); err != nil {
			log.V(1).Info("Live view write failed", "error", err.Error())
			return
		}

		select {
		case <-s.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
			return
		case <-closed:
			log.V(1).Info("Live view disconnected")
			return
		case <-ticker.C:
		}
	}
}
