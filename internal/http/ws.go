package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/example/taxi-dispatch/internal/dispatch"
)

var upgrader = websocket.Upgrader{
	// Clients connect from mobile webviews; origin enforcement lives
	// at the edge proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades the connection and registers it under the caller's
// identity and role. Browsers cannot set headers on websocket dials,
// so the bearer token arrives as a query parameter.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	u, err := s.Auth.Authenticate(r.Context(), token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "user_id", u.ID, "error", err)
		return
	}
	sess := dispatch.NewWSSession(u.ID, u.Role, conn)
	s.Registry.Register(sess)
	s.logger.Info("ws connected", "user_id", u.ID, "role", u.Role)

	// Read loop: inbound frames are drained only to detect disconnect;
	// all application traffic flows server→client.
	go func() {
		defer func() {
			s.Registry.Unregister(sess)
			_ = sess.Close()
			s.logger.Info("ws disconnected", "user_id", u.ID, "role", u.Role)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
