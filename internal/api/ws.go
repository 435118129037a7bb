package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// wsWriteTimeout bounds each frame write.
	wsWriteTimeout = 10 * time.Second
	// wsPingInterval keeps idle connections alive through proxies.
	wsPingInterval = 30 * time.Second
)

// allowWSOrigin checks the upgrade request's Origin against the
// configured CORS origins. Browsers do not preflight WebSocket
// upgrades, so the CORS middleware never sees them and the check has
// to happen here. Requests without an Origin header (non-browser
// clients) are admitted.
func (s *Server) allowWSOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	allowed := s.cors.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// handleEvents streams bus events to the browser as JSON frames. Slow
// clients miss events rather than backing up publishers.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bus == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "event bus not configured")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.allowWSOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.deps.Bus.Subscribe(64)
	defer s.deps.Bus.Unsubscribe(ch)

	// Read pump: discard client frames, detect close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
