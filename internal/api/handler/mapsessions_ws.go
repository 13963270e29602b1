package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/autoplaza/autoplaza/internal/api/models"
	"github.com/autoplaza/autoplaza/internal/mapsync"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = 30 * time.Second
	wsReadLimit    = 4 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// CORS already restricts browser origins on the router.
	CheckOrigin: func(*http.Request) bool { return true },
}

// StreamSession handles GET /v1/map/sessions/{sessionId}/ws - pushes a state
// snapshot on connect and after every change until the session closes.
func (h *MapSessionHandler) StreamSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("session_id", sess.ID()).Msg("websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	sub := sess.Subscribe()
	defer sub.Close()

	done := make(chan struct{})
	go readPump(conn, done)

	log := h.logger.With().Str("session_id", sess.ID()).Logger()
	log.Debug().Msg("map session stream opened")

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	if err := writeSnapshot(conn, sess, sub); err != nil {
		return
	}

	for {
		select {
		case <-done:
			log.Debug().Msg("map session stream closed by client")
			return
		case <-r.Context().Done():
			return
		case <-sub.Changes():
			if sess.Controller().Closed() {
				_ = writeControl(conn, websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := writeSnapshot(conn, sess, sub); err != nil {
				log.Debug().Err(err).Msg("map session stream write failed")
				return
			}
		case <-ticker.C:
			// An open stream keeps the session from idling out.
			if _, err := h.sessions.Get(sess.ID()); err != nil {
				_ = writeControl(conn, websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session expired"))
				return
			}
			if err := writeControl(conn, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames and answers pongs until the connection fails.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeSnapshot sends the current state with the toasts sub has not seen.
func writeSnapshot(conn *websocket.Conn, sess *mapsync.Session, sub *mapsync.Subscription) error {
	toasts, camera := sub.Drain()
	state := models.NewMapSessionState(sess, sess.Controller().Snapshot(), toasts, camera)

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(state)
}

func writeControl(conn *websocket.Conn, messageType int, data []byte) error {
	return conn.WriteControl(messageType, data, time.Now().Add(wsWriteTimeout))
}
