package hub

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"procodus.dev/drip-monitor/pkg/auth"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Viewers connect from browser origins outside our control; access is
	// enforced by the verified principal, not the Origin header.
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS upgrades an authenticated request to a websocket connection and
// streams hub events to it until the client disconnects or falls behind.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sub := h.Subscribe(principal)

	go h.writePump(conn, sub)
	go h.readPump(conn, sub)
}

// writePump drains the subscriber's event stream onto the connection and
// keeps the connection alive with pings.
func (h *Hub) writePump(conn *websocket.Conn, sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case ev, ok := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub dropped or unsubscribed us.
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("websocket write failed", "principal_id", sub.principal.ID, "error", err)
				h.Unsubscribe(sub)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.Unsubscribe(sub)
				return
			}
		}
	}
}

// readPump consumes control frames and detects the client going away.
// Subscribers never send data frames; anything received is discarded.
func (h *Hub) readPump(conn *websocket.Conn, sub *Subscriber) {
	defer func() {
		h.Unsubscribe(sub)
		_ = conn.Close()
	}()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
