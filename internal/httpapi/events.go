package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	eventsWriteTimeout = 10 * time.Second
	eventsPingInterval = 30 * time.Second
)

var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	// Browsers authenticate with ?access_token=; origin checks live at the edge proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// CallEvents streams the caller's session events over a websocket.
// The first frame is the current state so clients never start blind.
func (h Handlers) CallEvents(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	conn, err := eventsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger(c).Debug("events upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	events, cancel := m.Subscribe()
	defer cancel()

	// Drain client frames; a read error means the client is gone.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
		return conn.WriteJSON(v)
	}

	if err := write(gin.H{"type": "state", "state": m.State()}); err != nil {
		return
	}

	ping := time.NewTicker(eventsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventsWriteTimeout)); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session manager closed"),
					time.Now().Add(eventsWriteTimeout))
				return
			}
			if err := write(ev); err != nil {
				return
			}
		}
	}
}
