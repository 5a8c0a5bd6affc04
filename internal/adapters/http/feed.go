package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/voicenet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// feed streams session snapshots to the client until either side closes.
// The client never sends anything besides pongs and close frames.
func (h *handlers) feed(c *gin.Context) {
	o, ok := h.orchestrator(c)
	if !ok {
		return
	}
	client := string(clientOf(c))
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("client", client).Msg("feed upgrade")
		return
	}
	defer conn.Close()

	updates, stop := o.Watch()
	defer stop()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pongWait := h.pingPeriod * 10 / 9
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Info().Str("module", "adapters.http").Str("client", client).Msg("feed open")
	h.writeFeed(ctx, conn, updates)
	log.Info().Str("module", "adapters.http").Str("client", client).Msg("feed closed")
}

func (h *handlers) writeFeed(ctx context.Context, conn *websocket.Conn, updates <-chan domain.Session) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(writeWait))
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(viewOf(s)); err != nil {
				log.Debug().Err(err).Str("module", "adapters.http").Msg("feed write")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
