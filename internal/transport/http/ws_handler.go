package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"team-quiz-service/internal/app"
	"team-quiz-service/internal/domain"
)

// StateMessage is the envelope for every frame on the push channel. Each
// payload is a complete snapshot, so a lost frame is healed by the next one.
type StateMessage struct {
	Type    string               `json:"type"`
	Payload domain.StateSnapshot `json:"payload"`
}

// WSHandler upgrades connections onto the push channel and streams
// snapshots, starting with the current one.
type WSHandler struct {
	service  *app.Service
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.Service, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	// The subscription delivers the current snapshot first, so a fresh or
	// reconnecting client observes correct state without waiting for the
	// next mutation.
	updates, cancel := h.service.Subscribe()
	defer cancel()

	readerDone := make(chan struct{})
	go func() {
		// Clients only send keepalives; reading until error detects the drop.
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(StateMessage{Type: "state", Payload: snap}); err != nil {
				h.log.Debug().Err(err).Msg("ws write failed, dropping connection")
				return
			}
		case <-readerDone:
			return
		}
	}
}
