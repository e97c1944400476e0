package handler

import (
	"net/http"
	"time"

	"gpustandby/internal/report"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamHandler pushes live failover event updates to dashboard clients.
type StreamHandler struct {
	*Handler
	hub *report.Hub
}

func NewStreamHandler(handler *Handler, hub *report.Hub) *StreamHandler {
	return &StreamHandler{
		Handler: handler,
		hub:     hub,
	}
}

// StreamFailovers godoc
// @Summary Websocket stream of failover event updates
// @Tags Failovers
// @Security Bearer
// @Router /api/v1/failovers/stream [get]
func (h *StreamHandler) StreamFailovers(ctx *gin.Context) {
	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		h.logger.WithContext(ctx).Error("websocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	events := h.hub.Subscribe()
	defer h.hub.Unsubscribe(events)

	// reader goroutine drains client frames and detects disconnect
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}
