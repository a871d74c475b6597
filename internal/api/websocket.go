package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Progress stream carries no credentials
	},
}

const (
	progressInterval = time.Second
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
)

// StreamBatch pushes the batch's progress record over a websocket until
// the batch reaches a terminal status. It supplements the pollable
// record; both views read the same row.
func (s *Server) StreamBatch(c *gin.Context) {
	workspaceID, ok := workspaceParam(c)
	if !ok {
		return
	}
	batchID := c.Param("id")
	if _, err := s.controller.Get(workspaceID, batchID); err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("failed to upgrade connection: %v", err)
		return
	}
	defer conn.Close()

	// Read pump: only consumes control frames so pongs and client
	// closes are noticed.
	done := make(chan struct{})
	conn.SetReadLimit(1024)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			record, err := s.controller.Get(workspaceID, batchID)
			if err != nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(record); err != nil {
				return
			}
			if record.Status.Terminal() {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(record.Status)),
					time.Now().Add(writeWait))
				return
			}
		}
	}
}
