package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/vitalforms/collab-backend/internal/collab"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
)

// client pairs one websocket connection with its collaboration session and
// runs the read/write pumps for the connection's lifetime.
type client struct {
	conn    *websocket.Conn
	session *collab.Session
	service *collab.Service
	logger  *zap.Logger
}

func (h *httpHandler) handleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := h.collab.Connect()
	editor := &client{
		conn:    conn,
		session: session,
		service: h.collab,
		logger:  h.logger,
	}

	go editor.writePump()
	editor.readPump()
}

// readPump feeds inbound frames to the collaboration service until the
// connection closes, then tears the session down. Disconnect releases the
// session's locks and membership, so transport closure is the only cleanup
// trigger the protocol relies on.
func (c *client) readPump() {
	defer func() {
		c.service.Disconnect(c.session)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read failed",
					zap.String("session", c.session.ID()), zap.Error(err))
			}
			return
		}
		c.service.HandleMessage(c.session, frame)
	}
}

// writePump drains the session's outbound events to the peer and keeps the
// connection alive with pings. It exits when the session's channel closes or
// a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, open := <-c.session.Outbound():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
