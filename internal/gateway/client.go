package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hyeonwoo/partyroom-backend/internal"
)

const (
	sendBufferSize = 64
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // drawing payloads are data URLs
)

type client struct {
	id   string
	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	room string // guarded by hub.mu

	mu     sync.Mutex
	closed bool
}

// enqueue hands a marshaled frame to the write pump. A client that cannot
// keep up loses the frame; delivery is at most once per hop. The closed
// flag is checked under the same mutex close holds while closing the
// channel, so a broadcast racing a forced disconnect can never send on
// the closed channel.
func (c *client) enqueue(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		log.Warn().Str("conn", c.id).Msg("send buffer full, dropping frame")
	}
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	c.conn.Close()
}

// readPump parses inbound envelopes and hands them to the dispatcher.
// When the loop exits, for any reason, the disconnect notification fires
// exactly once and the hub forgets the connection.
func (c *client) readPump(handler EventHandler) {
	defer func() {
		handler.HandleDisconnect(c.id)
		c.hub.remove(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Str("conn", c.id).Err(err).Msg("read error")
			}
			return
		}

		var msg internal.Message[json.RawMessage]
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn().Str("conn", c.id).Err(err).Msg("malformed envelope")
			continue
		}
		handler.HandleEvent(c.id, msg.Type, msg.Data)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
