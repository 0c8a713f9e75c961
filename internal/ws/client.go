package ws

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const clientBuffer = 64

type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	jobID uuid.UUID
	send  chan []byte
}

func newClient(hub *Hub, conn *websocket.Conn, jobID uuid.UUID) *Client {
	return &Client{
		hub:   hub,
		conn:  conn,
		jobID: jobID,
		send:  make(chan []byte, clientBuffer),
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

// WritePump sends queued messages and closes the connection once the hub
// closes the send channel.
func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.conn.Close()
	}()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}
