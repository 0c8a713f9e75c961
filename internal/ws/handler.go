package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// Handler streams one job's events. The job id comes from the :id route param.
func Handler(hub *Hub) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		jobID, err := uuid.Parse(c.Params("id"))
		if err != nil {
			writeError(c, uuid.Nil, "invalid job id")
			_ = c.Close()
			return
		}

		client := newClient(hub, c, jobID)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = hub.Watch(ctx, client)
		cancel()
		if err != nil {
			writeError(c, jobID, err.Error())
			_ = c.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}

func writeError(c *websocket.Conn, jobID uuid.UUID, message string) {
	payload, err := json.Marshal(Event{
		JobID:     jobID,
		Type:      EventError,
		Data:      fiber.Map{"message": message},
		Timestamp: time.Now(),
	})
	if err != nil {
		return
	}
	_ = c.WriteMessage(websocket.TextMessage, payload)
}

func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}
