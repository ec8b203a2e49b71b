package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tipjar/broker/internal/http/dto"
)

type HealthHandler struct {
	connections interface{ Len() int }
	handshakes  interface{ Pending() int }
}

func NewHealthHandler(connections interface{ Len() int }, handshakes interface{ Pending() int }) *HealthHandler {
	return &HealthHandler{connections: connections, handshakes: handshakes}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(dto.HealthResponse{
		Status:      "ok",
		Connections: h.connections.Len(),
		Pending:     h.handshakes.Pending(),
	})
}
