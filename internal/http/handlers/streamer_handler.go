package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/tipjar/broker/internal/http/dto"
	"github.com/tipjar/broker/internal/middleware"
	"github.com/tipjar/broker/internal/models"
	"github.com/tipjar/broker/internal/services"
	"go.uber.org/zap"
)

// StreamerHandler is the read-only HTTP view of the directory. It never
// exposes more than the public projection.
type StreamerHandler struct {
	directory *services.Directory
	log       *zap.Logger
}

func NewStreamerHandler(directory *services.Directory, log *zap.Logger) *StreamerHandler {
	return &StreamerHandler{directory: directory, log: log}
}

func (h *StreamerHandler) ListOnline(c *fiber.Ctx) error {
	list := make([]models.PublicProfile, 0)
	for p, err := range h.directory.ListOnline(c.UserContext()) {
		if err != nil {
			h.log.Error("list online streamers failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
				Error:     "internal error",
				RequestID: middleware.GetRequestID(c),
			})
		}
		list = append(list, p)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: list})
}

func (h *StreamerHandler) GetStreamer(c *fiber.Ctx) error {
	userName := c.Params("userName")
	if userName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "userName is required"})
	}

	p, err := h.directory.FindByUserName(c.UserContext(), userName)
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "streamer not found"})
	}
	if err != nil {
		h.log.Error("get streamer failed", zap.String("user_name", userName), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error:     "internal error",
			RequestID: middleware.GetRequestID(c),
		})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: p.Public()})
}
