package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"xray-go/internal/producer"
)

// ProducerHandler handles HTTP requests that trigger the producer.
type ProducerHandler struct {
	service *producer.Service
	logger  *slog.Logger
}

// NewProducerHandler creates a new producer handler.
func NewProducerHandler(service *producer.Service, logger *slog.Logger) *ProducerHandler {
	return &ProducerHandler{
		service: service,
		logger:  logger,
	}
}

// SendSample handles POST /producer/send-sample
// Publishes the fixed demonstration envelope.
func (h *ProducerHandler) SendSample(c *fiber.Ctx) error {
	if err := h.service.SendSample(c.Context()); err != nil {
		if errors.Is(err, producer.ErrDataProcessing) {
			return ValidationError(c, err.Error())
		}
		h.logger.Error("failed to send sample envelope", "error", err)
		return InternalError(c, "failed to send sample data")
	}

	return Success(c, map[string]string{
		"message": "sample data sent successfully",
	})
}

// SendRandom handles POST /producer/send-random and
// POST /producer/send-random/:deviceId
// Publishes a randomized envelope, generating a device id when none is
// given.
func (h *ProducerHandler) SendRandom(c *fiber.Ctx) error {
	deviceID, err := h.service.SendRandom(c.Context(), c.Params("deviceId"))
	if err != nil {
		if errors.Is(err, producer.ErrDataProcessing) {
			return ValidationError(c, err.Error())
		}
		h.logger.Error("failed to send random envelope", "error", err)
		return InternalError(c, "failed to send random data")
	}

	return Success(c, map[string]string{
		"message":  "random data sent successfully",
		"deviceId": deviceID,
	})
}
