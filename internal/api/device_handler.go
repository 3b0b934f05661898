package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"xray-go/internal/store"
)

// DeviceHandler serves the per-device ingestion state.
type DeviceHandler struct {
	devices store.DeviceStateStore
	logger  *slog.Logger
}

// NewDeviceHandler creates a new device handler.
func NewDeviceHandler(devices store.DeviceStateStore, logger *slog.Logger) *DeviceHandler {
	return &DeviceHandler{
		devices: devices,
		logger:  logger,
	}
}

// List handles GET /devices
// Returns the ingestion state of every known device.
func (h *DeviceHandler) List(c *fiber.Ctx) error {
	states, err := h.devices.List(c.Context())
	if err != nil {
		h.logger.Error("failed to list devices", "error", err)
		return InternalError(c, "failed to list devices")
	}

	return Success(c, states)
}

// Get handles GET /devices/:deviceId
// Returns the ingestion state of one device.
func (h *DeviceHandler) Get(c *fiber.Ctx) error {
	deviceID := c.Params("deviceId")

	state, err := h.devices.Get(c.Context(), deviceID)
	if err != nil {
		h.logger.Error("failed to get device state", "deviceId", deviceID, "error", err)
		return InternalError(c, "failed to get device state")
	}
	if state == nil {
		return NotFound(c, "device not found")
	}

	return Success(c, state)
}
