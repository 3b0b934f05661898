package api

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"xray-go/internal/domain"
	"xray-go/internal/store"
)

// SignalHandler handles HTTP requests for signal CRUD operations.
// These are administrative endpoints over the persisted records; the
// ingestion pipeline itself only ever creates signals through the
// processor.
type SignalHandler struct {
	repo   store.SignalRepository
	logger *slog.Logger
}

// NewSignalHandler creates a new signal handler.
func NewSignalHandler(repo store.SignalRepository, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{
		repo:   repo,
		logger: logger,
	}
}

// Create handles POST /signals
// Creates a signal record directly, bypassing the queue.
func (h *SignalHandler) Create(c *fiber.Ctx) error {
	var signal domain.Signal
	if err := c.BodyParser(&signal); err != nil {
		h.logger.Debug("failed to parse signal body", "error", err)
		return BadRequest(c, "invalid request body")
	}

	if err := signal.Validate(); err != nil {
		h.logger.Debug("signal validation failed", "error", err)
		return ValidationError(c, err.Error())
	}

	if err := h.repo.Create(c.Context(), &signal); err != nil {
		if errors.Is(err, domain.ErrDuplicateSignal) {
			return Conflict(c, "signal already exists for device and timestamp")
		}
		h.logger.Error("failed to create signal", "error", err)
		return InternalError(c, "failed to create signal")
	}

	return Created(c, signal)
}

// List handles GET /signals
// Returns signals matching query parameters.
func (h *SignalHandler) List(c *fiber.Ctx) error {
	filter := domain.SignalFilter{
		DeviceID: c.Query("deviceId"),
	}

	if limit := c.Query("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			filter.Limit = l
		}
	}
	if offset := c.Query("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil && o >= 0 {
			filter.Offset = o
		}
	}

	// Default limit if not specified
	if filter.Limit == 0 {
		filter.Limit = 100
	}

	signals, err := h.repo.List(c.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list signals", "error", err)
		return InternalError(c, "failed to list signals")
	}

	return Success(c, signals)
}

// GetByDeviceID handles GET /signals/device/:deviceId
// Returns all signals recorded for a device.
func (h *SignalHandler) GetByDeviceID(c *fiber.Ctx) error {
	deviceID := c.Params("deviceId")
	if deviceID == "" {
		return BadRequest(c, "deviceId is required")
	}

	signals, err := h.repo.GetByDeviceID(c.Context(), deviceID)
	if err != nil {
		h.logger.Error("failed to get signals by device", "deviceId", deviceID, "error", err)
		return InternalError(c, "failed to get signals")
	}

	return Success(c, signals)
}

// GetByID handles GET /signals/:id
// Returns a single signal by its storage identifier.
func (h *SignalHandler) GetByID(c *fiber.Ctx) error {
	id := c.Params("id")

	signal, err := h.repo.GetByID(c.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrSignalNotFound) {
			return NotFound(c, "signal not found")
		}
		h.logger.Error("failed to get signal", "id", id, "error", err)
		return InternalError(c, "failed to get signal")
	}

	return Success(c, signal)
}

// Update handles PATCH /signals/:id
// Applies a partial update to a signal.
func (h *SignalHandler) Update(c *fiber.Ctx) error {
	id := c.Params("id")

	var update domain.SignalUpdate
	if err := c.BodyParser(&update); err != nil {
		h.logger.Debug("failed to parse update body", "error", err)
		return BadRequest(c, "invalid request body")
	}

	signal, err := h.repo.Update(c.Context(), id, &update)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSignalNotFound):
			return NotFound(c, "signal not found")
		case errors.Is(err, domain.ErrDuplicateSignal):
			return Conflict(c, "signal already exists for device and timestamp")
		case domain.IsValidationError(err):
			return ValidationError(c, err.Error())
		default:
			h.logger.Error("failed to update signal", "id", id, "error", err)
			return InternalError(c, "failed to update signal")
		}
	}

	return Success(c, signal)
}

// Delete handles DELETE /signals/:id
// Removes a signal and returns the removed record.
func (h *SignalHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")

	signal, err := h.repo.Delete(c.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrSignalNotFound) {
			return NotFound(c, "signal not found")
		}
		h.logger.Error("failed to delete signal", "id", id, "error", err)
		return InternalError(c, "failed to delete signal")
	}

	return Success(c, signal)
}
