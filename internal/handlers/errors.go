package handlers

import (
	"errors"

	"storefront/internal/repositories"
	"storefront/internal/services"

	"github.com/gofiber/fiber/v2"
)

// statusForError maps a domain error kind to an HTTP status code. All
// failures reach the client as explicit JSON messages; nothing no-ops.
func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrInvalidAssignee):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrUnauthorized),
		errors.Is(err, services.ErrNotAssignedToYou):
		return fiber.StatusForbidden
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrInsufficientStock),
		errors.Is(err, repositories.ErrConflict):
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

// errorJSON renders a typed failure with a human-readable message.
func errorJSON(c *fiber.Ctx, message string, err error) error {
	return c.Status(statusForError(err)).JSON(fiber.Map{
		"message": message,
		"error":   err.Error(),
	})
}
