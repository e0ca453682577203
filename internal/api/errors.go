package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/ledger"
)

// statusFor maps the engine's error classes to HTTP status codes.
func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, ledger.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, ledger.ErrAccountNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ledger.ErrOutOfOrder):
		return fiber.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrLockTimeout):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func writeError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	body := fiber.Map{"error": ledger.Classify(err), "message": err.Error()}

	var (
		fe  *fiber.Error
		ve  *ledger.ValidationError
		ooo *ledger.OutOfOrderError
		ibe *ledger.InsufficientBalanceError
	)
	switch {
	case errors.As(err, &fe):
		body["error"] = "http"
	case errors.As(err, &ve):
		body["field"] = ve.Field
	case errors.As(err, &ooo):
		body["expected_sequence"] = ooo.Expected
	case errors.As(err, &ibe):
		body["balance"] = ibe.Balance
	}
	if status == fiber.StatusInternalServerError {
		// Internal details stay in the log.
		body["message"] = "internal error"
	}
	if status == fiber.StatusServiceUnavailable {
		c.Set(fiber.HeaderRetryAfter, "1")
	}
	return c.Status(status).JSON(body)
}
