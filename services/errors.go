// services/errors.go
package services

import (
	"errors"
	"log"
	"strings"

	"geobets-core-service/protocol"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Sentinel errors double as the machine-readable codes on the wire.
var (
	ErrValidation         = errors.New("validation_error")
	ErrImageNotFound      = errors.New("image_not_found")
	ErrGameNotFound       = errors.New("game_not_found")
	ErrBetNotFound        = errors.New("bet_not_found")
	ErrDuplicateGame      = errors.New("duplicate_game")
	ErrDuplicateBet       = errors.New("duplicate_bet")
	ErrAlreadyRevealed    = errors.New("already_revealed")
	ErrAlreadySettled     = errors.New("already_settled")
	ErrCommitmentMismatch = errors.New("commitment_mismatch")
	ErrWindowClosed       = errors.New("window_closed")
	ErrTooEarly           = errors.New("too_early")
	ErrLedgerTimeout      = errors.New("ledger_timeout")
)

// respondError maps a service error onto the HTTP surface. Anything not in
// the taxonomy is logged and collapsed to a 500 so internals never leak.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, protocol.ErrCoordinateRange):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "detail": err.Error()})
	case errors.Is(err, ErrImageNotFound), errors.Is(err, ErrGameNotFound), errors.Is(err, ErrBetNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrDuplicateGame), errors.Is(err, ErrDuplicateBet),
		errors.Is(err, ErrAlreadyRevealed), errors.Is(err, ErrAlreadySettled),
		errors.Is(err, ErrWindowClosed), errors.Is(err, ErrTooEarly):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrCommitmentMismatch):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": ErrCommitmentMismatch.Error()})
	case errors.Is(err, ErrLedgerTimeout):
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": ErrLedgerTimeout.Error()})
	case errors.Is(err, protocol.ErrCorruptDeadlines):
		// Invariant violation in a stored record — report, never repair.
		log.Printf("🛑 corrupt game record: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "corrupt_game_record"})
	default:
		log.Printf("❌ internal error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}
}

// isDuplicateKey recognizes unique-index violations across postgres and the
// sqlite driver used in tests.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}
