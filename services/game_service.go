// services/game_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"geobets-core-service/middleware"
	"geobets-core-service/models"
	"geobets-core-service/protocol"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultCommitMinutes = 15
	defaultRevealMinutes = 30
	maxWindowMinutes     = 24 * 60

	// Cap on list endpoints to protect the backing store
	gameListCap = 200

	chainSubmitTimeout = 15 * time.Second
)

type GameService struct {
	DB    *gorm.DB
	Chain ChainGateway

	// Single clock source for every deadline decision; swapped in tests
	Now func() time.Time
}

func NewGameService(db *gorm.DB, chain ChainGateway) *GameService {
	return &GameService{DB: db, Chain: chain, Now: time.Now}
}

// CreateGame handles POST /games. The caller becomes the host; the solution
// comes from the image catalog mirror and never appears in the response.
func (s *GameService) CreateGame(c *fiber.Ctx) error {
	var req struct {
		ImageID       string `json:"image_id"`
		CommitMinutes int    `json:"commit_minutes"`
		RevealMinutes int    `json:"reveal_minutes"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "detail": "invalid request body"})
	}
	if req.ImageID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "detail": "image_id is required"})
	}

	game, err := s.Create(c.UserContext(), req.ImageID, middleware.PlayerAddress(c), req.CommitMinutes, req.RevealMinutes)
	if err != nil {
		return respondError(c, err)
	}

	// 202: recorded locally, ledger confirmation still outstanding
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"ref":             game.ID,
		"tx":              game.SubmitTx,
		"solution_commit": game.SolutionCommit,
		"commit_deadline": game.CommitDeadline,
		"reveal_deadline": game.RevealDeadline,
		"status":          game.Status,
	})
}

// Create mints the host secret, commits the solution and records the game
// optimistically before the chain call lands. A failed submission leaves the
// row behind marked failed — it is never silently dropped.
func (s *GameService) Create(ctx context.Context, imageID, host string, commitMinutes, revealMinutes int) (*models.Game, error) {
	if commitMinutes == 0 {
		commitMinutes = defaultCommitMinutes
	}
	if revealMinutes == 0 {
		revealMinutes = defaultRevealMinutes
	}
	if commitMinutes < 1 || revealMinutes > maxWindowMinutes || commitMinutes >= revealMinutes {
		return nil, fmt.Errorf("%w: windows must satisfy 1 <= commit < reveal <= %d minutes", ErrValidation, maxWindowMinutes)
	}

	var img models.ImageMirror
	if err := s.DB.First(&img, "id = ?", imageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrImageNotFound
		}
		return nil, err
	}

	secret, err := protocol.NewSalt()
	if err != nil {
		return nil, err
	}
	commit, err := protocol.Commit(int64(img.LatE6), int64(img.LonE6), secret)
	if err != nil {
		return nil, err
	}

	now := s.Now().UTC().Unix()
	game := &models.Game{
		ID:             uuid.NewString(),
		ImageID:        img.ID,
		HostAddress:    host,
		SolutionCommit: protocol.FormatHex32(commit),
		Secret:         protocol.FormatHex32(secret),
		SolutionLatE6:  img.LatE6,
		SolutionLonE6:  img.LonE6,
		CommitDeadline: now + int64(commitMinutes)*60,
		RevealDeadline: now + int64(revealMinutes)*60,
		Status:         models.GameStatusPending,
	}

	if err := s.DB.Create(game).Error; err != nil {
		return nil, err
	}

	submitCtx, cancel := context.WithTimeout(ctx, chainSubmitTimeout)
	defer cancel()
	tx, err := s.Chain.Submit(submitCtx, ChainInstruction{
		Kind:           InstructionCreateGame,
		SolutionCommit: game.SolutionCommit,
		CommitDeadline: game.CommitDeadline,
		RevealDeadline: game.RevealDeadline,
	})
	if err != nil {
		// Compensating action: flag the pending row so ops can retry or void it
		if dbErr := s.DB.Model(game).Update("status", models.GameStatusFailed).Error; dbErr != nil {
			log.Printf("❌ failed to mark game %s failed after submit error: %v", game.ID, dbErr)
		}
		if errors.Is(err, ErrLedgerTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: create_game for ref %s", ErrLedgerTimeout, game.ID)
		}
		return nil, err
	}

	if err := s.DB.Model(game).Update("submit_tx", tx).Error; err != nil {
		// The ledger has the tx but we lost the ref. Without submit_tx the
		// reconciler can never match this row, so fail it instead of leaving
		// it stranded pending.
		if dbErr := s.DB.Model(game).Update("status", models.GameStatusFailed).Error; dbErr != nil {
			log.Printf("❌ failed to mark game %s failed after losing tx ref %s: %v", game.ID, tx, dbErr)
		}
		return nil, err
	}
	game.SubmitTx = tx
	return game, nil
}

// ConfirmGame handles POST /games/:ref/confirm — the manual path for binding
// a ledger-assigned id when the reconcile worker is behind or disabled.
func (s *GameService) ConfirmGame(c *fiber.Ctx) error {
	var req struct {
		GameID *int64 `json:"game_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.GameID == nil || *req.GameID < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "detail": "non-negative game_id is required"})
	}

	game, err := s.Confirm(c.Params("ref"), *req.GameID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(game.Public())
}

// Confirm binds the ledger-assigned chain id to a pending game, exactly once.
// The chain_id IS NULL guard plus the unique index make the bind atomic: a
// re-delivered confirmation or a competing worker sees duplicate_game.
func (s *GameService) Confirm(refID string, chainID int64) (*models.Game, error) {
	res := s.DB.Model(&models.Game{}).
		Where("id = ? AND chain_id IS NULL AND status = ?", refID, models.GameStatusPending).
		Updates(map[string]interface{}{
			"chain_id": chainID,
			"status":   models.GameStatusConfirmed,
		})
	if res.Error != nil {
		if isDuplicateKey(res.Error) {
			return nil, ErrDuplicateGame
		}
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var game models.Game
		if err := s.DB.First(&game, "id = ?", refID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrGameNotFound
			}
			return nil, err
		}
		// Row exists but was not bindable: already confirmed or failed
		return nil, ErrDuplicateGame
	}

	var game models.Game
	if err := s.DB.First(&game, "id = ?", refID).Error; err != nil {
		return nil, err
	}
	log.Printf("✅ Game %s confirmed as on-chain game %d", refID, chainID)
	return &game, nil
}

// ListOpenGames handles GET /games?image_id= — confirmed games still in their
// commit window, as public views. Ordering is unspecified.
func (s *GameService) ListOpenGames(c *fiber.Ctx) error {
	now := s.Now().UTC().Unix()

	q := s.DB.Where("status = ? AND commit_deadline > ?", models.GameStatusConfirmed, now)
	if imageID := c.Query("image_id"); imageID != "" {
		q = q.Where("image_id = ?", imageID)
	}

	var games []models.Game
	if err := q.Limit(gameListCap).Find(&games).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch games"})
	}

	views := make([]models.PublicGame, 0, len(games))
	for i := range games {
		views = append(views, games[i].Public())
	}
	return c.JSON(fiber.Map{"games": views})
}

// GetGame handles GET /games/:id (chain id).
func (s *GameService) GetGame(c *fiber.Ctx) error {
	chainID, err := c.ParamsInt("id")
	if err != nil || chainID < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "detail": "game id must be a non-negative integer"})
	}

	var game models.Game
	if err := s.DB.First(&game, "chain_id = ?", int64(chainID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": ErrGameNotFound.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}
	return c.JSON(game.Public())
}

// RevealSolution handles POST /games/:id/solution. Host-only: the secret is
// custody of the registry until the reveal window has closed.
func (s *GameService) RevealSolution(c *fiber.Ctx) error {
	chainID, err := c.ParamsInt("id")
	if err != nil || chainID < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "detail": "game id must be a non-negative integer"})
	}

	game, err := s.Solution(int64(chainID), s.Now().UTC().Unix())
	if err != nil {
		return respondError(c, err)
	}
	if game.HostAddress != middleware.PlayerAddress(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}

	return c.JSON(fiber.Map{
		"game_id": game.ChainID,
		"secret":  game.Secret,
		"lat_e6":  game.SolutionLatE6,
		"lon_e6":  game.SolutionLonE6,
	})
}

// Solution returns the full game record once it is settleable and unsettled.
func (s *GameService) Solution(chainID int64, now int64) (*models.Game, error) {
	var game models.Game
	if err := s.DB.First(&game, "chain_id = ?", chainID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	if game.SettledAt != nil {
		return nil, ErrAlreadySettled
	}

	phase, err := protocol.PhaseAt(now, game.CommitDeadline, game.RevealDeadline)
	if err != nil {
		return nil, fmt.Errorf("game %d: %w", chainID, err)
	}
	if phase != protocol.PhaseSettleable {
		return nil, ErrTooEarly
	}
	return &game, nil
}

// MarkFailed flags a pending game whose chain tx the ledger rejected.
func (s *GameService) MarkFailed(refID string) error {
	return s.DB.Model(&models.Game{}).
		Where("id = ? AND status = ?", refID, models.GameStatusPending).
		Update("status", models.GameStatusFailed).Error
}
