// services/bet_service.go
package services

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"geobets-core-service/middleware"
	"geobets-core-service/models"
	"geobets-core-service/protocol"
	"geobets-core-service/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Cap on bet listings to protect the backing store
const betListCap = 200

// E6-encoded coordinate bounds
const (
	maxLatE6 = 90_000_000
	maxLonE6 = 180_000_000
)

type BetService struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewBetService(db *gorm.DB) *BetService {
	return &BetService{DB: db, Now: time.Now}
}

// betView is a Bet plus its derived lifecycle status.
type betView struct {
	models.Bet
	Status string `json:"status"`
}

// PlaceBet handles POST /bets: a blind commitment plus stake, accepted only
// while the game's commit window is open. The plaintext guess never travels
// at this phase — the commitment is checked for shape, not re-derived.
func (s *BetService) PlaceBet(c *fiber.Ctx) error {
	var req struct {
		GameID   *int64 `json:"game_id"`
		Player   string `json:"player"`
		Amount   int64  `json:"amount"`
		Commit   string `json:"commit"`
		CommitTx string `json:"commit_tx"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "detail": "invalid request body"})
	}

	// Everything here is rejected before touching stored state
	if req.GameID == nil || *req.GameID < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "detail": "non-negative game_id is required"})
	}
	if !utils.IsHexAddress(req.Player) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "detail": "player must be a wallet address"})
	}
	if utils.NormalizeAddress(req.Player) != middleware.PlayerAddress(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}
	if req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "detail": "amount must be positive"})
	}
	if _, err := protocol.ParseHex32(req.Commit); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "detail": "commit must be a 0x-prefixed 32-byte hex value"})
	}

	bet, err := s.Place(*req.GameID, utils.NormalizeAddress(req.Player), req.Amount, req.Commit, req.CommitTx)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(betView{Bet: *bet, Status: bet.Status()})
}

// Place inserts the bet if absent. The unique (game_id, player) index plus
// OnConflict DoNothing is the atomic insert-if-absent: of two concurrent
// calls exactly one creates the row, the other reports duplicate_bet.
func (s *BetService) Place(gameID int64, player string, amount int64, commitHex, commitTx string) (*models.Bet, error) {
	game, err := s.confirmedGame(gameID)
	if err != nil {
		return nil, err
	}

	phase, err := protocol.PhaseAt(s.Now().UTC().Unix(), game.CommitDeadline, game.RevealDeadline)
	if err != nil {
		return nil, fmt.Errorf("game %d: %w", gameID, err)
	}
	if phase != protocol.PhaseCommitting {
		return nil, ErrWindowClosed
	}

	bet := &models.Bet{
		ID:       models.BetKey(gameID, player),
		GameID:   gameID,
		Player:   player,
		Amount:   amount,
		Commit:   commitHex,
		CommitTx: commitTx,
	}
	res := s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(bet)
	if res.Error != nil {
		if isDuplicateKey(res.Error) {
			return nil, ErrDuplicateBet
		}
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrDuplicateBet
	}
	return bet, nil
}

// RevealBet handles PATCH /bets: plaintext (lat, lon, salt) matched against
// the stored commitment during the reveal window.
func (s *BetService) RevealBet(c *fiber.Ctx) error {
	var req struct {
		GameID   *int64 `json:"game_id"`
		Player   string `json:"player"`
		LatE6    *int64 `json:"lat_e6"`
		LonE6    *int64 `json:"lon_e6"`
		Salt     string `json:"salt"`
		RevealTx string `json:"reveal_tx"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "detail": "invalid request body"})
	}

	if req.GameID == nil || *req.GameID < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "detail": "non-negative game_id is required"})
	}
	if !utils.IsHexAddress(req.Player) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "detail": "player must be a wallet address"})
	}
	if utils.NormalizeAddress(req.Player) != middleware.PlayerAddress(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}
	if req.LatE6 == nil || req.LonE6 == nil ||
		*req.LatE6 < -maxLatE6 || *req.LatE6 > maxLatE6 ||
		*req.LonE6 < -maxLonE6 || *req.LonE6 > maxLonE6 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "detail": "lat_e6/lon_e6 out of range"})
	}
	salt, err := protocol.ParseHex32(req.Salt)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "detail": "salt must be a 0x-prefixed 32-byte hex value"})
	}

	bet, err := s.Reveal(*req.GameID, utils.NormalizeAddress(req.Player), *req.LatE6, *req.LonE6, salt, req.RevealTx)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(betView{Bet: *bet, Status: bet.Status()})
}

// Reveal validates the plaintext against the stored commitment and sets the
// revealed location exactly once. A mismatch leaves the row byte-for-byte
// untouched; a duplicated retry of a successful reveal sees already_revealed.
func (s *BetService) Reveal(gameID int64, player string, latE6, lonE6 int64, salt [protocol.HashLen]byte, revealTx string) (*models.Bet, error) {
	game, err := s.confirmedGame(gameID)
	if err != nil {
		return nil, err
	}

	phase, err := protocol.PhaseAt(s.Now().UTC().Unix(), game.CommitDeadline, game.RevealDeadline)
	if err != nil {
		return nil, fmt.Errorf("game %d: %w", gameID, err)
	}
	if phase != protocol.PhaseRevealing {
		return nil, ErrWindowClosed
	}

	var bet models.Bet
	if err := s.DB.First(&bet, "game_id = ? AND player = ?", gameID, player).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBetNotFound
		}
		return nil, err
	}
	if bet.RevealedLatE6 != nil {
		return nil, ErrAlreadyRevealed
	}

	stored, err := protocol.ParseHex32(bet.Commit)
	if err != nil {
		// Stored commitment should always be well-formed; treat as corruption
		return nil, fmt.Errorf("corrupt commitment on bet %s: %w", bet.ID, err)
	}
	if !protocol.Verify(latE6, lonE6, salt, stored) {
		return nil, ErrCommitmentMismatch
	}

	updates := map[string]interface{}{
		"revealed_lat_e6": int32(latE6),
		"revealed_lon_e6": int32(lonE6),
	}
	if revealTx != "" {
		updates["reveal_tx"] = revealTx
	}

	// Compare-and-set on the reveal flag: RowsAffected 0 means another
	// delivery of the same reveal got there first.
	res := s.DB.Model(&models.Bet{}).
		Where("game_id = ? AND player = ? AND revealed_lat_e6 IS NULL", gameID, player).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyRevealed
	}

	if err := s.DB.First(&bet, "game_id = ? AND player = ?", gameID, player).Error; err != nil {
		return nil, err
	}
	return &bet, nil
}

// ListBets handles GET /bets?player=&game= — filterable, capped at betListCap.
func (s *BetService) ListBets(c *fiber.Ctx) error {
	q := s.DB.Limit(betListCap)

	if player := c.Query("player"); player != "" {
		if !utils.IsHexAddress(player) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "detail": "player must be a wallet address"})
		}
		q = q.Where("player = ?", utils.NormalizeAddress(player))
	}
	if gameParam := c.Query("game"); gameParam != "" {
		gameID, err := strconv.ParseInt(gameParam, 10, 64)
		if err != nil || gameID < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "detail": "game must be a non-negative integer"})
		}
		q = q.Where("game_id = ?", gameID)
	}

	var bets []models.Bet
	if err := q.Find(&bets).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch bets"})
	}

	views := make([]betView, 0, len(bets))
	for i := range bets {
		views = append(views, betView{Bet: bets[i], Status: bets[i].Status()})
	}
	return c.JSON(fiber.Map{"bets": views})
}

func (s *BetService) confirmedGame(gameID int64) (*models.Game, error) {
	var game models.Game
	if err := s.DB.First(&game, "chain_id = ? AND status = ?", gameID, models.GameStatusConfirmed).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	return &game, nil
}
