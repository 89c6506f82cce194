// services/settlement_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"geobets-core-service/models"
	"geobets-core-service/protocol"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SettlementService struct {
	DB    *gorm.DB
	Chain ChainGateway
	Now   func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewSettlementService(db *gorm.DB, chain ChainGateway) *SettlementService {
	return &SettlementService{
		DB:    db,
		Chain: chain,
		Now:   time.Now,
		locks: make(map[int64]*sync.Mutex),
	}
}

// gameLock serializes settlement per game id.
func (s *SettlementService) gameLock(gameID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[gameID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[gameID] = lock
	}
	return lock
}

// dropLock evicts the per-game mutex once settlement is terminal, so the map
// does not grow with every game ever settled. Late waiters still holding the
// old mutex fall through to the settled_at guard — correctness never depends
// on the map entry.
func (s *SettlementService) dropLock(gameID int64) {
	s.mu.Lock()
	delete(s.locks, gameID)
	s.mu.Unlock()
}

// SettleGame handles POST /games/:id/settle.
func (s *SettlementService) SettleGame(c *fiber.Ctx) error {
	chainID, err := c.ParamsInt("id")
	if err != nil || chainID < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "detail": "game id must be a non-negative integer"})
	}

	shares, err := s.Settle(c.UserContext(), int64(chainID))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"game_id": chainID, "shares": shares})
}

// Settle computes and records payouts for one game, at most once. The
// settled_at compare-and-set is the authority: of any number of concurrent
// attempts, exactly one claims the game and emits payout rows. The settle
// instruction is submitted after local state is recorded; a failed submission
// marks the payout batch failed for the reconciler to retry — shares are
// never recomputed.
func (s *SettlementService) Settle(ctx context.Context, gameID int64) ([]protocol.PayoutShare, error) {
	lock := s.gameLock(gameID)
	lock.Lock()
	defer lock.Unlock()

	var game models.Game
	if err := s.DB.First(&game, "chain_id = ? AND status = ?", gameID, models.GameStatusConfirmed).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	if game.SettledAt != nil {
		s.dropLock(gameID)
		return nil, ErrAlreadySettled
	}

	now := s.Now().UTC()
	phase, err := protocol.PhaseAt(now.Unix(), game.CommitDeadline, game.RevealDeadline)
	if err != nil {
		return nil, fmt.Errorf("game %d: %w", gameID, err)
	}
	if phase != protocol.PhaseSettleable {
		return nil, ErrTooEarly
	}

	// Only revealed bets enter the pool. Committed-but-unrevealed stakes are
	// forfeited outright: no share, no refund from this service.
	var revealed []models.Bet
	if err := s.DB.Where("game_id = ? AND revealed_lat_e6 IS NOT NULL", gameID).Find(&revealed).Error; err != nil {
		return nil, err
	}

	entries := make([]protocol.ShareEntry, 0, len(revealed))
	for _, b := range revealed {
		entries = append(entries, protocol.ShareEntry{
			Player: b.Player,
			Stake:  b.Amount,
			DistanceMeters: protocol.DistanceMeters(
				*b.RevealedLatE6, *b.RevealedLonE6,
				game.SolutionLatE6, game.SolutionLonE6,
			),
		})
	}
	shares := protocol.ComputeShares(entries)

	// Claim the game before emitting anything
	res := s.DB.Model(&models.Game{}).
		Where("chain_id = ? AND settled_at IS NULL", gameID).
		Update("settled_at", now)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		s.dropLock(gameID)
		return nil, ErrAlreadySettled
	}
	defer s.dropLock(gameID)

	var payouts []models.SettlementPayout
	for _, sh := range shares {
		if sh.Share == 0 {
			continue
		}
		payouts = append(payouts, models.SettlementPayout{
			ID:     uuid.NewString(),
			GameID: gameID,
			Player: sh.Player,
			Share:  sh.Share,
			Status: models.PayoutStatusPending,
		})
	}
	if len(payouts) == 0 {
		log.Printf("✅ Game %d settled with no revealed bets — nothing to pay out", gameID)
		return shares, nil
	}
	if err := s.DB.Create(&payouts).Error; err != nil {
		return nil, err
	}

	if err := s.SubmitPayouts(ctx, gameID); err != nil {
		// Local state is settled either way; the reconciler retries the batch
		log.Printf("⚠️ Game %d settled locally but payout submission failed: %v", gameID, err)
		return shares, err
	}

	log.Printf("✅ Game %d settled: %d payout(s) submitted", gameID, len(payouts))
	return shares, nil
}

// SubmitPayouts sends one settle instruction covering every unsubmitted
// payout row of a game, then marks the batch. Called by Settle and re-called
// by the reconcile worker for batches stuck pending or failed.
func (s *SettlementService) SubmitPayouts(ctx context.Context, gameID int64) error {
	var payouts []models.SettlementPayout
	if err := s.DB.Where("game_id = ? AND status IN ?", gameID,
		[]string{models.PayoutStatusPending, models.PayoutStatusFailed}).Find(&payouts).Error; err != nil {
		return err
	}
	if len(payouts) == 0 {
		return nil
	}

	players := make([]string, 0, len(payouts))
	amounts := make([]int64, 0, len(payouts))
	for _, p := range payouts {
		players = append(players, p.Player)
		amounts = append(amounts, p.Share)
	}

	submitCtx, cancel := context.WithTimeout(ctx, chainSubmitTimeout)
	defer cancel()
	tx, err := s.Chain.Submit(submitCtx, ChainInstruction{
		Kind:    InstructionSettle,
		GameID:  &gameID,
		Players: players,
		Shares:  amounts,
	})
	if err != nil {
		if dbErr := s.DB.Model(&models.SettlementPayout{}).
			Where("game_id = ? AND status = ?", gameID, models.PayoutStatusPending).
			Update("status", models.PayoutStatusFailed).Error; dbErr != nil {
			log.Printf("❌ failed to mark payouts failed for game %d: %v", gameID, dbErr)
		}
		if errors.Is(err, ErrLedgerTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: settle for game %d", ErrLedgerTimeout, gameID)
		}
		return err
	}

	return s.DB.Model(&models.SettlementPayout{}).
		Where("game_id = ? AND status IN ?", gameID,
			[]string{models.PayoutStatusPending, models.PayoutStatusFailed}).
		Updates(map[string]interface{}{
			"status":    models.PayoutStatusSubmitted,
			"payout_tx": tx,
		}).Error
}

// ListPayouts handles GET /games/:id/payouts — the audit trail of a settled game.
func (s *SettlementService) ListPayouts(c *fiber.Ctx) error {
	chainID, err := c.ParamsInt("id")
	if err != nil || chainID < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "detail": "game id must be a non-negative integer"})
	}

	var payouts []models.SettlementPayout
	if err := s.DB.Where("game_id = ?", int64(chainID)).Find(&payouts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch payouts"})
	}
	return c.JSON(fiber.Map{"payouts": payouts})
}
