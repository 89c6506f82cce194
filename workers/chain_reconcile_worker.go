package workers

import (
	"context"
	"errors"
	"log"
	"time"

	"geobets-core-service/models"
	"geobets-core-service/services"

	"gorm.io/gorm"
)

// How long one confirmation check may take each tick. Pending txs just come
// around again on the next tick.
const confirmWait = 10 * time.Second

// Pending rows older than this with no recorded tx ref can never be matched
// against the ledger (crash or write failure right after submission).
const orphanGrace = time.Minute

// ChainReconciler advances optimistic local records against what the ledger
// actually did: pending games get their assigned id bound (or are marked
// failed), and payout batches that never reached the ledger are resubmitted.
type ChainReconciler struct {
	DB         *gorm.DB
	Chain      services.ChainGateway
	Games      *services.GameService
	Settlement *services.SettlementService
}

func NewChainReconciler(db *gorm.DB, chain services.ChainGateway, games *services.GameService, settlement *services.SettlementService) *ChainReconciler {
	return &ChainReconciler{DB: db, Chain: chain, Games: games, Settlement: settlement}
}

// PollChain runs the reconciliation loop until ctx is cancelled.
func PollChain(ctx context.Context, r *ChainReconciler, pollInterval time.Duration) {
	log.Println("Starting chain reconciliation...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Chain reconciliation stopped.")
			return
		case <-ticker.C:
			r.reconcileGames(ctx)
			r.retryPayouts(ctx)
		}
	}
}

func (r *ChainReconciler) reconcileGames(ctx context.Context) {
	// Fail pendings that never got a tx ref once they are clearly not a
	// racing create. A fresh row may still be mid-submit.
	res := r.DB.Model(&models.Game{}).
		Where("status = ? AND submit_tx = '' AND created_at < ?",
			models.GameStatusPending, time.Now().UTC().Add(-orphanGrace)).
		Update("status", models.GameStatusFailed)
	if res.Error != nil {
		log.Printf("❌ Error failing orphaned games: %v", res.Error)
	} else if res.RowsAffected > 0 {
		log.Printf("⚠️ Marked %d orphaned game(s) without a tx ref as failed", res.RowsAffected)
	}

	var pending []models.Game
	if err := r.DB.Where("status = ? AND submit_tx <> ''", models.GameStatusPending).Find(&pending).Error; err != nil {
		log.Printf("❌ Error loading pending games: %v", err)
		return
	}

	for _, g := range pending {
		conf, err := r.Chain.WaitConfirmed(ctx, g.SubmitTx, confirmWait)
		if err != nil {
			if errors.Is(err, services.ErrLedgerTimeout) {
				continue // still in flight, next tick
			}
			log.Printf("❌ Error confirming game %s (tx %s): %v", g.ID, g.SubmitTx, err)
			continue
		}

		switch conf.Status {
		case services.ConfirmationConfirmed:
			if conf.GameID == nil {
				log.Printf("⚠️ Tx %s confirmed without a game id — leaving game %s pending", g.SubmitTx, g.ID)
				continue
			}
			if _, err := r.Games.Confirm(g.ID, *conf.GameID); err != nil {
				if errors.Is(err, services.ErrDuplicateGame) {
					continue // already bound by the manual confirm path
				}
				log.Printf("❌ Failed to confirm game %s as %d: %v", g.ID, *conf.GameID, err)
			}
		case services.ConfirmationFailed:
			log.Printf("⚠️ Tx %s failed on-chain — marking game %s failed", g.SubmitTx, g.ID)
			if err := r.Games.MarkFailed(g.ID); err != nil {
				log.Printf("❌ Failed to mark game %s failed: %v", g.ID, err)
			}
		}
	}
}

// retryPayouts resubmits settle instructions for payout batches that were
// computed but never accepted by the gateway. Shares are never recomputed —
// the rows are the record.
func (r *ChainReconciler) retryPayouts(ctx context.Context) {
	var gameIDs []int64
	if err := r.DB.Model(&models.SettlementPayout{}).
		Where("status = ?", models.PayoutStatusFailed).
		Distinct("game_id").
		Pluck("game_id", &gameIDs).Error; err != nil {
		log.Printf("❌ Error loading failed payout batches: %v", err)
		return
	}

	for _, gameID := range gameIDs {
		if err := r.Settlement.SubmitPayouts(ctx, gameID); err != nil {
			log.Printf("❌ Payout retry for game %d failed: %v", gameID, err)
			continue
		}
		log.Printf("✅ Resubmitted payout batch for game %d", gameID)
	}
}
