// models/settlement.go
package models

import (
	"time"
)

const (
	PayoutStatusPending   = "pending"   // computed locally, not yet sent to the ledger
	PayoutStatusSubmitted = "submitted" // settle instruction accepted by the chain gateway
	PayoutStatusFailed    = "failed"    // submission failed; reconciler retries the batch
)

// SettlementPayout is the audit row for one player's share of a settled game.
// Shares are computed exactly once per game; these rows track whether the
// matching settle instruction actually reached the ledger.
type SettlementPayout struct {
	ID       string `json:"id" gorm:"primaryKey"`
	GameID   int64  `json:"game_id" gorm:"index;not null"`
	Player   string `json:"player" gorm:"type:varchar(42);not null"`
	Share    int64  `json:"share" gorm:"not null"`
	Status   string `json:"status" gorm:"default:'pending'"`
	PayoutTx string `json:"payout_tx,omitempty" gorm:"type:varchar(66)"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
