// models/bet.go
package models

import (
	"fmt"
	"time"
)

const (
	BetStatusCommitted = "committed"
	BetStatusRevealed  = "revealed"
)

// Bet is one player's blind stake on a game. A player holds at most one bet
// per game — the (game_id, player) unique index is what resolves concurrent
// double-submissions, not application code.
type Bet struct {
	ID     string `json:"id" gorm:"primaryKey"` // "<gameId>:<player>"
	GameID int64  `json:"game_id" gorm:"uniqueIndex:idx_bets_game_player;not null"`
	Player string `json:"player" gorm:"type:varchar(42);uniqueIndex:idx_bets_game_player;not null"`

	// Stake in the ledger token's smallest denomination
	Amount int64 `json:"amount" gorm:"not null"`

	// Commitment over (latE6, lonE6, salt); immutable once accepted
	Commit string `json:"commit" gorm:"type:varchar(66);not null"`

	// Ledger tx refs, recorded for audit only — protocol state never derives from them
	CommitTx string `json:"commit_tx,omitempty" gorm:"type:varchar(66)"`
	RevealTx string `json:"reveal_tx,omitempty" gorm:"type:varchar(66)"`

	// Set exactly once, by a reveal that matched Commit
	RevealedLatE6 *int32 `json:"revealed_lat_e6,omitempty"`
	RevealedLonE6 *int32 `json:"revealed_lon_e6,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BetKey builds the primary key the same way the bets table always has.
func BetKey(gameID int64, player string) string {
	return fmt.Sprintf("%d:%s", gameID, player)
}

// Status is derived from the reveal columns so it can never drift from them.
func (b *Bet) Status() string {
	if b.RevealedLatE6 != nil && b.RevealedLonE6 != nil {
		return BetStatusRevealed
	}
	return BetStatusCommitted
}
