// models/game.go
package models

import (
	"time"
)

const (
	GameStatusPending   = "pending"   // recorded locally, chain tx not yet confirmed
	GameStatusConfirmed = "confirmed" // ledger assigned the on-chain game id
	GameStatusFailed    = "failed"    // chain submission failed; kept for ops, never auto-deleted
)

// Game is the server-side record of an on-chain guessing game. The secret and
// the solution coordinates live only in this table — anything that leaves the
// service goes through PublicGame, which structurally cannot carry them.
type Game struct {
	ID      string `json:"id" gorm:"primaryKey"`                  // internal ref, minted before the chain call
	ChainID *int64 `json:"chain_id,omitempty" gorm:"uniqueIndex"` // assigned by the ledger at confirmation

	ImageID     string `json:"image_id" gorm:"index;not null"`
	HostAddress string `json:"host_address" gorm:"type:varchar(42);not null"`

	SolutionCommit string `json:"solution_commit" gorm:"type:varchar(66);not null"`

	// 🔒 Server-only solution material — never serialized
	Secret        string `json:"-" gorm:"type:varchar(66);not null"`
	SolutionLatE6 int32  `json:"-" gorm:"not null"`
	SolutionLonE6 int32  `json:"-" gorm:"not null"`

	// Unix seconds; invariant: commit_deadline < reveal_deadline
	CommitDeadline int64 `json:"commit_deadline" gorm:"not null"`
	RevealDeadline int64 `json:"reveal_deadline" gorm:"not null"`

	Status   string `json:"status" gorm:"default:'pending'"`
	SubmitTx string `json:"submit_tx,omitempty" gorm:"type:varchar(66)"`

	SettledAt *time.Time `json:"settled_at,omitempty"` // terminal once set
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// PublicGame is the player-facing view of a Game. It deliberately has no
// secret or solution fields, so a serialization bug cannot leak them.
type PublicGame struct {
	Ref            string     `json:"ref"`
	GameID         *int64     `json:"game_id,omitempty"`
	ImageID        string     `json:"image_id"`
	HostAddress    string     `json:"host_address"`
	SolutionCommit string     `json:"solution_commit"`
	CommitDeadline int64      `json:"commit_deadline"`
	RevealDeadline int64      `json:"reveal_deadline"`
	Status         string     `json:"status"`
	SettledAt      *time.Time `json:"settled_at,omitempty"`
}

func (g *Game) Public() PublicGame {
	return PublicGame{
		Ref:            g.ID,
		GameID:         g.ChainID,
		ImageID:        g.ImageID,
		HostAddress:    g.HostAddress,
		SolutionCommit: g.SolutionCommit,
		CommitDeadline: g.CommitDeadline,
		RevealDeadline: g.RevealDeadline,
		Status:         g.Status,
		SettledAt:      g.SettledAt,
	}
}
