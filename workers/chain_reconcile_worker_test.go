package workers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"geobets-core-service/models"
	"geobets-core-service/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Game{},
		&models.Bet{},
		&models.ImageMirror{},
		&models.SettlementPayout{},
	))
	return db
}

// stubChain answers confirmations from a fixed table.
type stubChain struct {
	mu            sync.Mutex
	confirmations map[string]*services.ChainConfirmation
	submitted     []services.ChainInstruction
}

func newStubChain() *stubChain {
	return &stubChain{confirmations: make(map[string]*services.ChainConfirmation)}
}

func (s *stubChain) Submit(ctx context.Context, instr services.ChainInstruction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, instr)
	return fmt.Sprintf("0x%064x", len(s.submitted)), nil
}

func (s *stubChain) WaitConfirmed(ctx context.Context, txRef string, timeout time.Duration) (*services.ChainConfirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conf, ok := s.confirmations[txRef]
	if !ok {
		return nil, fmt.Errorf("%w: tx %s", services.ErrLedgerTimeout, txRef)
	}
	return conf, nil
}

func seedPendingGame(t *testing.T, db *gorm.DB, submitTx string) *models.Game {
	t.Helper()
	game := &models.Game{
		ID:             uuid.NewString(),
		ImageID:        "img-1",
		HostAddress:    "0x1111111111111111111111111111111111111111",
		SolutionCommit: "0x" + "11" + "00000000000000000000000000000000000000000000000000000000000000",
		Secret:         "0x" + "22" + "00000000000000000000000000000000000000000000000000000000000000",
		SolutionLatE6:  52_520_008,
		SolutionLonE6:  13_404_954,
		CommitDeadline: time.Now().Unix() + 900,
		RevealDeadline: time.Now().Unix() + 1800,
		Status:         models.GameStatusPending,
		SubmitTx:       submitTx,
	}
	require.NoError(t, db.Create(game).Error)
	return game
}

func TestReconcileGamesAdvancesPending(t *testing.T) {
	db := testDB(t)
	chain := newStubChain()
	games := services.NewGameService(db, chain)
	settlement := services.NewSettlementService(db, chain)
	r := NewChainReconciler(db, chain, games, settlement)

	confirmedID := int64(42)
	confirmed := seedPendingGame(t, db, "0xaaa1")
	failed := seedPendingGame(t, db, "0xaaa2")
	inFlight := seedPendingGame(t, db, "0xaaa3")

	chain.confirmations["0xaaa1"] = &services.ChainConfirmation{TxRef: "0xaaa1", Status: services.ConfirmationConfirmed, GameID: &confirmedID}
	chain.confirmations["0xaaa2"] = &services.ChainConfirmation{TxRef: "0xaaa2", Status: services.ConfirmationFailed}
	// 0xaaa3 not in the table: still in flight, must stay pending

	r.reconcileGames(context.Background())

	// Fresh dest struct per lookup: gorm folds a populated primary key
	// into the WHERE clause
	var gotConfirmed models.Game
	require.NoError(t, db.First(&gotConfirmed, "id = ?", confirmed.ID).Error)
	assert.Equal(t, models.GameStatusConfirmed, gotConfirmed.Status)
	require.NotNil(t, gotConfirmed.ChainID)
	assert.Equal(t, confirmedID, *gotConfirmed.ChainID)

	var gotFailed models.Game
	require.NoError(t, db.First(&gotFailed, "id = ?", failed.ID).Error)
	assert.Equal(t, models.GameStatusFailed, gotFailed.Status)
	assert.Nil(t, gotFailed.ChainID)

	var gotInFlight models.Game
	require.NoError(t, db.First(&gotInFlight, "id = ?", inFlight.ID).Error)
	assert.Equal(t, models.GameStatusPending, gotInFlight.Status)
}

func TestReconcileGamesFailsOrphansWithoutTxRef(t *testing.T) {
	db := testDB(t)
	chain := newStubChain()
	games := services.NewGameService(db, chain)
	settlement := services.NewSettlementService(db, chain)
	r := NewChainReconciler(db, chain, games, settlement)

	// Pending with no tx ref and past the grace window: unmatchable, must fail
	orphan := seedPendingGame(t, db, "")
	require.NoError(t, db.Model(orphan).
		Update("created_at", time.Now().UTC().Add(-2*orphanGrace)).Error)

	// Pending with no tx ref but fresh: may still be mid-submit, leave it
	fresh := seedPendingGame(t, db, "")

	r.reconcileGames(context.Background())

	var gotOrphan models.Game
	require.NoError(t, db.First(&gotOrphan, "id = ?", orphan.ID).Error)
	assert.Equal(t, models.GameStatusFailed, gotOrphan.Status)

	var gotFresh models.Game
	require.NoError(t, db.First(&gotFresh, "id = ?", fresh.ID).Error)
	assert.Equal(t, models.GameStatusPending, gotFresh.Status)
}

func TestReconcileGamesConfirmationWithoutID(t *testing.T) {
	db := testDB(t)
	chain := newStubChain()
	games := services.NewGameService(db, chain)
	settlement := services.NewSettlementService(db, chain)
	r := NewChainReconciler(db, chain, games, settlement)

	game := seedPendingGame(t, db, "0xbbb1")
	chain.confirmations["0xbbb1"] = &services.ChainConfirmation{TxRef: "0xbbb1", Status: services.ConfirmationConfirmed}

	r.reconcileGames(context.Background())

	// No id in the confirmation — record must stay pending, never guess
	var g models.Game
	require.NoError(t, db.First(&g, "id = ?", game.ID).Error)
	assert.Equal(t, models.GameStatusPending, g.Status)
	assert.Nil(t, g.ChainID)
}

func TestRetryPayoutsResubmitsFailedBatch(t *testing.T) {
	db := testDB(t)
	chain := newStubChain()
	games := services.NewGameService(db, chain)
	settlement := services.NewSettlementService(db, chain)
	r := NewChainReconciler(db, chain, games, settlement)

	require.NoError(t, db.Create(&models.SettlementPayout{
		ID:     uuid.NewString(),
		GameID: 7,
		Player: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Share:  125,
		Status: models.PayoutStatusFailed,
	}).Error)

	r.retryPayouts(context.Background())

	var payout models.SettlementPayout
	require.NoError(t, db.First(&payout, "game_id = ?", int64(7)).Error)
	assert.Equal(t, models.PayoutStatusSubmitted, payout.Status)
	assert.NotEmpty(t, payout.PayoutTx)

	require.Len(t, chain.submitted, 1)
	assert.Equal(t, services.InstructionSettle, chain.submitted[0].Kind)
	assert.Equal(t, []int64{125}, chain.submitted[0].Shares)
}
