package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"geobets-core-service/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// testDB opens a fresh in-memory sqlite database per test. One connection
// only — shared-cache sqlite is not the place to exercise driver-level
// parallelism, the unique indexes and guarded updates are what's under test.
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

// fakeChain is an in-memory chain gateway: every submission confirms
// immediately, create_game gets the next sequential id.
type fakeChain struct {
	mu            sync.Mutex
	nextGameID    int64
	submitted     []ChainInstruction
	confirmations map[string]*ChainConfirmation
	failSubmit    bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{confirmations: make(map[string]*ChainConfirmation)}
}

func (f *fakeChain) Submit(ctx context.Context, instr ChainInstruction) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubmit {
		return "", fmt.Errorf("%w: fake gateway down", ErrLedgerTimeout)
	}

	f.submitted = append(f.submitted, instr)
	tx := fmt.Sprintf("0x%064x", len(f.submitted))

	conf := &ChainConfirmation{TxRef: tx, Status: ConfirmationConfirmed}
	if instr.Kind == InstructionCreateGame {
		f.nextGameID++
		id := f.nextGameID
		conf.GameID = &id
	}
	f.confirmations[tx] = conf
	return tx, nil
}

func (f *fakeChain) WaitConfirmed(ctx context.Context, txRef string, timeout time.Duration) (*ChainConfirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conf, ok := f.confirmations[txRef]
	if !ok {
		return nil, fmt.Errorf("%w: tx %s", ErrLedgerTimeout, txRef)
	}
	return conf, nil
}

func (f *fakeChain) lastInstruction() *ChainInstruction {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.submitted) == 0 {
		return nil
	}
	instr := f.submitted[len(f.submitted)-1]
	return &instr
}

const (
	testImageID = "img-berlin"
	testImgLat  = int32(52_520_008)
	testImgLon  = int32(13_404_954)

	hostAddr    = "0x1111111111111111111111111111111111111111"
	playerAddrA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	playerAddrB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func seedImage(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Create(&models.ImageMirror{
		ID:           testImageID,
		Title:        "Alexanderplatz",
		PublicURL:    "https://cdn.example.test/img-berlin.jpg",
		LatE6:        testImgLat,
		LonE6:        testImgLon,
		IsActive:     true,
		LastSyncedAt: time.Now().UTC(),
	}).Error)
}

// newConfirmedGame walks a game through create + confirm against the fake
// chain and returns its assigned chain id.
func newConfirmedGame(t *testing.T, svc *GameService, chain *fakeChain, commitMinutes, revealMinutes int) int64 {
	t.Helper()

	game, err := svc.Create(context.Background(), testImageID, hostAddr, commitMinutes, revealMinutes)
	require.NoError(t, err)

	conf, err := chain.WaitConfirmed(context.Background(), game.SubmitTx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, conf.GameID)

	_, err = svc.Confirm(game.ID, *conf.GameID)
	require.NoError(t, err)
	return *conf.GameID
}
