// services/scheduler.go
package services

import (
	"context"
	"errors"
	"log"
	"time"

	"geobets-core-service/models"

	"github.com/go-co-op/gocron/v2"
)

func (s *SettlementService) StartSettlementScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: settle confirmed games whose reveal window has closed
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			var games []models.Game
			now := s.Now().UTC().Unix()
			err := s.DB.Where("status = ? AND reveal_deadline <= ? AND settled_at IS NULL",
				models.GameStatusConfirmed, now).
				Find(&games).Error
			if err != nil {
				log.Printf("[Scheduler] DB error: %v", err)
				return
			}

			for _, g := range games {
				if g.ChainID == nil {
					continue
				}
				if _, err := s.Settle(context.Background(), *g.ChainID); err != nil {
					if errors.Is(err, ErrAlreadySettled) {
						continue // lost the race to a manual settle, fine
					}
					log.Printf("[Scheduler] Failed to settle game %d: %v", *g.ChainID, err)
				} else {
					log.Printf("✅ Auto-settled game %d", *g.ChainID)
				}
			}
		}),
	)
}
