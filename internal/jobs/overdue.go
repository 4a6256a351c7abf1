package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/crewdeck-dev/crewdeck/internal/models"
)

// OverdueSweeper periodically marks projects and tasks whose due date
// has passed. Already-overdue and completed rows are left alone.
type OverdueSweeper struct {
	db       *gorm.DB
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewOverdueSweeper(conn *gorm.DB, interval time.Duration) *OverdueSweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &OverdueSweeper{
		db:       conn,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs one immediate sweep and then sweeps on every tick until
// Stop is called.
func (s *OverdueSweeper) Start() {
	log.Println("Starting overdue sweeper...")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.Sweep()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

func (s *OverdueSweeper) Stop() {
	log.Println("Stopping overdue sweeper...")
	s.cancel()
	s.wg.Wait()
	log.Println("Overdue sweeper stopped")
}

// Sweep flips past-due active projects and pending or in-progress
// tasks to overdue.
func (s *OverdueSweeper) Sweep() {
	now := time.Now()

	projects := s.db.Model(&models.Project{}).
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Where("status NOT IN ?", []string{"completed", "overdue"}).
		Update("status", "overdue")
	if projects.Error != nil {
		log.Printf("Overdue sweep failed for projects: %v", projects.Error)
	} else if projects.RowsAffected > 0 {
		log.Printf("Marked %d projects overdue", projects.RowsAffected)
	}

	tasks := s.db.Model(&models.Task{}).
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Where("status NOT IN ?", []string{"completed", "overdue"}).
		Update("status", "overdue")
	if tasks.Error != nil {
		log.Printf("Overdue sweep failed for tasks: %v", tasks.Error)
	} else if tasks.RowsAffected > 0 {
		log.Printf("Marked %d tasks overdue", tasks.RowsAffected)
	}
}
