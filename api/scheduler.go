/*
scheduler.go - Automated close-of-business scheduler

PURPOSE:
  Periodically runs the close-of-business sweep so interest accruals are
  posted daily without an external cron. The sweep itself is idempotent
  per loan per date, so overlapping or repeated runs are harmless.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Sweeps with the current UTC calendar day as the business date
  - Engine skips loans that are not active or overpaid

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewCloseOfBusinessScheduler(engine)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunCloseOfBusiness endpoint (manual sweep)
  - loan/engine.go: RunCloseOfBusiness semantics
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fairlend/loan-engine/loan"
)

// CloseOfBusinessScheduler posts daily accrual catch-ups for all loans.
type CloseOfBusinessScheduler struct {
	Engine        *loan.Engine
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewCloseOfBusinessScheduler creates a new scheduler.
func NewCloseOfBusinessScheduler(engine *loan.Engine) *CloseOfBusinessScheduler {
	return &CloseOfBusinessScheduler{
		Engine:        engine,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (cs *CloseOfBusinessScheduler) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	cs.ticker = time.NewTicker(cs.CheckInterval)
	cs.wg.Add(1)

	go cs.run()

	log.Printf("[Scheduler] Started with check interval: %v", cs.CheckInterval)
}

// Stop stops the scheduler.
func (cs *CloseOfBusinessScheduler) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ticker != nil {
		cs.ticker.Stop()
		close(cs.stop)
		cs.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (cs *CloseOfBusinessScheduler) run() {
	defer cs.wg.Done()

	// Run immediately on start
	cs.sweep()

	for {
		select {
		case <-cs.ticker.C:
			cs.sweep()
		case <-cs.stop:
			return
		}
	}
}

func (cs *CloseOfBusinessScheduler) sweep() {
	ctx := context.Background()
	today := loan.Today()

	if err := cs.Engine.RunCloseOfBusiness(ctx, today); err != nil {
		log.Printf("[Scheduler] Close of business failed for %s: %v", today, err)
		return
	}
	log.Printf("[Scheduler] Close of business completed for %s", today)
}

// RunNow triggers an immediate sweep (for testing/admin).
func (cs *CloseOfBusinessScheduler) RunNow() {
	cs.sweep()
}
