package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"goldprice/internal/logging"
)

// Scheduler refreshes immediately on Start and then on every tick.
type Scheduler struct {
	r        *Refresher
	interval time.Duration
	log      *logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var ErrAlreadyStarted = errors.New("refresh: scheduler already started")

func NewScheduler(r *Refresher, interval time.Duration, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.NewNop()
	}
	return &Scheduler{r: r, interval: interval, log: log}
}

// Start begins the refresh loop. It returns immediately, or ErrAlreadyStarted while a
// previous loop has not been stopped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run(ctx)

	s.log.Info("refresh scheduler started", "interval", s.interval.String())
	return nil
}

// Stop cancels the loop and waits for an in-flight run, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("refresh scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.r.Run(ctx, TriggerStartup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.r.Run(ctx, TriggerTimer)
		}
	}
}
