package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/sirupsen/logrus"
)

const retryAfterBadCron = 30 * time.Second

// Runner is anything that can perform one sweep.
type Runner interface {
	Run(ctx context.Context) (Report, error)
}

// Scheduler triggers a Runner on a cron expression. A tick that lands while
// the previous run is still going is skipped.
type Scheduler struct {
	runner Runner
	expr   string
	now    func() time.Time

	mu      sync.Mutex
	running bool
}

func NewScheduler(runner Runner, expr string) *Scheduler {
	return &Scheduler{runner: runner, expr: expr, now: time.Now}
}

// Start blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	logrus.WithField("cron", s.expr).Info("🕒 Sweeper scheduled")
	for {
		next, err := gronx.NextTickAfter(s.expr, s.now(), false)
		if err != nil {
			logrus.WithError(err).WithField("cron", s.expr).Error("sweeper next tick failed")
			select {
			case <-time.After(retryAfterBadCron):
				continue
			case <-ctx.Done():
				return
			}
		}

		wait := max(next.Sub(s.now()), 0)
		select {
		case <-time.After(wait):
			go s.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// tick runs one sweep unless another is in flight. It reports whether it
// ran.
func (s *Scheduler) tick(ctx context.Context) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logrus.Warn("previous sweep still running, skipping tick")
		return false
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if _, err := s.runner.Run(ctx); err != nil {
		logrus.WithError(err).Error("sweep completed with errors")
	}
	return true
}
