package scheduler

import (
	"context"
	"sync"
	"time"

	"leadflow_backend/internal/followup/service"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

const defaultSweepInterval = 5 * time.Minute

// Processor runs follow-up jobs.
type Processor interface {
	ProcessDue(ctx context.Context) (service.Report, error)
	ProcessJob(ctx context.Context, id uuid.UUID) (service.Report, error)
}

// Sweeper periodically processes due follow-up jobs. Ticks never overlap:
// a tick that fires while the previous one still runs is dropped.
type Sweeper struct {
	proc     Processor
	log      *logger.Logger
	interval time.Duration
	mu       sync.Mutex
}

func NewSweeper(proc Processor, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{proc: proc, log: log, interval: interval}
}

func (s *Sweeper) Run(ctx context.Context) {
	if s == nil || s.proc == nil {
		return
	}

	s.Tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick processes one batch of due jobs. It reports false when another tick
// was still running.
func (s *Sweeper) Tick(ctx context.Context) (service.Report, bool) {
	if !s.mu.TryLock() {
		s.log.Info("follow-up sweep skipped, previous tick still running")
		return service.Report{}, false
	}
	defer s.mu.Unlock()

	report, err := s.proc.ProcessDue(ctx)
	if err != nil {
		s.log.Warn("follow-up sweep failed", "error", err)
	}
	if report.Claimed > 0 {
		s.log.Info("follow-up sweep processed jobs",
			"claimed", report.Claimed,
			"delivered", report.Delivered,
			"skipped", report.Skipped,
			"failed", report.Failed,
			"retried", report.Retried,
			"released", report.Released,
		)
	}
	return report, true
}
