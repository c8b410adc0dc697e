package scheduler

import (
	"context"
	"fmt"
	"time"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Worker runs follow-up tasks from the asynq queue.
type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	proc    Processor
	sweeper *Sweeper
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, proc Processor, sweeper *Sweeper, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		proc:    proc,
		sweeper: sweeper,
		log:     log,
	}

	mux.HandleFunc(TaskFollowUpDue, w.handleFollowUpDue)
	mux.HandleFunc(TaskFollowUpSweep, w.handleFollowUpSweep)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	if err := w.server.Start(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
		return
	}
	<-ctx.Done()
	w.server.Shutdown()
}

func (w *Worker) handleFollowUpDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseFollowUpDuePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	_, err = w.proc.ProcessJob(ctx, jobID)
	return err
}

func (w *Worker) handleFollowUpSweep(ctx context.Context, _ *asynq.Task) error {
	w.sweeper.Tick(ctx)
	return nil
}

// Periodic enqueues the sweep task on a fixed interval. Only one sweep task
// can be queued at a time, so several scheduler processes can run it.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, interval time.Duration, log *logger.Logger) (*Periodic, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	if interval <= 0 {
		interval = defaultSweepInterval
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{})
	if _, err := scheduler.Register(
		"@every "+interval.String(),
		NewFollowUpSweepTask(),
		asynq.Queue(queueName(cfg)),
		asynq.Unique(interval),
		asynq.MaxRetry(0),
	); err != nil {
		return nil, fmt.Errorf("register sweep: %w", err)
	}

	return &Periodic{scheduler: scheduler, log: log}, nil
}

func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	if err := p.scheduler.Start(); err != nil {
		p.log.Error("sweep scheduler stopped", "error", err)
		return
	}
	<-ctx.Done()
	p.scheduler.Shutdown()
}
