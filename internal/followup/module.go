// Package followup schedules and dispatches follow-up messages for new leads.
package followup

import (
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/followup/handler"
	"leadflow_backend/internal/followup/service"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/leads/ports"
	"leadflow_backend/internal/metrics"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

// JobRepository is the full job storage used by the module.
type JobRepository interface {
	service.JobWriter
	service.JobStore
	service.Maintenance
}

type Deps struct {
	Jobs        JobRepository
	Rules       service.RuleReader
	Users       service.UserReader
	Leads       service.LeadStore
	Facts       ports.FactRecorder
	Bus         events.Bus
	Metrics     *metrics.Metrics
	Log         *logger.Logger
	Config      config.FollowUpConfig
	Dispatchers []service.Dispatcher
}

type Module struct {
	handler   *handler.Handler
	scheduler *service.Scheduler
	processor *service.Processor
}

func NewModule(d Deps) *Module {
	return &Module{
		handler:   handler.New(service.New(d.Jobs)),
		scheduler: service.NewScheduler(d.Rules, d.Jobs, d.Facts, d.Metrics, d.Log),
		processor: service.NewProcessor(service.ProcessorDeps{
			Jobs:        d.Jobs,
			Users:       d.Users,
			Leads:       d.Leads,
			Facts:       d.Facts,
			Bus:         d.Bus,
			Log:         d.Log,
			Policy:      service.PolicyFromConfig(d.Config),
			Dispatchers: d.Dispatchers,
		}),
	}
}

func (m *Module) Name() string {
	return "followups"
}

// Scheduler creates jobs for new leads.
func (m *Module) Scheduler() *service.Scheduler {
	return m.scheduler
}

// Processor dispatches due jobs.
func (m *Module) Processor() *service.Processor {
	return m.processor
}

// SetEnqueuer routes new and rescheduled jobs through a delayed task queue.
func (m *Module) SetEnqueuer(e service.Enqueuer) {
	m.scheduler.SetEnqueuer(e)
	m.processor.SetEnqueuer(e)
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
}

var _ apphttp.Module = (*Module)(nil)
