package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadflow_backend/internal/automation"
	"leadflow_backend/internal/classifier"
	"leadflow_backend/internal/email"
	"leadflow_backend/internal/eventlog"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/followup"
	followupservice "leadflow_backend/internal/followup/service"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/http/router"
	"leadflow_backend/internal/identity"
	"leadflow_backend/internal/identity/credcrypto"
	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/leads/lock"
	"leadflow_backend/internal/leads/ports"
	"leadflow_backend/internal/metrics"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/internal/storage"
	"leadflow_backend/internal/visits"
	"leadflow_backend/internal/webhook"
	"leadflow_backend/internal/whatsapp"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if err := cfg.ValidateAPI(); err != nil {
		panic("invalid config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	stores, closeStores, err := storage.Open(ctx, cfg, log, storage.WithMigrations())
	if err != nil {
		log.Error("failed to open storage", "error", err)
		panic("failed to open storage: " + err.Error())
	}
	defer closeStores()

	m := metrics.Registry(cfg.GetMetricsNamespace())

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()
	m.Subscribe(eventBus)

	sealer, err := credcrypto.New(cfg.GetCredentialsKey())
	if err != nil {
		log.Error("invalid credentials key", "error", err)
		panic("invalid credentials key: " + err.Error())
	}
	if !sealer.Encrypted() {
		log.Warn("CREDENTIALS_KEY not configured; channel tokens are stored unencrypted")
	}

	recorder, closeRecorder := initRecorder(cfg, stores.Facts, m, log)
	defer closeRecorder()

	locker, closeLocker := initLocker(cfg, log)
	defer closeLocker()

	ai := initAI(ctx, cfg, m, log)

	// Shared validator instance for dependency injection
	val := validator.New()
	messenger := whatsapp.NewClient(cfg, log)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	identityModule := identity.NewModule(stores.Users, sealer, val, log)
	identitySvc := identityModule.Service()

	automationModule := automation.NewModule(stores.Automations, val)

	followupModule := followup.NewModule(followup.Deps{
		Jobs:        stores.FollowUps,
		Rules:       stores.Automations,
		Users:       identitySvc,
		Leads:       stores.Leads,
		Facts:       recorder,
		Bus:         eventBus,
		Metrics:     m,
		Log:         log,
		Config:      cfg,
		Dispatchers: dispatchers(cfg, messenger, identitySvc),
	})

	leadsModule := leads.NewModule(leads.Deps{
		Store:      stores.Leads,
		Identity:   identitySvc,
		Agents:     stores.Users,
		Locker:     locker,
		Facts:      recorder,
		FollowUps:  followupModule.Scheduler(),
		Classifier: ai.classifier,
		Responder:  ai.responder,
		Coach:      ai.coach,
		Speaker:    ai.speaker,
		Messenger:  messenger,
		AutoReply:  cfg.IsAutoReplyEnabled(),
		Bus:        eventBus,
		Metrics:    m,
		Validator:  val,
		Log:        log,
	})

	webhookModule := webhook.NewModule(cfg, identitySvc, leadsModule.Intake(), m, log)
	eventlogModule := eventlog.NewModule(stores.Leads, stores.Facts, identitySvc)
	visitsModule := visits.NewModule(visits.Deps{
		Repo:      stores.Visits,
		Leads:     stores.Leads,
		Identity:  identitySvc,
		Facts:     recorder,
		Validator: val,
	})

	// Follow-up delivery: the scheduler process drains the asynq queue when
	// Redis is configured, otherwise this process sweeps due jobs itself.
	if cfg.IsSchedulerEnabled() {
		client, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize follow-up queue client", "error", err)
			panic("failed to initialize follow-up queue client: " + err.Error())
		}
		defer func() { _ = client.Close() }()
		followupModule.SetEnqueuer(client)
		log.Info("follow-ups are delivered by the scheduler process", "queue", cfg.GetAsynqQueueName())
	} else {
		log.Warn("REDIS_URL not configured; sweeping follow-ups in-process")
		sweeper := scheduler.NewSweeper(followupModule.Processor(), cfg.GetFollowUpSweepInterval(), log)
		go sweeper.Run(ctx)
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   stores.Health,
		EventBus: eventBus,
		Metrics:  m,
		Modules: []apphttp.Module{
			identityModule,
			automationModule,
			leadsModule,
			followupModule,
			eventlogModule,
			visitsModule,
			webhookModule,
		},
	}

	engine := router.New(app)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initRecorder(cfg config.FactsConfig, store eventlog.Store, m *metrics.Metrics, log *logger.Logger) (*eventlog.Recorder, func()) {
	opts := []eventlog.Option{eventlog.WithMetrics(m)}
	closeFn := func() {}

	if cfg.IsFactsPublishingEnabled() {
		publisher, err := eventlog.NewAMQPPublisher(cfg.GetFactsAMQPURL(), cfg.GetFactsExchange())
		if err != nil {
			log.Error("failed to connect fact publisher; facts stay local", "error", err)
		} else {
			opts = append(opts, eventlog.WithSink(publisher))
			closeFn = func() { _ = publisher.Close() }
			log.Info("publishing facts", "exchange", cfg.GetFactsExchange())
		}
	}

	return eventlog.NewRecorder(store, log, opts...), closeFn
}

func initLocker(cfg config.SchedulerConfig, log *logger.Logger) (lock.Locker, func()) {
	if cfg.GetRedisURL() == "" {
		return lock.NewKeyedMutex(), func() {}
	}

	locker, err := lock.NewRedisLocker(cfg)
	if err != nil {
		log.Error("failed to initialize redis locker; using in-process locks", "error", err)
		return lock.NewKeyedMutex(), func() {}
	}
	locker.OnLost(func(key string) {
		log.Warn("lead lock expired before release", "key", key)
	})
	return locker, func() { _ = locker.Close() }
}

// aiCollaborators holds untyped nils for whatever is not configured so the
// lead engine skips those steps.
type aiCollaborators struct {
	classifier ports.Classifier
	responder  ports.Responder
	coach      ports.Coach
	speaker    ports.Speaker
}

func initAI(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *logger.Logger) aiCollaborators {
	var ai aiCollaborators
	if !cfg.IsClassifierEnabled() {
		log.Warn("GEMINI_API_KEY not configured; classification, auto replies and coaching disabled")
		return ai
	}

	gen, err := classifier.NewGemini(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize gemini client", "error", err)
		return ai
	}
	log.Info("classifier enabled", "model", cfg.GetGeminiModel(), "autoReply", cfg.IsAutoReplyEnabled())
	ai.classifier = classifier.NewAnalyzer(gen, m)
	ai.responder = classifier.NewResponder(gen, m, log)
	ai.coach = classifier.NewCoach(gen, m)

	if cfg.IsVoiceNotesEnabled() {
		ffmpeg, err := classifier.NewFFmpeg(cfg.GetFFmpegPath())
		if err != nil {
			log.Error("voice notes disabled", "error", err)
			return ai
		}
		ai.speaker = classifier.NewSpeaker(gen.Voice(cfg.GetGeminiTTSModel(), cfg.GetGeminiVoice()), ffmpeg, m)
		log.Info("voice notes enabled for hot leads", "model", cfg.GetGeminiTTSModel(), "voice", cfg.GetGeminiVoice())
	}
	return ai
}

func dispatchers(cfg config.EmailConfig, sender followupservice.TextSender, creds followupservice.CredentialSource) []followupservice.Dispatcher {
	var mailer followupservice.Mailer
	if cfg.IsEmailEnabled() {
		mailer = email.NewSMTPSender(cfg)
	}
	return []followupservice.Dispatcher{
		followupservice.NewMessagingDispatcher(sender, creds),
		followupservice.NewEmailDispatcher(mailer),
	}
}
