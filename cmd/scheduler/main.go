package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"leadflow_backend/internal/email"
	"leadflow_backend/internal/eventlog"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/followup"
	followupservice "leadflow_backend/internal/followup/service"
	"leadflow_backend/internal/identity/credcrypto"
	identityservice "leadflow_backend/internal/identity/service"
	"leadflow_backend/internal/metrics"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/internal/storage"
	"leadflow_backend/internal/whatsapp"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	if !cfg.IsSchedulerEnabled() {
		log.Error("REDIS_URL is required by the scheduler process")
		panic("REDIS_URL is required by the scheduler process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The API process owns migrations.
	stores, closeStores, err := storage.Open(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open storage", "error", err)
		panic("failed to open storage: " + err.Error())
	}
	defer closeStores()

	m := metrics.Registry(cfg.GetMetricsNamespace())
	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()
	m.Subscribe(eventBus)

	sealer, err := credcrypto.New(cfg.GetCredentialsKey())
	if err != nil {
		log.Error("invalid credentials key", "error", err)
		panic("invalid credentials key: " + err.Error())
	}
	identitySvc := identityservice.New(stores.Users, sealer, log)

	recorderOpts := []eventlog.Option{eventlog.WithMetrics(m)}
	if cfg.IsFactsPublishingEnabled() {
		publisher, err := eventlog.NewAMQPPublisher(cfg.GetFactsAMQPURL(), cfg.GetFactsExchange())
		if err != nil {
			log.Error("failed to connect fact publisher; facts stay local", "error", err)
		} else {
			defer func() { _ = publisher.Close() }()
			recorderOpts = append(recorderOpts, eventlog.WithSink(publisher))
		}
	}
	recorder := eventlog.NewRecorder(stores.Facts, log, recorderOpts...)

	var mailer followupservice.Mailer
	if cfg.IsEmailEnabled() {
		mailer = email.NewSMTPSender(cfg)
	} else {
		log.Warn("SMTP not configured; email follow-ups will be skipped")
	}

	followupModule := followup.NewModule(followup.Deps{
		Jobs:    stores.FollowUps,
		Rules:   stores.Automations,
		Users:   identitySvc,
		Leads:   stores.Leads,
		Facts:   recorder,
		Bus:     eventBus,
		Metrics: m,
		Log:     log,
		Config:  cfg,
		Dispatchers: []followupservice.Dispatcher{
			followupservice.NewMessagingDispatcher(whatsapp.NewClient(cfg, log), identitySvc),
			followupservice.NewEmailDispatcher(mailer),
		},
	})

	// Retries are re-enqueued as delayed tasks like new jobs.
	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize follow-up queue client", "error", err)
		panic("failed to initialize follow-up queue client: " + err.Error())
	}
	defer func() { _ = client.Close() }()
	followupModule.SetEnqueuer(client)

	sweeper := scheduler.NewSweeper(followupModule.Processor(), cfg.GetFollowUpSweepInterval(), log)

	periodic, err := scheduler.NewPeriodic(cfg, cfg.GetFollowUpSweepInterval(), log)
	if err != nil {
		log.Error("failed to initialize periodic sweep", "error", err)
		panic("failed to initialize periodic sweep: " + err.Error())
	}
	go periodic.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, followupModule.Processor(), sweeper, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	log.Info("scheduler stopped")
}
