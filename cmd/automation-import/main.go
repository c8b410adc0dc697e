package main

import (
	"context"
	"flag"
	"os"

	"leadflow_backend/internal/automation/importer"
	"leadflow_backend/internal/automation/service"
	"leadflow_backend/internal/storage"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

func main() {
	path := flag.String("file", "automations.yaml", "YAML file with automation rule sets")
	dryRun := flag.Bool("dry-run", false, "validate the file without writing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting automation import", "file", *path, "dryRun", *dryRun)

	f, err := os.Open(*path)
	if err != nil {
		log.Error("failed to open import file", "error", err)
		os.Exit(1)
	}
	defer f.Close()

	doc, err := importer.Parse(f)
	if err != nil {
		log.Error("invalid import file", "error", err)
		os.Exit(1)
	}
	if *dryRun {
		log.Info("import file is valid", "entries", len(doc.Automations))
		return
	}

	ctx := context.Background()
	stores, closeStores, err := storage.Open(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer closeStores()

	applied, err := importer.Apply(ctx, service.New(stores.Automations), doc)
	if err != nil {
		log.Error("import stopped", "applied", applied, "error", err)
		closeStores()
		os.Exit(1)
	}
	log.Info("automation import complete", "applied", applied)
}
