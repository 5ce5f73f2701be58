package main

import (
	"context"
	"os"

	_ "github.com/lib/pq"

	"github.com/zkreputation/verification-node/internal/config"
	"github.com/zkreputation/verification-node/internal/db/schema"
	"github.com/zkreputation/verification-node/internal/log"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".env-verifier")
	if err != nil {
		log.Error(ctx, "cannot load config", "err", err)
		os.Exit(1)
	}

	ctx = log.NewContext(ctx, cfg.Log.Level, cfg.Log.Mode, os.Stdout)
	if cfg.Database.URL == "" {
		log.Error(ctx, "VERIFIER_DATABASE_URL is missing")
		os.Exit(1)
	}

	if err := schema.Migrate(ctx, cfg.Database.URL); err != nil {
		log.Error(ctx, "error migrating database", "err", err)
		os.Exit(1)
	}

	log.Info(ctx, "migration done!")
}
