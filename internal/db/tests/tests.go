package tests

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/zkreputation/verification-node/internal/config"
	"github.com/zkreputation/verification-node/internal/db"
	"github.com/zkreputation/verification-node/internal/db/schema"
)

const (
	defaultTimeOut = 40
)

// NewTestStorage creates a temporary database, migrates it and returns a storage connected to it
func NewTestStorage(cfg *config.Configuration) (*db.Storage, func(), error) {
	noopTeardown := func() {}
	if cfg.Database.URL == "" {
		return nil, noopTeardown, errors.New("testdb: no connection string")
	}

	tempDBName := "verifier_test_" + time.Now().UTC().Format("20060102150405")
	base, err := url.Parse(cfg.Database.URL)
	if err != nil {
		return nil, noopTeardown, fmt.Errorf("connection string is invalid: %v", err)
	}
	tempURL := *base
	tempURL.Path = "/" + tempDBName
	q := tempURL.Query()
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "disable")
	}
	tempURL.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeOut*time.Second)
	defer cancel()

	storage, err := db.NewStorage(ctx, cfg.Database.URL)
	if err != nil {
		return nil, noopTeardown, fmt.Errorf("can't connect to database: %v", err)
	}

	_, err = storage.Pgx.Exec(ctx, fmt.Sprintf(`create database "%s";`, tempDBName))
	_ = storage.Close(ctx)
	if err != nil {
		return nil, noopTeardown, fmt.Errorf("failed to create database (%s): %v", tempDBName, err)
	}

	if err := schema.Migrate(ctx, tempURL.String()); err != nil {
		return nil, noopTeardown, fmt.Errorf("can't migrate database %v", err)
	}

	storage, err = db.NewStorage(ctx, tempURL.String())
	if err != nil {
		return nil, noopTeardown, fmt.Errorf("can't connect to database: %v", err)
	}

	teardown := func() {
		_ = storage.Close(context.Background())
	}
	return storage, teardown, nil
}
