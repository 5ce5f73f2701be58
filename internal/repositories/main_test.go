package repositories

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zkreputation/verification-node/internal/config"
	"github.com/zkreputation/verification-node/internal/db"
	"github.com/zkreputation/verification-node/internal/db/tests"
	"github.com/zkreputation/verification-node/internal/log"
)

// storage is nil unless POSTGRES_TEST_DATABASE points to a reachable server
var storage *db.Storage

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx := context.Background()
	log.Config(log.LevelDebug, log.OutputText, os.Stdout)
	conn := lookupPostgresURL()
	if conn == "" {
		log.Info(ctx, "POSTGRES_TEST_DATABASE not set, postgres repository tests are skipped")
		return m.Run()
	}

	cfg := config.Configuration{
		Database: config.Database{
			URL: conn,
		},
	}
	s, teardown, err := tests.NewTestStorage(&cfg)
	defer teardown()
	if err != nil {
		log.Error(ctx, "failed to acquire test database", "err", err)
		return 1
	}
	storage = s
	return m.Run()
}

func lookupPostgresURL() string {
	con, ok := os.LookupEnv("POSTGRES_TEST_DATABASE")
	if !ok {
		return ""
	}
	return con
}

type backend struct {
	name  string
	repos *Repositories
}

// backends returns the in memory repositories and, when a database is configured, the postgres ones
func backends(t *testing.T) []backend {
	t.Helper()
	list := []backend{{name: "memory", repos: NewMemoryStore().Repositories()}}
	if storage != nil {
		list = append(list, backend{name: "postgres", repos: New(*storage)})
	}
	return list
}

func randomWallet(t *testing.T) string {
	t.Helper()
	var b [20]byte
	_, err := rand.Read(b[:])
	require.NoError(t, err)
	return "0x" + hex.EncodeToString(b[:])
}
