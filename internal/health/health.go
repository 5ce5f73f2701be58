package health

import (
	"context"
	"sort"
	"time"

	"github.com/zkreputation/verification-node/internal/db"
	iRedis "github.com/zkreputation/verification-node/internal/redis"
	"github.com/zkreputation/verification-node/pkg/blockchain/eth"
)

// Component names reported by Status
const (
	DB    = "db"
	Cache = "cache"
	Chain = "chain"
)

const pingTimeout = 3 * time.Second

// Ping interface
type Ping interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Ping
type PingFunc func(ctx context.Context) error

// Ping calls f
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Status struct
type Status struct {
	pingers map[string]Ping
}

// New returns a Health instance watching the given components. Nil components are skipped.
func New(storage *db.Storage, conns *iRedis.Connections, chain *eth.Client) *Status {
	h := &Status{pingers: make(map[string]Ping)}
	if storage != nil {
		h.Register(DB, storage)
	}
	if conns.Enabled() {
		h.Register(Cache, conns)
	}
	if chain != nil {
		h.Register(Chain, PingFunc(func(ctx context.Context) error {
			_, err := chain.CurrentBlock(ctx)
			return err
		}))
	}
	return h
}

// Register adds or replaces a component
func (h *Status) Register(name string, p Ping) *Status {
	h.pingers[name] = p
	return h
}

// Components returns the registered component names, sorted
func (h *Status) Components() []string {
	names := make([]string, 0, len(h.pingers))
	for name := range h.pingers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status returns whether every component is reachable or not
func (h *Status) Status(ctx context.Context) map[string]bool {
	m := make(map[string]bool)
	for key, val := range h.pingers {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		m[key] = val.Ping(pctx) == nil
		cancel()
	}
	return m
}
