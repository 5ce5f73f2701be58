package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/lib/pq"

	"github.com/zkreputation/verification-node/internal/api"
	"github.com/zkreputation/verification-node/internal/buildinfo"
	"github.com/zkreputation/verification-node/internal/config"
	"github.com/zkreputation/verification-node/internal/core/event"
	"github.com/zkreputation/verification-node/internal/core/ports"
	"github.com/zkreputation/verification-node/internal/core/services"
	"github.com/zkreputation/verification-node/internal/db"
	"github.com/zkreputation/verification-node/internal/gateways"
	"github.com/zkreputation/verification-node/internal/health"
	"github.com/zkreputation/verification-node/internal/log"
	"github.com/zkreputation/verification-node/internal/metrics"
	"github.com/zkreputation/verification-node/internal/providers/blockchain"
	"github.com/zkreputation/verification-node/internal/pubsub"
	iRedis "github.com/zkreputation/verification-node/internal/redis"
	"github.com/zkreputation/verification-node/internal/repositories"
	"github.com/zkreputation/verification-node/pkg/cache"
)

const (
	shutdownTimeout      = 15 * time.Second
	limiterPurgeInterval = 5 * time.Minute
)

func main() {
	cfg, err := config.Load(".env-verifier")
	if err != nil {
		log.Error(context.Background(), "cannot load config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(log.NewContext(context.Background(), cfg.Log.Level, cfg.Log.Mode, os.Stdout))
	defer cancel()
	ctx = log.With(ctx, "instance", cfg.InstanceID)

	if err := cfg.Sanitize(ctx); err != nil {
		log.Error(ctx, "there are errors in the configuration", "err", err)
		os.Exit(1)
	}
	log.Info(ctx, "starting verification node", "revision", buildinfo.Revision(), "cacheProvider", cfg.Cache.Provider)

	storage, err := db.NewStorage(ctx, cfg.Database.URL)
	if err != nil {
		log.Error(ctx, "cannot connect to database", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := storage.Close(ctx); err != nil {
			log.Error(ctx, "closing database", "err", err)
		}
	}()

	conns, err := iRedis.Connect(ctx, cfg.Cache)
	if err != nil {
		log.Error(ctx, "cannot connect to the cache backend", "err", err, "provider", cfg.Cache.Provider)
		os.Exit(1)
	}
	defer conns.Close(ctx)

	statsCache, err := cache.NewCacheClient(ctx, *cfg, conns.Redis, conns.ValKey)
	if err != nil {
		log.Error(ctx, "cannot create cache client", "err", err)
		os.Exit(1)
	}

	ps, err := pubsub.NewPubSub(*cfg, conns.Redis, conns.ValKey)
	if err != nil {
		log.Error(ctx, "cannot create pubsub client", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := ps.Close(); err != nil {
			log.Error(ctx, "closing pubsub", "err", err)
		}
	}()

	ethClient, err := blockchain.Open(ctx, cfg.Ethereum)
	if err != nil {
		log.Error(ctx, "cannot connect to the blockchain", "err", err, "url", cfg.Ethereum.URL)
		os.Exit(1)
	}
	contract := gateways.NewVerificationContract(ethClient, common.HexToAddress(cfg.Ethereum.ContractAddress))

	m := metrics.New()
	repos := repositories.New(*storage)

	sessionManager := services.NewSessionManager(repos.Sessions, repos.SessionEvents, statsCache, ps, m, services.SessionManagerConfig{
		Lifetime:      cfg.Session.Lifetime,
		SweepInterval: cfg.Session.SweepInterval,
		StatsCacheTTL: cfg.Session.StatsCacheTTL,
		InstanceID:    cfg.InstanceID,
	})
	reconciler := services.NewReconciler(repos.Users, repos.SelfVerifications, repos.Activities, sessionManager, ps)

	if err := ps.Subscribe(ctx, event.SessionChangedEvent, sessionManager.HandleSessionChanged); err != nil {
		log.Error(ctx, "cannot subscribe to session changes", "err", err)
		os.Exit(1)
	}

	sessionManager.Start(ctx)
	defer sessionManager.Stop()

	var listener ports.ListenerService
	if cfg.Listener.Enabled {
		contractListener := services.NewContractListener(contract, reconciler, m, cfg.Listener.PollInterval)
		if err := contractListener.Start(ctx); err != nil {
			// it can be started later through the api
			log.Error(ctx, "contract listener not started", "err", err)
		}
		defer contractListener.Stop()
		listener = contractListener
	} else {
		log.Info(ctx, "contract listener disabled")
	}

	status := health.New(storage, conns, ethClient)

	limiter := api.NewWalletLimiter(cfg.API.CreateSessionsPerMinute)
	go func() {
		ticker := time.NewTicker(limiterPurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := limiter.Purge(); n > 0 {
					log.Debug(ctx, "idle rate limiter buckets dropped", "count", n)
				}
			}
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           api.NewServer(sessionManager, listener, status, limiter).Handler(ctx, cfg.API, m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Info(ctx, fmt.Sprintf("server started on port:%d", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-quit:
	case err := <-serverErr:
		log.Error(ctx, "http server failed", "err", err)
	}

	log.Info(ctx, "Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "http server shutdown", "err", err)
	}
}
