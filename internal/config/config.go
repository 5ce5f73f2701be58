package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/zkreputation/verification-node/internal/log"
)

const (
	// EnvPrefix is the prefix shared by every environment variable read by the node
	EnvPrefix = "VERIFIER_"

	// CacheProviderMemory keeps cached values in process
	CacheProviderMemory = "memory"
	// CacheProviderRedis uses redis for cache and pubsub
	CacheProviderRedis = "redis"
	// CacheProviderValKey uses valkey for cache and pubsub
	CacheProviderValKey = "valkey"
)

// ErrConfigurationMissing is returned when a mandatory setting is absent. It is fatal at startup.
var ErrConfigurationMissing = errors.New("configuration missing")

// Configuration holds the project configuration
type Configuration struct {
	ServerPort int      `env:"SERVER_PORT" envDefault:"3001"`
	InstanceID string   `env:"INSTANCE_ID"`
	Database   Database `envPrefix:"DATABASE_"`
	Cache      Cache    `envPrefix:"CACHE_"`
	Log        Log      `envPrefix:"LOG_"`
	Ethereum   Ethereum `envPrefix:"ETHEREUM_"`
	Listener   Listener `envPrefix:"LISTENER_"`
	Session    Session  `envPrefix:"SESSION_"`
	API        API      `envPrefix:"API_"`
}

// Database has the database configuration
// URL: The database connection string
type Database struct {
	URL string `env:"URL"`
}

// Cache configuration. Provider selects the backend used by the cache and by the pubsub.
// With the memory provider there is no cross instance cache invalidation.
type Cache struct {
	Provider string `env:"PROVIDER" envDefault:"memory"`
	URL      string `env:"URL"`
}

// Ethereum contains the settings of the chain holding the verification contract
type Ethereum struct {
	URL                string        `env:"URL"`
	ContractAddress    string        `env:"CONTRACT_ADDRESS"`
	RPCResponseTimeout time.Duration `env:"RPC_RESPONSE_TIMEOUT" envDefault:"10s"`
	RPCRetryMax        int           `env:"RPC_RETRY_MAX" envDefault:"2"`
}

// Listener configures the contract polling listener
type Listener struct {
	Enabled      bool          `env:"ENABLED" envDefault:"true"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"30s"`
}

// Session configures the verification session manager
type Session struct {
	Lifetime      time.Duration `env:"LIFETIME" envDefault:"15m"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"60s"`
	StatsCacheTTL time.Duration `env:"STATS_CACHE_TTL" envDefault:"5s"`
}

// API configures the http server
type API struct {
	CORSAllowedOrigins      []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	CreateSessionsPerMinute int      `env:"CREATE_SESSIONS_PER_MINUTE" envDefault:"10"`
}

// Log holds runtime configurations
//
// Level: The minimum log level to show on logs. Values can be
//
//	-4: Debug
//	 0: Info
//	 4: Warning
//	 8: Error
//
// Mode: Log mode is the format of the log. It can be text or json
// 1: JSON
// 2: Text
type Log struct {
	Level int `env:"LEVEL" envDefault:"0"`
	Mode  int `env:"MODE" envDefault:"2"`
}

// Load reads the configuration from the environment. If envFile exists its variables are loaded
// first, without overriding variables already present in the environment.
func Load(envFile string) (*Configuration, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("loading env file %s: %w", envFile, err)
			}
		}
	}

	cfg := &Configuration{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if cfg.InstanceID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "verifier"
		}
		cfg.InstanceID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return cfg, nil
}

// Sanitize perform some basic checks and sanitizations in the configuration.
// Every missing mandatory value is reported, each wrapped in ErrConfigurationMissing.
func (c *Configuration) Sanitize(ctx context.Context) error {
	var errs []error
	missing := func(name string) {
		errs = append(errs, fmt.Errorf("%w: %s%s", ErrConfigurationMissing, EnvPrefix, name))
	}

	c.Ethereum.URL = strings.TrimSpace(c.Ethereum.URL)
	if c.Ethereum.URL == "" {
		missing("ETHEREUM_URL")
	}

	c.Ethereum.ContractAddress = strings.TrimSpace(c.Ethereum.ContractAddress)
	if c.Ethereum.ContractAddress == "" {
		missing("ETHEREUM_CONTRACT_ADDRESS")
	} else if !common.IsHexAddress(c.Ethereum.ContractAddress) {
		errs = append(errs, fmt.Errorf("invalid contract address <%s>", c.Ethereum.ContractAddress))
	}

	if strings.TrimSpace(c.Database.URL) == "" {
		missing("DATABASE_URL")
	}

	switch c.Cache.Provider {
	case CacheProviderMemory:
	case CacheProviderRedis, CacheProviderValKey:
		if c.Cache.URL == "" {
			missing("CACHE_URL")
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache provider <%s>", c.Cache.Provider))
	}

	if c.Listener.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("listener poll interval must be positive"))
	}
	if c.Session.Lifetime <= 0 {
		errs = append(errs, fmt.Errorf("session lifetime must be positive"))
	}
	if c.Session.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("session sweep interval must be positive"))
	}
	if c.Ethereum.RPCResponseTimeout <= 0 {
		errs = append(errs, fmt.Errorf("rpc response timeout must be positive"))
	}
	if c.ServerPort == 0 {
		log.Info(ctx, "VERIFIER_SERVER_PORT value is missing, using an ephemeral port")
	}

	return errors.Join(errs...)
}
