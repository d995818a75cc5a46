package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/warp/adherence-engine/compliance"
	"github.com/warp/adherence-engine/config"
	"github.com/warp/adherence-engine/store/rediscache"
	"github.com/warp/adherence-engine/store/sqldb"
)

// rootOptions holds flags shared by every command.
type rootOptions struct {
	EnvFile string
	Port    int
	DB      string
	Driver  string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "complianced",
		Short:         "Supplement and nutrition compliance tracking service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env", ".env", "optional .env file to load")
	cmd.PersistentFlags().IntVar(&opts.Port, "port", 0, "HTTP server port")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "database path or DSN")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "database driver (sqlite3|postgres)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	return cmd
}

// loadConfig reads the environment and applies flags the user set.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = opts.Port
	}
	if flags.Changed("db") {
		cfg.DBPath = opts.DB
	}
	if flags.Changed("driver") {
		cfg.DBDriver = opts.Driver
	}
	return cfg, cfg.Validate()
}

// newCache returns the Redis cache when configured and reachable, otherwise
// a process-local one. The returned func releases it.
func newCache(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (compliance.Cache, func()) {
	if cfg.RedisAddr != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		cache, err := rediscache.Dial(dialCtx, cfg.RedisAddr, rediscache.Options{TTL: cfg.CacheTTL, Log: log})
		if err == nil {
			log.WithField("addr", cfg.RedisAddr).Info("using redis history cache")
			return cache, func() { cache.Close() }
		}
		log.WithError(err).Warn("redis unavailable, falling back to local cache")
	}
	return compliance.NewMemoryCache(cfg.CacheTTL), func() {}
}

func openStore(cfg config.Config, log logrus.FieldLogger) (*sqldb.Store, error) {
	store, err := sqldb.Open(cfg.DBDriver, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"driver": cfg.DBDriver, "db": cfg.DBPath}).Info("store ready")
	return store, nil
}

func retryPolicy(cfg config.Config) *compliance.RetryPolicy {
	return &compliance.RetryPolicy{
		Timeout:    cfg.RequestTimeout,
		MaxRetries: cfg.MaxRetries,
		Backoff:    compliance.DefaultRetryPolicy.Backoff,
	}
}
