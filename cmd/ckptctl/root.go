package main

import (
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xraph/ckpt"
	"github.com/xraph/ckpt/backoff"
	"github.com/xraph/ckpt/checkpoint"
	"github.com/xraph/ckpt/observability"
	redisstore "github.com/xraph/ckpt/store/redis"
)

const (
	lockerSpin  = "spin"
	lockerMutex = "mutex"
)

// settings is the resolved configuration for one invocation.
type settings struct {
	RedisAddr string
	Locker    string
	Verbose   bool
	Store     ckpt.Config
}

// app holds what subcommands need once settings are resolved.
type app struct {
	v      *viper.Viper
	client *goredis.Client
	store  checkpoint.Store
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	defaults := ckpt.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:           "ckptctl",
		Short:         "Inspect and maintain checkpoint lineages stored in Redis",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(a.v)
			if err != nil {
				return err
			}
			return a.open(cmd, s)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return a.close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (yaml, toml or json)")
	flags.String("redis-addr", "localhost:6379", "Redis address")
	flags.String("locker", lockerSpin, "lock adapter (spin|mutex)")
	flags.String("key-namespace", defaults.KeyNamespace, "prefix for every Redis key")
	flags.Duration("lock-wait", defaults.LockWait, "maximum wait for a lineage lock")
	flags.Duration("lock-ttl", defaults.LockTTL, "lease on an acquired lineage lock")
	flags.Duration("poll-interval", defaults.PollInterval, "delay between lock attempts, or the first delay when backing off")
	flags.String("poll-strategy", defaults.PollStrategy, "lock poll schedule (constant|exponential|jitter)")
	flags.Duration("poll-max", defaults.PollMax, "cap on the delay between lock attempts when backing off")
	flags.BoolP("verbose", "v", false, "log every store operation to stderr")

	// Flag names double as config keys; env vars use CKPT_ and underscores.
	_ = a.v.BindPFlags(flags) //nolint:errcheck // only fails on a nil flag
	a.v.SetEnvPrefix("CKPT")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	rootCmd.AddCommand(
		newListCmd(a),
		newGetCmd(a),
		newClearCmd(a),
		newReleaseCmd(a),
	)

	return rootCmd
}

func loadSettings(v *viper.Viper) (settings, error) {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return settings{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// Blobs record their codec, and ckptctl never writes, so the codec
	// setting is left at its default.
	s := settings{
		RedisAddr: v.GetString("redis-addr"),
		Locker:    v.GetString("locker"),
		Verbose:   v.GetBool("verbose"),
		Store: ckpt.Config{
			LockWait:     v.GetDuration("lock-wait"),
			LockTTL:      v.GetDuration("lock-ttl"),
			PollInterval: v.GetDuration("poll-interval"),
			PollStrategy: v.GetString("poll-strategy"),
			PollMax:      v.GetDuration("poll-max"),
			KeyNamespace: v.GetString("key-namespace"),
			Codec:        ckpt.DefaultConfig().Codec,
		},
	}

	switch s.Locker {
	case lockerSpin, lockerMutex:
	default:
		return settings{}, fmt.Errorf("invalid locker %q: must be %s or %s", s.Locker, lockerSpin, lockerMutex)
	}
	if _, err := backoff.Named(s.Store.PollStrategy, s.Store.PollInterval, s.Store.PollMax); err != nil {
		return settings{}, fmt.Errorf("invalid poll strategy: %w", err)
	}
	if s.RedisAddr == "" {
		return settings{}, fmt.Errorf("redis address is required")
	}
	return s, nil
}

func (a *app) open(cmd *cobra.Command, s settings) error {
	level := slog.LevelWarn
	if s.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	backendOpts, err := redisstore.FromConfig(s.Store)
	if err != nil {
		return err
	}
	backendOpts = append(backendOpts, redisstore.WithBackendLogger(logger))

	a.client = goredis.NewClient(&goredis.Options{Addr: s.RedisAddr})
	var backend redisstore.Backend
	if s.Locker == lockerMutex {
		backend = redisstore.NewMutexBackend(a.client, backendOpts...)
	} else {
		backend = redisstore.NewSpinBackend(a.client, backendOpts...)
	}

	a.store = observability.Instrument(
		redisstore.New(backend,
			redisstore.WithConfig(s.Store),
			redisstore.WithLogger(logger),
		),
		observability.WithLogger(logger),
	)
	return nil
}

func (a *app) close() error {
	if a.client == nil {
		return nil
	}
	err := a.client.Close()
	a.client = nil
	return err
}
