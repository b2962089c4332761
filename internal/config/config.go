// Package config binds command-line flags and PRICECHECK_* environment
// variables into the settings of both binaries.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every flag name to form its environment variable.
const EnvPrefix = "PRICECHECK"

// Server configures cmd/server.
type Server struct {
	Bind           string
	Port           int
	AllowedOrigins []string
	PublicURL      string

	DatabaseURL  string
	RedisAddr    string
	RedisDB      int
	ListingKey   string
	ListingsFile string

	CandidateCount int
	VoteWindow     time.Duration
	FetchTimeout   time.Duration
	EmptyRoomTTL   time.Duration

	EventQueue  string
	EventBuffer int

	ChatRate  float64
	ChatBurst int

	HostTokenTTL time.Duration
	HostKeyFile  string

	LogFormat string
	Verbose   bool
}

// Validate checks ranges and that at least one listing source is configured.
func (c *Server) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.DatabaseURL == "" && c.RedisAddr == "" && c.ListingsFile == "" {
		return errors.New("no listing source: set --redis-addr, --database-url or --listings-file")
	}
	if c.CandidateCount < 1 || c.CandidateCount > 10 {
		return fmt.Errorf("candidate-count must be between 1 and 10: %d", c.CandidateCount)
	}
	if c.VoteWindow < time.Second {
		return fmt.Errorf("vote-window must be at least 1s: %s", c.VoteWindow)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch-timeout must be positive: %s", c.FetchTimeout)
	}
	if c.ChatRate <= 0 || c.ChatBurst < 1 {
		return errors.New("chat-rate must be positive and chat-burst at least 1")
	}
	if c.HostTokenTTL < 0 {
		return fmt.Errorf("host-token-ttl must not be negative: %s", c.HostTokenTTL)
	}
	return validateLogFormat(c.LogFormat)
}

// Addr is the listen address.
func (c *Server) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

// Historian configures cmd/historian.
type Historian struct {
	RedisAddr     string
	RedisDB       int
	DatabaseURL   string
	EventQueue    string
	BatchSize     int
	FlushInterval time.Duration

	LogFormat string
	Verbose   bool
}

// Validate checks that both ends of the pipe are configured.
func (c *Historian) Validate() error {
	if c.RedisAddr == "" || c.DatabaseURL == "" {
		return errors.New("historian needs both --redis-addr and --database-url")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch-size must be at least 1: %d", c.BatchSize)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush-interval must be positive: %s", c.FlushInterval)
	}
	return validateLogFormat(c.LogFormat)
}

func validateLogFormat(f string) error {
	switch f {
	case "text", "json":
		return nil
	}
	return fmt.Errorf("log-format must be text or json: %q", f)
}

// NewServerCmd builds the server command. run is invoked with the validated
// configuration.
func NewServerCmd(cfg *Server, version string, run func(cmd *cobra.Command, cfg *Server) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pricecheck",
		Short:         "Real-time multiplayer price guessing game server.",
		Args:          cobra.ExactArgs(0),
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: PRICECHECK_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: PRICECHECK_PORT)")
	fs.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", []string{"*"}, "websocket origin patterns (env: PRICECHECK_ALLOWED_ORIGINS)")
	fs.StringVar(&cfg.PublicURL, "public-url", "", "external base URL used in join QR codes (env: PRICECHECK_PUBLIC_URL)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres URL of the listings cache (env: PRICECHECK_DATABASE_URL)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "", "redis address for listings and the event log (env: PRICECHECK_REDIS_ADDR)")
	fs.IntVar(&cfg.RedisDB, "redis-db", 0, "redis database index (env: PRICECHECK_REDIS_DB)")
	fs.StringVar(&cfg.ListingKey, "listing-key", "pricecheck:listings", "redis set holding listing JSON (env: PRICECHECK_LISTING_KEY)")
	fs.StringVar(&cfg.ListingsFile, "listings-file", "", "JSON file of listings, for development (env: PRICECHECK_LISTINGS_FILE)")
	fs.IntVar(&cfg.CandidateCount, "candidate-count", 3, "candidates offered per vote (env: PRICECHECK_CANDIDATE_COUNT)")
	fs.DurationVar(&cfg.VoteWindow, "vote-window", 15*time.Second, "how long voting stays open (env: PRICECHECK_VOTE_WINDOW)")
	fs.DurationVar(&cfg.FetchTimeout, "fetch-timeout", 10*time.Second, "timeout for one candidate fetch (env: PRICECHECK_FETCH_TIMEOUT)")
	fs.DurationVar(&cfg.EmptyRoomTTL, "empty-room-ttl", 10*time.Minute, "time before a room nobody joined is removed (env: PRICECHECK_EMPTY_ROOM_TTL)")
	fs.StringVar(&cfg.EventQueue, "event-queue", "pricecheck_room_events", "redis list the event log pushes to, empty disables it (env: PRICECHECK_EVENT_QUEUE)")
	fs.IntVar(&cfg.EventBuffer, "event-buffer", 1024, "events buffered before the log starts dropping (env: PRICECHECK_EVENT_BUFFER)")
	fs.Float64Var(&cfg.ChatRate, "chat-rate", 1, "chat messages per second per connection (env: PRICECHECK_CHAT_RATE)")
	fs.IntVar(&cfg.ChatBurst, "chat-burst", 5, "chat burst size per connection (env: PRICECHECK_CHAT_BURST)")
	fs.DurationVar(&cfg.HostTokenTTL, "host-token-ttl", 24*time.Hour, "lifetime of host tokens, 0 for no expiry (env: PRICECHECK_HOST_TOKEN_TTL)")
	fs.StringVar(&cfg.HostKeyFile, "host-key-file", "", "ed25519 private key file for host tokens, <file>.pub holds the public key (env: PRICECHECK_HOST_KEY_FILE)")
	addLogFlags(fs, &cfg.LogFormat, &cfg.Verbose)

	bind(cmd, fs)
	return cmd
}

// NewHistorianCmd builds the historian command.
func NewHistorianCmd(cfg *Historian, version string, run func(cmd *cobra.Command, cfg *Historian) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pricecheck-historian",
		Short:         "Archives room events from Redis into Postgres.",
		Args:          cobra.ExactArgs(0),
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "localhost:6379", "redis address (env: PRICECHECK_REDIS_ADDR)")
	fs.IntVar(&cfg.RedisDB, "redis-db", 0, "redis database index (env: PRICECHECK_REDIS_DB)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres URL of the archive (env: PRICECHECK_DATABASE_URL)")
	fs.StringVar(&cfg.EventQueue, "event-queue", "pricecheck_room_events", "redis list to drain (env: PRICECHECK_EVENT_QUEUE)")
	fs.IntVar(&cfg.BatchSize, "batch-size", 20, "events per insert batch (env: PRICECHECK_BATCH_SIZE)")
	fs.DurationVar(&cfg.FlushInterval, "flush-interval", 500*time.Millisecond, "maximum time between flushes (env: PRICECHECK_FLUSH_INTERVAL)")
	addLogFlags(fs, &cfg.LogFormat, &cfg.Verbose)

	bind(cmd, fs)
	return cmd
}

func addLogFlags(fs *pflag.FlagSet, format *string, verbose *bool) {
	fs.StringVar(format, "log-format", "text", "log output format, text or json (env: PRICECHECK_LOG_FORMAT)")
	fs.BoolVarP(verbose, "verbose", "v", false, "log debug output (env: PRICECHECK_VERBOSE)")
}

// bind lets every flag fall back to its PRICECHECK_* environment variable.
func bind(cmd *cobra.Command, fs *pflag.FlagSet) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		var errs []error
		fs.VisitAll(func(f *pflag.Flag) {
			_ = v.BindPFlag(f.Name, f)
			_ = v.BindEnv(f.Name)
			if !f.Changed && v.IsSet(f.Name) {
				if err := fs.Set(f.Name, envValue(v, f)); err != nil {
					errs = append(errs, fmt.Errorf("%s_%s: %w", EnvPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err))
				}
			}
		})
		return errors.Join(errs...)
	}

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
}

// envValue renders the viper value of f in a form pflag can parse back.
func envValue(v *viper.Viper, f *pflag.Flag) string {
	if f.Value.Type() == "stringSlice" {
		return strings.Join(v.GetStringSlice(f.Name), ",")
	}
	return fmt.Sprintf("%v", v.Get(f.Name))
}

// NewLogger builds the process logger.
func NewLogger(format string, verbose bool) *logrus.Logger {
	logger := logrus.New()
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}
