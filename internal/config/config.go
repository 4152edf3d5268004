// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/grooveguessr/grooveguessr/internal/cache"
	"github.com/grooveguessr/grooveguessr/internal/historian"
	"github.com/grooveguessr/grooveguessr/internal/lobby"
)

// EnvPrefix is prepended to every flag name to form its environment variable.
const EnvPrefix = "GROOVEGUESSR"

type Config struct {
	Bind    string
	Port    int
	BaseURL string

	DatabaseURL string
	RedisAddr   string
	RedisDB     int

	PresenceTTL   time.Duration
	HostPolicy    string
	GuessingTime  int
	MinPlayers    int
	LobbyIDLength int

	JournalQueue string

	TokenExpire    time.Duration
	PrivateKeyPath string
	PublicKeyPath  string

	LogLevel string
	Verbose  bool

	BatchSize     int
	FlushInterval time.Duration
}

func normalize(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func registerShared(fs *pflag.FlagSet, cfg *Config) {
	fs.SetNormalizeFunc(normalize)

	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres connection string; falls back to POSTGRES_USER/PG_HOST/... (env: GROOVEGUESSR_DATABASE_URL)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "localhost:6379", "redis host:port or redis:// url (env: GROOVEGUESSR_REDIS_ADDR)")
	fs.IntVar(&cfg.RedisDB, "redis-db", 0, "redis database number (env: GROOVEGUESSR_REDIS_DB)")
	fs.StringVar(&cfg.JournalQueue, "journal-queue", cache.DefaultJournalQueue, "redis list carrying lobby events (env: GROOVEGUESSR_JOURNAL_QUEUE)")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "logrus level (env: GROOVEGUESSR_LOG_LEVEL)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "shorthand for --log-level=debug (env: GROOVEGUESSR_VERBOSE)")
}

// RegisterServerFlags adds the API server flags to fs.
func RegisterServerFlags(fs *pflag.FlagSet, cfg *Config) {
	registerShared(fs, cfg)

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: GROOVEGUESSR_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: GROOVEGUESSR_PORT)")
	fs.StringVar(&cfg.BaseURL, "base-url", "", "public url used in join QR codes; derived from the request when empty (env: GROOVEGUESSR_BASE_URL)")
	fs.DurationVar(&cfg.PresenceTTL, "presence-ttl", cache.DefaultPresenceTTL, "time a heartbeat keeps a player present (env: GROOVEGUESSR_PRESENCE_TTL)")
	fs.StringVar(&cfg.HostPolicy, "host-policy", string(lobby.HostKeep), "what happens when the host disconnects: keep, delete, reassign or freeze (env: GROOVEGUESSR_HOST_POLICY)")
	fs.IntVar(&cfg.GuessingTime, "guessing-time", lobby.DefaultGuessingTime, "default seconds per round for new lobbies (env: GROOVEGUESSR_GUESSING_TIME)")
	fs.IntVar(&cfg.MinPlayers, "min-players", lobby.DefaultMinPlayers, "players required to start a game (env: GROOVEGUESSR_MIN_PLAYERS)")
	fs.IntVar(&cfg.LobbyIDLength, "lobby-id-length", lobby.DefaultIDLength, "length of generated lobby ids (env: GROOVEGUESSR_LOBBY_ID_LENGTH)")
	fs.DurationVar(&cfg.TokenExpire, "token-expire", 7*24*time.Hour, "session token lifetime, 0 for no expiry (env: GROOVEGUESSR_TOKEN_EXPIRE)")
	fs.StringVar(&cfg.PrivateKeyPath, "private-key", "", "raw ed25519 private key file; a fresh key pair is generated when empty (env: GROOVEGUESSR_PRIVATE_KEY)")
	fs.StringVar(&cfg.PublicKeyPath, "public-key", "", "raw ed25519 public key file (env: GROOVEGUESSR_PUBLIC_KEY)")
}

// RegisterHistorianFlags adds the journal worker flags to fs.
func RegisterHistorianFlags(fs *pflag.FlagSet, cfg *Config) {
	registerShared(fs, cfg)

	fs.IntVar(&cfg.BatchSize, "batch-size", historian.DefaultBatchSize, "events per insert transaction (env: GROOVEGUESSR_BATCH_SIZE)")
	fs.DurationVar(&cfg.FlushInterval, "flush-interval", historian.DefaultFlushInterval, "max time an event waits before being flushed (env: GROOVEGUESSR_FLUSH_INTERVAL)")
}

// BindEnv fills every flag the user did not set explicitly from its
// GROOVEGUESSR_* environment variable.
func BindEnv(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			if err := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
				errs = append(errs, fmt.Errorf("%s_%s: %w", EnvPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err))
			}
		}
	})
	return errors.Join(errs...)
}

// Validate rejects values no component can work with. Zero values of
// flags a command did not register are left alone.
func (c *Config) Validate() error {
	if c.Port != 0 && (c.Port < 1 || c.Port > 65535) {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.Bind != "" && c.PresenceTTL <= 0 {
		return fmt.Errorf("invalid presence ttl (must be positive): %s", c.PresenceTTL)
	}
	if _, err := lobby.ParseHostPolicy(c.HostPolicy); err != nil {
		return err
	}
	if c.GuessingTime < 0 || c.GuessingTime > lobby.MaxGuessingTime {
		return fmt.Errorf("invalid guessing time (must be between 1-%d): %d", lobby.MaxGuessingTime, c.GuessingTime)
	}
	if c.MinPlayers < 0 {
		return fmt.Errorf("invalid min players: %d", c.MinPlayers)
	}
	if c.LobbyIDLength < 0 || c.LobbyIDLength > lobby.MaxIDLength {
		return fmt.Errorf("invalid lobby id length (must be between 1-%d): %d", lobby.MaxIDLength, c.LobbyIDLength)
	}
	if (c.PrivateKeyPath == "") != (c.PublicKeyPath == "") {
		return errors.New("both --private-key and --public-key must be provided together")
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("invalid batch size: %d", c.BatchSize)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Policy returns the parsed host-departure policy.
func (c *Config) Policy() lobby.HostPolicy {
	p, _ := lobby.ParseHostPolicy(c.HostPolicy)
	return p
}

// DSN returns --database-url, or builds one from the POSTGRES_USER,
// POSTGRES_PASSWORD, PG_HOST, PG_PORT and PG_DATABASE variables.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(os.Getenv("POSTGRES_USER"), os.Getenv("POSTGRES_PASSWORD")),
		Host:   getEnv("PG_HOST", "localhost") + ":" + getEnv("PG_PORT", "5432"),
		Path:   "/" + os.Getenv("PG_DATABASE"),
	}
	return u.String()
}

// Level resolves the logrus level, with --verbose taking precedence.
func (c *Config) Level() (logrus.Level, error) {
	if c.Verbose {
		return logrus.DebugLevel, nil
	}
	if c.LogLevel == "" {
		return logrus.InfoLevel, nil
	}
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return 0, fmt.Errorf("invalid log level: %w", err)
	}
	return lvl, nil
}

// Logger builds the process logger.
func (c *Config) Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := c.Level(); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

// Addr is the listen address for the API server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}
