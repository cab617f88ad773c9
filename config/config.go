package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/cexbalance/internal/domain"
)

// Exchanges lists every supported exchange id in invocation order.
var Exchanges = []string{"binance", "bybit", "okx", "kucoin", "kraken", "zoomex", "htx", "hyperliquid"}

const (
	defaultAddr             = ":8080"
	defaultQuote            = "USDT"
	defaultPriceTimeout     = 10 * time.Second
	defaultExchangeTimeout  = 30 * time.Second
	defaultScheduleInterval = time.Hour
	defaultStoreBackend     = "sqlite"
	defaultSQLiteDSN        = "./data/snapshots.db"
	defaultWALDir           = "./wal/snapshots"
	defaultUTCOffsetHours   = 8
	defaultHistoryLimit     = 90
	defaultRequestsPerSec   = 10
)

type Config struct {
	Addr     string
	Once     bool
	LogLevel string

	Quote           string
	PriceTimeout    time.Duration
	ExchangeTimeout time.Duration
	RequestsPerSec  float64

	Exchanges   []ExchangeConfig
	Credentials map[string]domain.Credentials

	PriceCache PriceCacheConfig
	Store      StoreConfig
	Schedule   ScheduleConfig
}

// ExchangeConfig per-exchange overrides.
type ExchangeConfig struct {
	Name    string
	Enabled bool
	BaseURL string
	// SubaccountLabel names the subaccount reached through a subaccount-scoped key.
	SubaccountLabel string
}

type PriceCacheConfig struct {
	// Backend is "", "memory" or "redis". Empty disables caching.
	Backend       string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type StoreConfig struct {
	// Backend is one of sqlite, mysql, postgres, wal or none.
	Backend         string
	DSN             string
	Dir             string
	UTCOffsetHours  int
	HistoryLimit    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// Location returns the fixed zone snapshots are bucketed in.
func (s StoreConfig) Location() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", s.UTCOffsetHours), s.UTCOffsetHours*60*60)
}

type ScheduleConfig struct {
	Enabled  bool
	Interval time.Duration
}

// ConfigTmp is the on-disk yaml layout. Durations are strings so that typos are reported with context.
type ConfigTmp struct {
	Addr            string            `yaml:"addr"`
	LogLevel        string            `yaml:"log_level"`
	Quote           string            `yaml:"quote"`
	PriceTimeout    string            `yaml:"price_timeout"`
	ExchangeTimeout string            `yaml:"exchange_timeout"`
	RequestsPerSec  float64           `yaml:"requests_per_sec,omitempty"`
	Exchanges       []ExchangeTmp     `yaml:"exchanges,omitempty"`
	PriceCache      PriceCacheTmp     `yaml:"price_cache"`
	Store           StoreTmp          `yaml:"store"`
	Schedule        ScheduleTmp       `yaml:"schedule"`
	Env             map[string]string `yaml:"env,omitempty"`
}

type ExchangeTmp struct {
	Name            string `yaml:"name"`
	Enabled         *bool  `yaml:"enabled,omitempty"`
	BaseURL         string `yaml:"base_url,omitempty"`
	SubaccountLabel string `yaml:"subaccount_label,omitempty"`
}

type PriceCacheTmp struct {
	Backend       string `yaml:"backend,omitempty"`
	TTL           string `yaml:"ttl,omitempty"`
	RedisAddr     string `yaml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty"`
}

type StoreTmp struct {
	Backend         string `yaml:"backend,omitempty"`
	DSN             string `yaml:"dsn,omitempty"`
	Dir             string `yaml:"dir,omitempty"`
	UTCOffsetHours  *int   `yaml:"utc_offset_hours,omitempty"`
	HistoryLimit    int    `yaml:"history_limit,omitempty"`
	MaxOpenConns    int    `yaml:"max_open_conns,omitempty"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime,omitempty"`
}

type ScheduleTmp struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	Interval string `yaml:"interval,omitempty"`
}

// Get reads flags, the optional yaml file and credentials from the environment.
func Get() (Config, Flags, error) {
	flags := parseFlags(os.Args[1:])

	// a missing .env is fine, credentials may come from the real environment
	if err := godotenv.Load(flags.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, flags, errors.Wrapf(err, "load %s", flags.EnvFile)
	}

	var (
		conf Config
		err  error
	)
	if flags.ConfigPath != "" {
		conf, err = FromFile(flags.ConfigPath)
	} else {
		conf, err = fromTmp(ConfigTmp{})
	}
	if err != nil {
		return Config{}, flags, err
	}

	if flags.Addr != "" {
		conf.Addr = flags.Addr
	}
	conf.Once = flags.Once
	conf.Credentials = CredentialsFromEnv(os.Getenv)

	return conf, flags, nil
}

// FromFile reads and parses a yaml config file. Credentials are not loaded.
func FromFile(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(f)
}

// Parse decodes a yaml document and applies defaults.
func Parse(data []byte) (Config, error) {
	var tmp ConfigTmp
	if err := yaml.Unmarshal(data, &tmp); err != nil {
		return Config{}, errors.Wrap(err, "decode yaml config")
	}
	for k, v := range tmp.Env {
		if os.Getenv(k) == "" {
			os.Setenv(k, v)
		}
	}
	return fromTmp(tmp)
}

func fromTmp(c ConfigTmp) (Config, error) {
	conf := Config{
		Addr:           orDefault(c.Addr, defaultAddr),
		LogLevel:       orDefault(c.LogLevel, "info"),
		Quote:          strings.ToUpper(orDefault(c.Quote, defaultQuote)),
		RequestsPerSec: c.RequestsPerSec,
	}
	if conf.RequestsPerSec <= 0 {
		conf.RequestsPerSec = defaultRequestsPerSec
	}

	var err error
	if conf.PriceTimeout, err = parseDuration("price_timeout", c.PriceTimeout, defaultPriceTimeout); err != nil {
		return Config{}, err
	}
	if conf.ExchangeTimeout, err = parseDuration("exchange_timeout", c.ExchangeTimeout, defaultExchangeTimeout); err != nil {
		return Config{}, err
	}

	if conf.Exchanges, err = parseExchanges(c.Exchanges); err != nil {
		return Config{}, err
	}

	conf.PriceCache = PriceCacheConfig{
		Backend:       strings.ToLower(c.PriceCache.Backend),
		RedisAddr:     orDefault(c.PriceCache.RedisAddr, "localhost:6379"),
		RedisPassword: c.PriceCache.RedisPassword,
		RedisDB:       c.PriceCache.RedisDB,
	}
	switch conf.PriceCache.Backend {
	case "", "memory", "redis":
	default:
		return Config{}, fmt.Errorf("incorrect 'price_cache.backend' param in yaml config: %s", c.PriceCache.Backend)
	}
	if conf.PriceCache.TTL, err = parseDuration("price_cache.ttl", c.PriceCache.TTL, 0); err != nil {
		return Config{}, err
	}

	if conf.Store, err = parseStore(c.Store); err != nil {
		return Config{}, err
	}

	conf.Schedule = ScheduleConfig{Enabled: true}
	if c.Schedule.Enabled != nil {
		conf.Schedule.Enabled = *c.Schedule.Enabled
	}
	if conf.Schedule.Interval, err = parseDuration("schedule.interval", c.Schedule.Interval, defaultScheduleInterval); err != nil {
		return Config{}, err
	}
	if conf.Schedule.Interval <= 0 {
		return Config{}, fmt.Errorf("incorrect 'schedule.interval' param in yaml config: must be positive")
	}

	return conf, nil
}

func parseExchanges(list []ExchangeTmp) ([]ExchangeConfig, error) {
	byName := make(map[string]ExchangeTmp, len(list))
	for _, e := range list {
		name := strings.ToLower(strings.TrimSpace(e.Name))
		if !isKnownExchange(name) {
			return nil, fmt.Errorf("incorrect 'exchanges' param in yaml config: unknown exchange %q", e.Name)
		}
		byName[name] = e
	}

	out := make([]ExchangeConfig, 0, len(Exchanges))
	for _, name := range Exchanges {
		ec := ExchangeConfig{Name: name, Enabled: true}
		if e, ok := byName[name]; ok {
			if e.Enabled != nil {
				ec.Enabled = *e.Enabled
			}
			ec.BaseURL = strings.TrimRight(e.BaseURL, "/")
			ec.SubaccountLabel = e.SubaccountLabel
		}
		out = append(out, ec)
	}
	return out, nil
}

func parseStore(s StoreTmp) (StoreConfig, error) {
	conf := StoreConfig{
		Backend:        strings.ToLower(orDefault(s.Backend, defaultStoreBackend)),
		DSN:            s.DSN,
		Dir:            orDefault(s.Dir, defaultWALDir),
		UTCOffsetHours: defaultUTCOffsetHours,
		HistoryLimit:   s.HistoryLimit,
		MaxOpenConns:   s.MaxOpenConns,
	}
	if s.UTCOffsetHours != nil {
		conf.UTCOffsetHours = *s.UTCOffsetHours
	}
	if conf.UTCOffsetHours < -12 || conf.UTCOffsetHours > 14 {
		return StoreConfig{}, fmt.Errorf("incorrect 'store.utc_offset_hours' param in yaml config: %d", conf.UTCOffsetHours)
	}
	if conf.HistoryLimit <= 0 {
		conf.HistoryLimit = defaultHistoryLimit
	}

	if conf.Backend == "postgresql" {
		conf.Backend = "postgres"
	}

	switch conf.Backend {
	case "sqlite":
		conf.DSN = orDefault(conf.DSN, defaultSQLiteDSN)
	case "mysql", "postgres":
		if conf.DSN == "" {
			return StoreConfig{}, fmt.Errorf("'store.dsn' is required for %s backend", conf.Backend)
		}
	case "wal", "none":
	default:
		return StoreConfig{}, fmt.Errorf("incorrect 'store.backend' param in yaml config: %s", s.Backend)
	}

	var err error
	if conf.ConnMaxLifetime, err = parseDuration("store.conn_max_lifetime", s.ConnMaxLifetime, 0); err != nil {
		return StoreConfig{}, err
	}
	return conf, nil
}

// CredentialsFromEnv collects <EXCHANGE>_API_KEY style variables for every known exchange.
func CredentialsFromEnv(getenv func(string) string) map[string]domain.Credentials {
	out := make(map[string]domain.Credentials, len(Exchanges))
	for _, name := range Exchanges {
		prefix := strings.ToUpper(name)
		out[name] = domain.Credentials{
			APIKey:       getenv(prefix + "_API_KEY"),
			APISecret:    getenv(prefix + "_API_SECRET"),
			Passphrase:   getenv(prefix + "_PASSPHRASE"),
			SubAPIKey:    getenv(prefix + "_SUB_API_KEY"),
			SubAPISecret: getenv(prefix + "_SUB_API_SECRET"),
		}
	}

	// hyperliquid signs with a wallet key; the address is optional and derived when absent
	hl := out["hyperliquid"]
	if pk := getenv("HYPERLIQUID_PRIVATE_KEY"); pk != "" {
		hl.APISecret = pk
	}
	if addr := getenv("HYPERLIQUID_ACCOUNT_ADDRESS"); addr != "" {
		hl.APIKey = addr
	}
	out["hyperliquid"] = hl

	return out
}

func isKnownExchange(name string) bool {
	for _, known := range Exchanges {
		if known == name {
			return true
		}
	}
	return false
}

func parseDuration(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("incorrect '%s' param in yaml config (correct format is 30s), error: %w", field, err)
	}
	return d, nil
}

func orDefault(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
