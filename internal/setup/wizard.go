package setup

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/cexbalance/config"
)

// Answers are the values collected by the wizard.
type Answers struct {
	Exchanges []string
	// Secrets maps environment variable names to values.
	Secrets          map[string]string
	StoreBackend     string
	StoreTarget      string
	ScheduleInterval string
	PriceCache       string
	PriceCacheTTL    string
	RedisAddr        string
}

// CredentialField is one secret asked for an exchange.
type CredentialField struct {
	Env      string
	Title    string
	Optional bool
}

// CredentialFields lists the environment variables an exchange reads its credentials from.
func CredentialFields(exchange string) []CredentialField {
	if exchange == "hyperliquid" {
		return []CredentialField{
			{Env: "HYPERLIQUID_PRIVATE_KEY", Title: "Hyperliquid wallet private key (hex)"},
			{Env: "HYPERLIQUID_ACCOUNT_ADDRESS", Title: "Hyperliquid account address", Optional: true},
		}
	}

	prefix := strings.ToUpper(exchange)
	fields := []CredentialField{
		{Env: prefix + "_API_KEY", Title: exchange + " API key"},
		{Env: prefix + "_API_SECRET", Title: exchange + " API secret"},
	}
	switch exchange {
	case "okx", "kucoin":
		fields = append(fields, CredentialField{Env: prefix + "_PASSPHRASE", Title: exchange + " API passphrase"})
	case "bybit":
		fields = append(fields,
			CredentialField{Env: prefix + "_SUB_API_KEY", Title: "bybit sub-account API key", Optional: true},
			CredentialField{Env: prefix + "_SUB_API_SECRET", Title: "bybit sub-account API secret", Optional: true},
		)
	}
	return fields
}

// BuildConfig turns the answers into the yaml layout and validates it.
func BuildConfig(a Answers) (config.ConfigTmp, error) {
	selected := make(map[string]bool, len(a.Exchanges))
	for _, name := range a.Exchanges {
		selected[name] = true
	}

	exchanges := make([]config.ExchangeTmp, 0, len(config.Exchanges))
	for _, name := range config.Exchanges {
		enabled := selected[name]
		exchanges = append(exchanges, config.ExchangeTmp{Name: name, Enabled: &enabled})
	}

	tmp := config.ConfigTmp{
		Exchanges: exchanges,
		Store:     config.StoreTmp{Backend: a.StoreBackend},
		Schedule:  config.ScheduleTmp{Interval: a.ScheduleInterval},
		PriceCache: config.PriceCacheTmp{
			Backend: a.PriceCache,
			TTL:     a.PriceCacheTTL,
		},
	}

	switch a.StoreBackend {
	case "wal":
		tmp.Store.Dir = a.StoreTarget
	case "sqlite", "mysql", "postgres":
		tmp.Store.DSN = a.StoreTarget
	}
	if a.PriceCache == "redis" {
		tmp.PriceCache.RedisAddr = a.RedisAddr
	}

	data, err := yaml.Marshal(tmp)
	if err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "generate yaml")
	}
	if _, err := config.Parse(data); err != nil {
		return config.ConfigTmp{}, err
	}

	return tmp, nil
}

// WriteFiles saves the yaml config and merges the secrets into the env file.
func WriteFiles(tmp config.ConfigTmp, secrets map[string]string, configPath, envPath string) error {
	data, err := yaml.Marshal(tmp)
	if err != nil {
		return errors.Wrap(err, "generate yaml")
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.Wrap(err, "save config file")
	}

	env, err := godotenv.Read(envPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(err, "read %s", envPath)
		}
		env = make(map[string]string)
	}
	for k, v := range secrets {
		if v != "" {
			env[k] = v
		}
	}
	if len(env) == 0 {
		return nil
	}

	if err := godotenv.Write(env, envPath); err != nil {
		return errors.Wrapf(err, "save %s", envPath)
	}
	return os.Chmod(envPath, 0o600)
}

func validateDuration(s string) error {
	if s == "" {
		return nil
	}
	_, err := time.ParseDuration(s)
	return err
}
