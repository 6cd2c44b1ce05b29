package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
// The private key is only ever read from POSITIONER_PRIVATE_KEY or a config
// file, never from a flag.
type Config struct {
	RPCURL          string
	PrivateKey      string
	Factory         string
	Router          string
	Quoter          string
	PositionManager string

	SlippageBps     uint32
	MaxGasPriceGwei uint64
	DeadlineMinutes uint32
	Buffer          string
	DeficiencyLimit string
	QuoteMaxAge     time.Duration

	MaxRetries   int
	RetryBackoff time.Duration
	Out          string
	PgDSN        string
	LogLevel     string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POSITIONER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("slippage-bps", uint32(50))
	v.SetDefault("deadline-min", uint32(10))
	v.SetDefault("buffer", "0.01")
	v.SetDefault("deficiency-limit", "0.5")
	v.SetDefault("quote-max-age", time.Minute)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("out", "./data/executions.jsonl")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:          v.GetString("rpc"),
		PrivateKey:      v.GetString("private-key"),
		Factory:         v.GetString("factory"),
		Router:          v.GetString("router"),
		Quoter:          v.GetString("quoter"),
		PositionManager: v.GetString("position-manager"),
		SlippageBps:     uint32(v.GetUint64("slippage-bps")),
		MaxGasPriceGwei: v.GetUint64("max-gas-gwei"),
		DeadlineMinutes: uint32(v.GetUint64("deadline-min")),
		Buffer:          v.GetString("buffer"),
		DeficiencyLimit: v.GetString("deficiency-limit"),
		QuoteMaxAge:     v.GetDuration("quote-max-age"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		Out:             v.GetString("out"),
		PgDSN:           v.GetString("pg-dsn"),
		LogLevel:        v.GetString("log-level"),
	}

	return cfg, nil
}
