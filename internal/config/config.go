package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL     string
	PGDSN      string
	PrivateKey string

	VaultAddress    string
	HookAddress     string
	LockerAddresses []string

	StartBlock      uint64
	BatchSize       uint64
	PollInterval    time.Duration
	CollectInterval time.Duration
	SweepDelay      time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration

	LagDegraded  uint64
	LagUnhealthy uint64

	LogLevel string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FEELEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("poll-interval", 15*time.Second)
	v.SetDefault("collect-interval", time.Minute)
	v.SetDefault("sweep-delay", 500*time.Millisecond)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("lag-degraded", uint64(10))
	v.SetDefault("lag-unhealthy", uint64(100))
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
		PGDSN:           v.GetString("pg-dsn"),
		PrivateKey:      v.GetString("private-key"),
		VaultAddress:    v.GetString("vault"),
		HookAddress:     v.GetString("hook"),
		LockerAddresses: getStringSlice(v, "locker"),
		StartBlock:      v.GetUint64("start-block"),
		BatchSize:       v.GetUint64("batch-size"),
		PollInterval:    v.GetDuration("poll-interval"),
		CollectInterval: v.GetDuration("collect-interval"),
		SweepDelay:      v.GetDuration("sweep-delay"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		LagDegraded:     v.GetUint64("lag-degraded"),
		LagUnhealthy:    v.GetUint64("lag-unhealthy"),
		LogLevel:        v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate fails fast on missing required values, before any loop starts.
// requireSigner additionally demands the signing key for write paths.
func (c Config) Validate(requireSigner bool) error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.VaultAddress == "" {
		return fmt.Errorf("vault address is required")
	}
	if !common.IsHexAddress(c.VaultAddress) {
		return fmt.Errorf("invalid vault address: %s", c.VaultAddress)
	}
	if c.HookAddress != "" && !common.IsHexAddress(c.HookAddress) {
		return fmt.Errorf("invalid hook address: %s", c.HookAddress)
	}
	for _, addr := range c.LockerAddresses {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid locker address: %s", addr)
		}
	}
	if requireSigner {
		if c.PrivateKey == "" {
			return fmt.Errorf("private key is required")
		}
		if len(c.LockerAddresses) == 0 {
			return fmt.Errorf("at least one locker address is required")
		}
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
