// Package config loads the typed runtime Config for the executor core from
// environment variables, grounded on the teacher's config.go/env.go
// getEnv*-with-defaults idiom — config loading itself stays dependency-free
// stdlib (no env-file format or CLI flag library appears anywhere in the
// example pack for this concern, so there is no third-party idiom to
// inherit here; see DESIGN.md).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds every runtime knob the demo entrypoint wires into the core
// components (§6, §9).
type Config struct {
	HTTPPort int

	DatabasePath string

	LogLevel  string
	LogPretty bool

	AdapterTimeout time.Duration

	MonitorInterval    time.Duration
	MaxPriceAge        time.Duration
	MonitorConcurrency int

	Whitelist              []string
	CooldownAfterClose     time.Duration
	MaxTradesPerDay        int
	MaxDailyLossQuote      decimal.Decimal
	MaxConcurrentPositions int

	TrailingArmPct  decimal.Decimal
	MaxHoldDuration time.Duration

	DefaultContractSize decimal.Decimal
	DefaultMinSize      int64
	RoundUpToMinSize    bool

	// EntryPriceCapEnabled treats a signal's entry_price as a limit cap on
	// a market-style open: the open is rejected if the current mark has
	// already moved past it (§9 Open Question 3).
	EntryPriceCapEnabled bool
}

// FromEnv builds a Config from the process environment, falling back to
// defaults tuned for the demo entrypoint.
func FromEnv() Config {
	return Config{
		HTTPPort:     getEnvInt("PERPEXEC_HTTP_PORT", 8080),
		DatabasePath: getEnv("PERPEXEC_DB_PATH", "perpexec.db"),

		LogLevel:  getEnv("PERPEXEC_LOG_LEVEL", "info"),
		LogPretty: getEnvBool("PERPEXEC_LOG_PRETTY", true),

		AdapterTimeout: getEnvDuration("PERPEXEC_ADAPTER_TIMEOUT", 10*time.Second),

		MonitorInterval:    getEnvDuration("PERPEXEC_MONITOR_INTERVAL", 5*time.Second),
		MaxPriceAge:        getEnvDuration("PERPEXEC_MAX_PRICE_AGE", 30*time.Second),
		MonitorConcurrency: getEnvInt("PERPEXEC_MONITOR_CONCURRENCY", 8),

		Whitelist:              getEnvList("PERPEXEC_SYMBOL_WHITELIST", nil),
		CooldownAfterClose:     getEnvDuration("PERPEXEC_COOLDOWN_AFTER_CLOSE", 0),
		MaxTradesPerDay:        getEnvInt("PERPEXEC_MAX_TRADES_PER_DAY", 0),
		MaxDailyLossQuote:      getEnvDecimal("PERPEXEC_MAX_DAILY_LOSS_QUOTE", decimal.Zero),
		MaxConcurrentPositions: getEnvInt("PERPEXEC_MAX_CONCURRENT_POSITIONS", 0),

		TrailingArmPct:  getEnvDecimal("PERPEXEC_TRAILING_ARM_PCT", decimal.Zero),
		MaxHoldDuration: getEnvDuration("PERPEXEC_MAX_HOLD_DURATION", 0),

		DefaultContractSize: getEnvDecimal("PERPEXEC_DEFAULT_CONTRACT_SIZE", decimal.NewFromInt(1)),
		DefaultMinSize:      int64(getEnvInt("PERPEXEC_DEFAULT_MIN_SIZE", 1)),
		RoundUpToMinSize:    getEnvBool("PERPEXEC_ROUND_UP_TO_MIN_SIZE", false),

		EntryPriceCapEnabled: getEnvBool("PERPEXEC_ENTRY_PRICE_CAP_ENABLED", true),
	}
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "y", "yes":
		return true
	case "0", "false", "n", "no":
		return false
	default:
		return def
	}
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getEnvDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return def
	}
	return d
}

func getEnvList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
