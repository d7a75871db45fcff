package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envHeadless        = "QA_HEADLESS"
	envHealMode        = "HEAL_MODE"
	envMaxHealAttempts = "MAX_HEAL_ATTEMPTS"
	envCandidateTopN   = "CANDIDATE_TOP_N"
	envFastTimeout     = "FAST_TIMEOUT_MS"
	envActionTimeout   = "DEFAULT_TIMEOUT_MS"
	envNavTimeout      = "NAV_TIMEOUT_MS"

	defaultFastTimeout   = 1 * time.Second
	defaultActionTimeout = 10 * time.Second
	defaultNavTimeout    = 30 * time.Second
	defaultMaxAttempts   = 2
	defaultTopN          = 8

	// Minimum similarity a ranked candidate must reach before the healer
	// installs it as a replacement target. One threshold on every path.
	defaultMinCandidateScore = 0.30
)

// Config holds every knob the engine reads. It is built once in main and
// passed by value to constructors; nothing mutates it afterwards.
type Config struct {
	Headless bool

	// FastTimeout bounds each individual resolver strategy; ActionTimeout
	// bounds the action performed on a resolved element; NavTimeout bounds
	// full page navigations.
	FastTimeout   time.Duration
	ActionTimeout time.Duration
	NavTimeout    time.Duration

	// HealEnabled gates the model-assisted recovery sub-stage only.
	// Fallback substitution and candidate search always run.
	HealEnabled       bool
	MaxHealAttempts   int
	CandidateTopN     int
	MinCandidateScore float64
}

// Default returns the built-in configuration without consulting the
// environment. Tests start from here.
func Default() Config {
	return Config{
		Headless:          true,
		FastTimeout:       defaultFastTimeout,
		ActionTimeout:     defaultActionTimeout,
		NavTimeout:        defaultNavTimeout,
		HealEnabled:       true,
		MaxHealAttempts:   defaultMaxAttempts,
		CandidateTopN:     defaultTopN,
		MinCandidateScore: defaultMinCandidateScore,
	}
}

// FromEnv overlays environment variables on the defaults.
func FromEnv() Config {
	cfg := Default()
	cfg.Headless = parseBoolEnv(envHeadless, cfg.Headless)
	cfg.HealEnabled = parseModeEnv(envHealMode, cfg.HealEnabled)
	cfg.MaxHealAttempts = parseIntEnv(envMaxHealAttempts, cfg.MaxHealAttempts)
	cfg.CandidateTopN = parseIntEnv(envCandidateTopN, cfg.CandidateTopN)
	cfg.FastTimeout = parseMillisEnv(envFastTimeout, cfg.FastTimeout)
	cfg.ActionTimeout = parseMillisEnv(envActionTimeout, cfg.ActionTimeout)
	cfg.NavTimeout = parseMillisEnv(envNavTimeout, cfg.NavTimeout)
	return cfg
}

func parseBoolEnv(name string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// parseModeEnv accepts the original on/off switch spelling.
func parseModeEnv(name string, def bool) bool {
	return parseBoolEnv(name, def)
}

func parseIntEnv(name string, def int) int {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func parseMillisEnv(name string, def time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	ms, err := strconv.Atoi(val)
	if err != nil || ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
