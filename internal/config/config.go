package config

import (
	"os"
	"strconv"
)

// Config holds all runtime settings. Every tunable the learning and
// rate-limiting code depends on is surfaced here so deployments can
// adjust them without a rebuild.
type Config struct {
	Port      string
	DBPath    string
	APIKey    string
	JWTSecret string

	// Rate limiting (write path only)
	RateLimitEnabled bool
	RateLimitPerHour int

	// Idempotency
	IdempotencyTTLHours int

	// Ingestion validation
	MaxSegmentsPerRide int
	MapmatchMinConf    float64
	OutlierSigma       float64
	ObservationMaxAge  int // seconds; observations older than this are stale
	ClockSkewTolerance int // seconds of future drift tolerated

	// Learning
	BlendN0  int     // pseudo-count of trust given to the schedule baseline
	EMAAlpha float64 // fixed EMA decay constant

	// ETA confidence thresholds (sample counts)
	ConfMediumN int
	ConfHighN   int

	ServerVersion string
}

// Load reads configuration from the environment, applying defaults
// for anything unset.
func Load() *Config {
	return &Config{
		Port:      getString("PORT", ":8080"),
		DBPath:    getString("DB_PATH", "./data/transit.db"),
		APIKey:    getString("API_KEY", ""),
		JWTSecret: getString("JWT_SECRET", ""),

		RateLimitEnabled: getBool("RATE_LIMIT_ENABLED", true),
		RateLimitPerHour: getInt("RATE_LIMIT_PER_HOUR", 500),

		IdempotencyTTLHours: getInt("IDEMPOTENCY_TTL_HOURS", 24),

		MaxSegmentsPerRide: getInt("MAX_SEGMENTS_PER_RIDE", 50),
		MapmatchMinConf:    getFloat("MAPMATCH_MIN_CONF", 0.5),
		OutlierSigma:       getFloat("OUTLIER_SIGMA", 3.0),
		ObservationMaxAge:  getInt("OBSERVATION_MAX_AGE_SEC", 7*24*3600),
		ClockSkewTolerance: getInt("CLOCK_SKEW_TOLERANCE_SEC", 60),

		BlendN0:  getInt("BLEND_N0", 20),
		EMAAlpha: getFloat("EMA_ALPHA", 0.1),

		ConfMediumN: getInt("ETA_CONF_MEDIUM_N", 5),
		ConfHighN:   getInt("ETA_CONF_HIGH_N", 20),

		ServerVersion: getString("SERVER_VERSION", "0.2.0"),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
