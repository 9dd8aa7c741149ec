package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Oracle struct {
	APIKey   string
	Model    string
	Attempts int
	Timeout  time.Duration
	Backoff  time.Duration
}

type Matching struct {
	// PerfectThreshold is the minimum oracle confidence for a
	// PERFECT_MATCH on a single exact-quantity order.
	PerfectThreshold int
	// CallClusterGap bounds consolidation of back-to-back calls from
	// the same client into one evidence window.
	CallClusterGap time.Duration
}

type Store struct {
	DataDir    string
	StagingDir string
}

type Feed struct {
	Brokers     []string
	Topic       string
	GroupID     string
	EventsTopic string
	// DrainInterval paces the outbox broadcaster.
	DrainInterval time.Duration
}

type Config struct {
	Oracle   Oracle
	Matching Matching
	Store    Store
	Feed     Feed
	// AuthorityFile optionally overrides the built-in field authority
	// table. Empty means compiled defaults.
	AuthorityFile string
	LogFile       string
}

func Default() Config {
	return Config{
		Oracle: Oracle{
			Model:    "gemini-2.5-flash",
			Attempts: 3,
			Timeout:  45 * time.Second,
			Backoff:  2 * time.Second,
		},
		Matching: Matching{
			PerfectThreshold: 90,
			CallClusterGap:   3 * time.Minute,
		},
		Store: Store{
			DataDir:    "data/records",
			StagingDir: "data/staging",
		},
		Feed: Feed{
			Brokers:       []string{"localhost:9092"},
			Topic:         "surveillance.evidence",
			GroupID:       "argus",
			EventsTopic:   "surveillance.record-events",
			DrainInterval: 2 * time.Second,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("ORACLE_MODEL"); v != "" {
		cfg.Oracle.Model = v
	}
	if v := os.Getenv("ORACLE_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Oracle.Attempts = n
		}
	}
	if v := os.Getenv("ORACLE_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Oracle.Timeout = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv("MATCH_PERFECT_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Matching.PerfectThreshold = n
		}
	}
	if v := os.Getenv("MATCH_CALL_CLUSTER_GAP_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Matching.CallClusterGap = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Store.DataDir = v
	}
	if v := os.Getenv("STAGING_DIR"); v != "" {
		cfg.Store.StagingDir = v
	}
	if v := os.Getenv("AUTHORITY_FILE"); v != "" {
		cfg.AuthorityFile = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Feed.Brokers = splitCSV(v)
	}
	if v := os.Getenv("KAFKA_EVIDENCE_TOPIC"); v != "" {
		cfg.Feed.Topic = v
	}
	if v := os.Getenv("KAFKA_GROUP_ID"); v != "" {
		cfg.Feed.GroupID = v
	}
	if v := os.Getenv("KAFKA_EVENTS_TOPIC"); v != "" {
		cfg.Feed.EventsTopic = v
	}
	if v := os.Getenv("OUTBOX_DRAIN_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Feed.DrainInterval = time.Duration(ms) * time.Millisecond
		}
	}

	return cfg
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
