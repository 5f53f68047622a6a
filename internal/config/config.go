// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strconv"
	"time"
)

// Config
//
// Process-wide settings read from the environment once at startup by
// Load(). Values are read-only afterwards.
type Config struct {

	// ---------------------------
	// AWS / S3
	// ---------------------------

	AWSRegion    string // e.g. us-east-1
	BucketPrefix string // bucket name = BucketPrefix + site name

	// SDK retries are pinned to 0; S3AppRetries is the only retry knob so
	// SDK and application backoff never stack.
	S3Timeout    time.Duration // per-attempt timeout for List/Get
	S3AppRetries int           // attempts per S3 call (>=1)
	S3Endpoint   string        // optional S3-compatible endpoint, path-style

	// ---------------------------
	// Database
	// ---------------------------

	DatabaseURL string // pgx DSN
	EventsTable string // destination table, optionally schema-qualified

	// ---------------------------
	// Pipeline
	// ---------------------------

	Concurrency    int    // default fetch degree of parallelism
	PipelineConfig string // optional YAML with stage parameters

	// ---------------------------
	// Identity / logging / metrics
	// ---------------------------

	ServiceName    string
	InstanceID     string // hostname, random hex fallback
	LogLevel       string // zerolog level name
	LogPretty      bool   // console writer instead of JSON
	LogSampleN     uint32 // keep 1/N debug+info lines; 0 or 1 disables sampling
	PushgatewayURL string // empty disables push

	// ---------------------------
	// HTTP trigger server
	// ---------------------------

	HTTPAddr     string
	TriggerQueue int   // buffered notifications before 503
	MaxBodySize  int64 // largest accepted notification body, bytes
}

// Load
//
// Reads Config from the environment. Missing required values or
// malformed numbers terminate the process (fail-fast).
func Load() Config {
	return Config{
		AWSRegion:    envOr("AWS_REGION", "us-east-1"),
		BucketPrefix: envOr("BUCKET_PREFIX", "lnl-snowplow-"),
		S3Timeout:    durOr("S3_TIMEOUT", 30*time.Second),
		S3AppRetries: intOr("S3_APP_RETRIES", 3),
		S3Endpoint:   os.Getenv("S3_ENDPOINT"),

		DatabaseURL: must("DATABASE_URL"),
		EventsTable: envOr("EVENTS_TABLE", "event"),

		Concurrency:    intOr("CONCURRENCY", 4),
		PipelineConfig: os.Getenv("PIPELINE_CONFIG"),

		ServiceName:    envOr("SERVICE_NAME", "ata-pipeline"),
		InstanceID:     fallbackInstanceID(),
		LogLevel:       envOr("LOG_LEVEL", "info"),
		LogPretty:      boolOr("LOG_PRETTY", false),
		LogSampleN:     uint32(intOr("LOG_SAMPLE_N", 0)),
		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),

		HTTPAddr:     envOr("HTTP_ADDR", ":8080"),
		TriggerQueue: intOr("TRIGGER_QUEUE", 64),
		MaxBodySize:  int64(intOr("MAX_BODY_SIZE", 1<<20)),
	}
}

// must / envOr / intOr / durOr / boolOr
//
// Required variables exit the process when empty. Optional ones fall
// back to a default when empty; a present but malformed value is
// still fatal.
func must(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("missing required env: %s", key)
	}
	return v
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int env %s=%q: %v", key, v, err)
	}
	return n
}

func durOr(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration env %s=%q: %v", key, v, err)
	}
	return d
}

func boolOr(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("invalid bool env %s=%q: %v", key, v, err)
	}
	return b
}

// fallbackInstanceID
//
// Identifies this process in logs.
//   - default: hostname (Lambda/ECS hostnames are unique per sandbox/task)
//   - fallback: 12 random hex chars
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
