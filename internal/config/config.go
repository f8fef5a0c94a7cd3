// Package config loads the archive core's environment-variable driven
// configuration (spec §6 "Environment variables") and watches the
// provider-handle registry file for hot reload.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the full set of environment-driven knobs the core reads.
type Config struct {
	MasterSecret string // master key secret

	StorageRoot string // staging root for scratch directories
	CacheRoot   string

	ChunkSizeBytes int

	UploadPartsConcurrency int
	UploadRetryMax         int
	UploadRetryBaseMs      int
	UploadRetryMaxMs       int

	DiskSoftLimitGB float64
	DiskHardLimitGB float64

	WorkerConcurrency      int
	WorkerPollInterval     time.Duration
	ProcessingStaleMinutes int

	CacheDeleteAfterUpload bool

	BundleSingleFileBytes int64
	BundleMaxBytes        int64

	RetentionDays int

	ProviderHandlesFile string // YAML seed file, hot-reloaded via fsnotify

	AllowMirrorReadFallback bool

	CoordinationRedisAddr string

	AdminHTTPAddr string // listen address for /health, /ready, /live, /metrics

	Hardware HardwareConfig
	Audit    AuditConfig
}

// HardwareConfig mirrors the teacher's hardware-acceleration toggles.
type HardwareConfig struct {
	EnableAESNI    bool
	EnableARMv8AES bool
}

// AuditSinkConfig selects where audit events are written.
type AuditSinkConfig struct {
	Type          string // "stdout", "file", "http"
	FilePath      string
	Endpoint      string
	Headers       map[string]string
	BatchSize     int
	FlushInterval time.Duration
	RetryCount    int
	RetryBackoff  time.Duration
}

// AuditConfig configures internal/audit.
type AuditConfig struct {
	Enabled            bool
	MaxEvents          int
	RedactMetadataKeys []string
	Sink               AuditSinkConfig
}

// Load reads every knob from the environment, applying the spec's
// defaults (§4.1 backoff defaults, §4.3 stale-processing default, §4.7
// poll interval default).
func Load() Config {
	return Config{
		MasterSecret: getEnv("MASTER_SECRET", ""),

		StorageRoot: getEnv("STORAGE_ROOT", "/var/lib/splitstore/staging"),
		CacheRoot:   getEnv("CACHE_ROOT", "/var/lib/splitstore/cache"),

		ChunkSizeBytes: getEnvInt("CHUNK_SIZE_BYTES", 8*1024*1024),

		UploadPartsConcurrency: getEnvInt("UPLOAD_PARTS_CONCURRENCY", 4),
		UploadRetryMax:         getEnvInt("UPLOAD_RETRY_MAX", 5),
		UploadRetryBaseMs:      getEnvInt("UPLOAD_RETRY_BASE_MS", 1500),
		UploadRetryMaxMs:       getEnvInt("UPLOAD_RETRY_MAX_MS", 15000),

		DiskSoftLimitGB: getEnvFloat("DISK_SOFT_LIMIT_GB", 10),
		DiskHardLimitGB: getEnvFloat("DISK_HARD_LIMIT_GB", 2),

		WorkerConcurrency:      getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerPollInterval:     time.Duration(getEnvInt("WORKER_POLL_MS", 2000)) * time.Millisecond,
		ProcessingStaleMinutes: getEnvInt("PROCESSING_STALE_MINUTES", 30),

		CacheDeleteAfterUpload: getEnvBool("CACHE_DELETE_AFTER_UPLOAD", true),

		BundleSingleFileBytes: int64(getEnvInt("BUNDLE_SINGLE_FILE_BYTES", 64*1024*1024)),
		BundleMaxBytes:        int64(getEnvInt("BUNDLE_MAX_BYTES", 256*1024*1024)),

		RetentionDays: getEnvInt("TRASH_RETENTION_DAYS", 30),

		ProviderHandlesFile: getEnv("PROVIDER_HANDLES_FILE", ""),

		AllowMirrorReadFallback: getEnvBool("ALLOW_MIRROR_READ_FALLBACK", false),

		CoordinationRedisAddr: getEnv("COORD_REDIS_ADDR", ""),

		AdminHTTPAddr: getEnv("ADMIN_HTTP_ADDR", ":9090"),

		Hardware: HardwareConfig{
			EnableAESNI:    getEnvBool("ENABLE_AESNI", true),
			EnableARMv8AES: getEnvBool("ENABLE_ARMV8_AES", true),
		},
		Audit: AuditConfig{
			Enabled:   getEnvBool("AUDIT_ENABLED", true),
			MaxEvents: getEnvInt("AUDIT_MAX_EVENTS", 10000),
			Sink: AuditSinkConfig{
				Type:          getEnv("AUDIT_SINK_TYPE", "stdout"),
				FilePath:      getEnv("AUDIT_SINK_FILE", ""),
				Endpoint:      getEnv("AUDIT_SINK_ENDPOINT", ""),
				BatchSize:     getEnvInt("AUDIT_SINK_BATCH_SIZE", 100),
				FlushInterval: time.Duration(getEnvInt("AUDIT_SINK_FLUSH_MS", 5000)) * time.Millisecond,
				RetryCount:    getEnvInt("AUDIT_SINK_RETRY_COUNT", 3),
				RetryBackoff:  time.Duration(getEnvInt("AUDIT_SINK_RETRY_BACKOFF_MS", 500)) * time.Millisecond,
			},
		},
	}
}

// RetentionCutoff returns the trash retention window as a time.Duration
// (spec §3 Lifecycle: "deleteRequestedAt is set... by... automatic
// retention expiry (>=30 days in trash)").
func (c Config) RetentionCutoff() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
