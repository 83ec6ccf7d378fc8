package config

import (
	"sync"
	"time"
)

var (
	serverOnce   sync.Once
	serverConfig *ServerConfig
)

type ServerConfig struct {
	Addr           string
	UploadDir      string
	ScratchDir     string
	MaxUploadBytes int64
	// ExtractTimeout bounds one document extraction; zero disables it.
	ExtractTimeout           time.Duration
	MaxConcurrentExtractions int
	WorkerConcurrency        int
	// RetentionPeriod is how long queued uploads and results are kept.
	RetentionPeriod time.Duration
	// CleanupInterval is how often the worker applies RetentionPeriod.
	CleanupInterval time.Duration
	// StorageType selects the async upload backend: "s3" or "minio".
	StorageType   string
	LogLevel      string
	LogEncoding   string
	LogOutputPath string
	AllowOrigins  []string
}

func GetServerConfig() *ServerConfig {
	serverOnce.Do(func() {
		loadEnv()
		serverConfig = loadServerConfig()
	})
	return serverConfig
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:                     envString("SERVER_ADDR", ":8080"),
		UploadDir:                envString("UPLOAD_DIR", "uploads"),
		ScratchDir:               envString("SCRATCH_DIR", ""),
		MaxUploadBytes:           envInt64("MAX_UPLOAD_BYTES", 10<<20),
		ExtractTimeout:           envDuration("EXTRACT_TIMEOUT", 60*time.Second),
		MaxConcurrentExtractions: envInt("MAX_CONCURRENT_EXTRACTIONS", 4),
		WorkerConcurrency:        envInt("WORKER_CONCURRENCY", 10),
		RetentionPeriod:          envDuration("RETENTION_PERIOD", 24*time.Hour),
		CleanupInterval:          envDuration("CLEANUP_INTERVAL", time.Hour),
		StorageType:              envString("STORAGE_TYPE", "minio"),
		LogLevel:                 envString("LOG_LEVEL", "info"),
		LogEncoding:              envString("LOG_ENCODING", "json"),
		LogOutputPath:            envString("LOG_OUTPUT_PATH", "logs/app.log"),
		AllowOrigins:             []string{envString("CORS_ALLOW_ORIGIN", "http://localhost:3000")},
	}
}
