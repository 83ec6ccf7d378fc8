package material

import (
	"context"
	"fmt"

	cfg "github.com/feichai0017/study-assistant/config"
	"github.com/feichai0017/study-assistant/internal/agent"
	"github.com/feichai0017/study-assistant/internal/agent/study"
	"github.com/feichai0017/study-assistant/internal/service/history"
	"github.com/feichai0017/study-assistant/internal/utils/validator"
	"github.com/feichai0017/study-assistant/pkg/logger"
	"github.com/feichai0017/study-assistant/pkg/queue"
	"github.com/feichai0017/study-assistant/pkg/storage"
)

// Components are the pieces GetService built from the environment.
type Components struct {
	Service *MaterialService
	History *history.RedisStore
	Queue   *queue.AsynqQueue
}

// Ping checks the redis connection shared by history and task status.
func (c *Components) Ping(ctx context.Context) error {
	return c.Queue.Redis().Ping(ctx).Err()
}

func (c *Components) Close() error {
	return c.Queue.Close()
}

// GetService builds the material service from the environment. When
// requireStorage is false a storage backend that cannot be reached only
// disables the queued endpoints.
func GetService(ctx context.Context, log logger.Logger, requireStorage bool) (*Components, error) {
	server := cfg.GetServerConfig()
	redisCfg := cfg.GetRedisConfig()
	aiCfg := cfg.GetOpenAIConfig()

	generator, err := study.NewGenerator(study.Config{
		APIKey:      aiCfg.APIKey,
		Model:       aiCfg.Model,
		BaseURL:     aiCfg.BaseURL,
		Temperature: aiCfg.Temperature,
		Attempts:    aiCfg.MaxRetries,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	q, err := queue.NewAsynqQueue(&queue.QueueConfig{
		RedisAddr:      redisCfg.Addr,
		RedisPassword:  redisCfg.Password,
		RedisDB:        redisCfg.DB,
		ProcessTimeout: server.ExtractTimeout + aiCfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	store, err := storage.NewStorage(ctx, storage.StorageType(server.StorageType), log)
	if err != nil {
		if requireStorage {
			q.Close()
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		log.Warn("Storage unavailable, queued processing disabled", logger.Error(err))
		store = nil
	}

	hist := history.NewRedisStore(q.Redis(), log)
	deps := Deps{
		Extractor: agent.NewExtractorFactory(agent.ExtractorConfig{
			ScratchDir: server.ScratchDir,
			Timeout:    server.ExtractTimeout,
		}, log),
		Generator: generator,
		Validator: validator.NewDocumentValidator(log, validator.DefaultConfig(server.MaxUploadBytes)),
		History:   hist,
	}
	if store != nil {
		deps.Queue = q
		deps.Storage = store
	}

	svc := NewService(deps, log, &ServiceConfig{
		UploadDir:                server.UploadDir,
		ScratchDir:               server.ScratchDir,
		MaxConcurrentExtractions: server.MaxConcurrentExtractions,
		RetentionPeriod:          server.RetentionPeriod,
	})

	return &Components{Service: svc, History: hist, Queue: q}, nil
}
