package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/feichai0017/study-assistant/config"
	"github.com/feichai0017/study-assistant/internal/service/material"
	"github.com/feichai0017/study-assistant/pkg/logger"
	"github.com/feichai0017/study-assistant/pkg/worker"
)

func main() {
	serverCfg := config.GetServerConfig()
	redisCfg := config.GetRedisConfig()

	log, err := logger.NewLogger(
		logger.WithLevel(serverCfg.LogLevel),
		logger.WithEncoding(serverCfg.LogEncoding),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
		logger.WithInitialFields(map[string]interface{}{"service": "study-assistant-worker"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := material.GetService(ctx, log, true)
	if err != nil {
		log.Fatal("Failed to initialize material service", logger.Error(err))
	}
	defer components.Close()

	materialWorker, err := worker.NewMaterialWorker(&worker.Config{
		RedisAddr:       redisCfg.Addr,
		RedisPassword:   redisCfg.Password,
		RedisDB:         redisCfg.DB,
		Concurrency:     serverCfg.WorkerConcurrency,
		Queues:          worker.DefaultQueues(),
		CleanupInterval: serverCfg.CleanupInterval,
	}, components.Service, log)
	if err != nil {
		log.Fatal("Failed to create material worker", logger.Error(err))
	}

	if err := materialWorker.Start(ctx); err != nil {
		log.Fatal("Failed to start worker", logger.Error(err))
	}

	<-ctx.Done()
	log.Info("Shutting down worker...")
	materialWorker.Stop()
}
