package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/study-assistant/internal/service/material"
	"github.com/feichai0017/study-assistant/pkg/logger"
	"github.com/feichai0017/study-assistant/pkg/queue"
)

// MaterialHandler is the part of the material service the worker drives.
type MaterialHandler interface {
	HandleMaterial(ctx context.Context, task *queue.Task) error
	CleanupTasks(ctx context.Context) error
}

type MaterialWorker struct {
	BaseWorker
	handler MaterialHandler
}

func NewMaterialWorker(cfg *Config, handler MaterialHandler, log logger.Logger) (*MaterialWorker, error) {
	if cfg == nil || cfg.RedisAddr == "" {
		return nil, errors.New("worker: redis address is required")
	}
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = DefaultQueues()
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Minute
	}
	log = log.Named("worker")

	server := asynq.NewServer(cfg.redisOpt(), asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      queues,
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			return time.Duration(n) * retryDelay
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.Warn("Task attempt failed",
				logger.String("type", task.Type()),
				logger.Int("retried", retried),
				logger.Int("maxRetry", maxRetry),
				logger.Error(err),
			)
		}),
	})

	w := &MaterialWorker{
		BaseWorker: BaseWorker{
			server: server,
			mux:    asynq.NewServeMux(),
			logger: log,
		},
		handler: handler,
	}

	if cfg.CleanupInterval > 0 {
		w.scheduler = asynq.NewScheduler(cfg.redisOpt(), &asynq.SchedulerOpts{})
		cron := fmt.Sprintf("@every %s", cfg.CleanupInterval)
		if _, err := w.scheduler.Register(cron, asynq.NewTask(queue.TaskTypeMaterialCleanup, nil), asynq.Queue("low")); err != nil {
			return nil, fmt.Errorf("failed to schedule cleanup: %w", err)
		}
	}

	w.registerHandlers()
	return w, nil
}

func (w *MaterialWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeMaterialProcess, w.handleMaterialProcess)
	w.mux.HandleFunc(queue.TaskTypeMaterialCleanup, w.handleCleanup)
}

func (w *MaterialWorker) handleMaterialProcess(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
	}

	w.logger.Info("Processing material task",
		logger.String("taskId", task.ID),
		logger.Any("metadata", task.Metadata),
	)

	w.writeResult(t, `{"status":"running","progress":0}`)

	if err := w.handler.HandleMaterial(ctx, &task); err != nil {
		if errors.Is(err, material.ErrCancelled) {
			w.writeResult(t, `{"status":"cancelled"}`)
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		w.writeResult(t, fmt.Sprintf(`{"status":"failed","error":%q}`, err.Error()))
		if material.Permanent(err) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	w.writeResult(t, `{"status":"completed","progress":100}`)
	return nil
}

func (w *MaterialWorker) handleCleanup(ctx context.Context, _ *asynq.Task) error {
	return w.handler.CleanupTasks(ctx)
}

// writeResult records progress on the asynq task. Tasks built outside the
// server have no writer.
func (w *MaterialWorker) writeResult(t *asynq.Task, body string) {
	rw := t.ResultWriter()
	if rw == nil {
		return
	}
	if _, err := rw.Write([]byte(body)); err != nil {
		w.logger.Error("Failed to write task result", logger.Error(err))
	}
}

// Start runs the server and scheduler in the background until ctx is done or
// Stop is called.
func (w *MaterialWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}
	w.logger.Info("Worker started")

	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}
