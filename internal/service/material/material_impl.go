package material

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/study-assistant/internal/agent/study"
	"github.com/feichai0017/study-assistant/internal/models"
	"github.com/feichai0017/study-assistant/pkg/logger"
	"github.com/feichai0017/study-assistant/pkg/queue"
	"github.com/feichai0017/study-assistant/pkg/storage"
)

// ProcessUpload runs the whole pipeline inside the request: the upload is
// written to UploadDir, extracted, sent to the generator and removed again
// whatever the outcome.
func (s *MaterialService) ProcessUpload(
	ctx context.Context,
	file multipart.File,
	header *multipart.FileHeader,
	action models.Action,
	userID string,
) (*models.StudyResult, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", study.ErrInvalidAction, action)
	}

	s.logger.Info("Processing upload",
		logger.String("filename", header.Filename),
		logger.Int64("size", header.Size),
		logger.String("action", string(action)),
	)

	if err := s.validate(file, header); err != nil {
		return nil, err
	}

	path, err := s.saveUpload(file, header.Filename)
	if err != nil {
		return nil, err
	}
	defer s.removeFile(path)

	result, err := s.run(ctx, path, header.Filename, action)
	if err != nil {
		s.logger.Error("Upload processing failed",
			logger.String("filename", header.Filename),
			logger.Error(err),
		)
		return nil, err
	}

	s.recordHistory(ctx, userID, result)
	return result, nil
}

// Submit stores the upload and queues it for a worker.
func (s *MaterialService) Submit(
	ctx context.Context,
	file multipart.File,
	header *multipart.FileHeader,
	action models.Action,
	userID string,
) (*models.ProcessingTask, error) {
	if s.queue == nil || s.storage == nil {
		return nil, ErrAsyncDisabled
	}
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", study.ErrInvalidAction, action)
	}
	if err := s.validate(file, header); err != nil {
		return nil, err
	}

	taskID := uuid.New().String()
	now := s.now()
	task := &models.ProcessingTask{
		ID:        taskID,
		Status:    models.StatusPending,
		Type:      queue.TaskTypeMaterialProcess,
		Priority:  s.config.QueuePriority,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata: map[string]string{
			"filename": header.Filename,
			"size":     strconv.FormatInt(header.Size, 10),
			"type":     strings.ToLower(filepath.Ext(header.Filename)),
			"action":   string(action),
		},
	}

	fileKey, err := s.storage.Store(ctx, file, storage.UploadKey(taskID, header.Filename))
	if err != nil {
		s.logger.Error("Failed to store file",
			logger.String("filename", header.Filename),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	queueTask := &queue.Task{
		ID:       taskID,
		Type:     task.Type,
		Priority: task.Priority,
		Payload: map[string]interface{}{
			"fileKey": fileKey,
			"userId":  userID,
		},
		Metadata:  task.Metadata,
		CreatedAt: task.CreatedAt,
	}

	if err := s.queue.Enqueue(ctx, queueTask); err != nil {
		s.logger.Error("Failed to enqueue task",
			logger.String("taskId", taskID),
			logger.Error(err),
		)
		s.deleteObject(ctx, fileKey)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.saveStatus(ctx, &queue.TaskStatus{
		TaskID:    taskID,
		Status:    string(models.StatusPending),
		StartedAt: now,
	})

	s.logger.Info("Material task created",
		logger.String("taskId", taskID),
		logger.String("filename", header.Filename),
	)
	return task, nil
}

// SubmitBatch submits every file concurrently. On error the tasks created so
// far are returned alongside it.
func (s *MaterialService) SubmitBatch(ctx context.Context, files []*multipart.FileHeader, action models.Action, userID string) ([]*models.ProcessingTask, error) {
	tasks := make([]*models.ProcessingTask, 0, len(files))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrentExtractions)

	for _, header := range files {
		g.Go(func() error {
			file, err := header.Open()
			if err != nil {
				return fmt.Errorf("failed to open file %s: %w", header.Filename, err)
			}
			defer file.Close()

			task, err := s.Submit(ctx, file, header, action, userID)
			if err != nil {
				return fmt.Errorf("failed to submit file %s: %w", header.Filename, err)
			}

			mu.Lock()
			tasks = append(tasks, task)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return tasks, err
	}
	return tasks, nil
}

// HandleMaterial is the worker side of Submit. The stored upload is removed
// once the task succeeds or fails permanently; retryable failures keep it
// for the next attempt and leave it to CleanupTasks otherwise.
func (s *MaterialService) HandleMaterial(ctx context.Context, task *queue.Task) error {
	if s.queue == nil || s.storage == nil {
		return ErrAsyncDisabled
	}
	if task == nil || task.ID == "" || task.Payload == nil || task.Metadata == nil {
		return fmt.Errorf("%w: missing required data", ErrInvalidTask)
	}

	fileKey, _ := task.Payload["fileKey"].(string)
	userID, _ := task.Payload["userId"].(string)
	fileName := task.Metadata["filename"]
	if fileKey == "" || fileName == "" {
		return fmt.Errorf("%w: missing file reference", ErrInvalidTask)
	}
	action, err := models.ParseAction(task.Metadata["action"])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}

	// asynq retries a task whose context was cancelled, so a cancelled
	// task can come back here.
	if s.cancelled(ctx, task.ID) {
		s.deleteObject(ctx, fileKey)
		return fmt.Errorf("%w: %s", ErrCancelled, task.ID)
	}

	s.logger.Info("Processing material",
		logger.String("taskId", task.ID),
		logger.String("filename", fileName),
		logger.String("action", string(action)),
	)

	start := s.now()
	s.saveStatus(ctx, &queue.TaskStatus{
		TaskID:    task.ID,
		Status:    string(models.StatusRunning),
		Progress:  0.1,
		StartedAt: start,
	})

	meta := models.MaterialMetadata{
		FileName: fileName,
		FileType: task.Metadata["type"],
	}
	if size, err := strconv.ParseInt(task.Metadata["size"], 10, 64); err == nil {
		meta.FileSize = size
	}

	result, err := s.processStored(ctx, fileKey, fileName, action)
	if errors.Is(err, context.Canceled) {
		bg := context.WithoutCancel(ctx)
		if s.cancelled(bg, task.ID) {
			// CancelTask has already recorded the final status.
			s.logger.Info("Material processing cancelled", logger.String("taskId", task.ID))
			s.deleteObject(bg, fileKey)
			return fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		// The worker is shutting down and asynq puts the task back on the
		// queue, so the upload has to survive.
		s.logger.Warn("Material processing interrupted", logger.String("taskId", task.ID))
		s.saveStatus(bg, &queue.TaskStatus{
			TaskID: task.ID,
			Status: string(models.StatusPending),
		})
		return err
	}
	if err != nil {
		s.fail(ctx, task.ID, err, meta, start)
		if Permanent(err) {
			s.deleteObject(ctx, fileKey)
		}
		return err
	}

	s.recordHistory(ctx, userID, result)

	finished := s.now()
	meta.ProcessingTime = finished.Sub(start).Milliseconds()
	meta.ProcessedAt = finished

	processed, err := s.converter.Convert(task.ID, result, meta)
	if err != nil {
		return fmt.Errorf("failed to convert result: %w", err)
	}
	if err := s.storeResult(ctx, processed); err != nil {
		return err
	}
	s.deleteObject(ctx, fileKey)

	s.saveStatus(ctx, &queue.TaskStatus{
		TaskID:     task.ID,
		Status:     string(models.StatusCompleted),
		Progress:   1.0,
		StartedAt:  start,
		FinishedAt: finished,
	})

	s.logger.Info("Material processing completed",
		logger.String("taskId", task.ID),
		logger.Int("images", result.Extraction.ImageCount),
		logger.Bool("structured", result.Structured != nil),
		logger.Int64("processingTimeMs", meta.ProcessingTime),
	)
	return nil
}

func (s *MaterialService) GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	if s.queue == nil {
		return nil, ErrAsyncDisabled
	}
	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}

	var taskStatus models.ProcessingStatus
	switch status.Status {
	case "active", "running":
		taskStatus = models.StatusRunning
	case "completed":
		taskStatus = models.StatusCompleted
	case "failed":
		taskStatus = models.StatusFailed
	case "cancelled":
		taskStatus = models.StatusCancelled
	default:
		taskStatus = models.StatusPending
	}

	return &models.ProcessingTask{
		ID:        status.TaskID,
		Status:    taskStatus,
		Type:      queue.TaskTypeMaterialProcess,
		Progress:  status.Progress,
		Error:     status.Error,
		Metadata:  make(map[string]string),
		CreatedAt: status.StartedAt,
		UpdatedAt: status.FinishedAt,
	}, nil
}

// GetProcessedMaterial returns the stored result of a finished task. Failed
// tasks return their failure document.
func (s *MaterialService) GetProcessedMaterial(ctx context.Context, taskID string) (*models.ProcessedMaterial, error) {
	if s.storage == nil {
		return nil, ErrAsyncDisabled
	}
	status, err := s.GetProcessingStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if status.Status != models.StatusCompleted && status.Status != models.StatusFailed {
		return nil, fmt.Errorf("%w: %s", ErrNotCompleted, status.Status)
	}

	reader, err := s.storage.Get(ctx, storage.ResultKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read result: %w", err)
	}
	return s.converter.Decode(data)
}

func (s *MaterialService) CancelTask(ctx context.Context, taskID string) error {
	if s.queue == nil {
		return ErrAsyncDisabled
	}
	if err := s.queue.CancelTask(ctx, taskID); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	s.logger.Info("Task cancelled", logger.String("taskId", taskID))
	return nil
}

// CleanupTasks removes stored uploads and results older than the retention
// period.
func (s *MaterialService) CleanupTasks(ctx context.Context) error {
	if s.storage == nil {
		return ErrAsyncDisabled
	}
	threshold := s.now().Add(-s.config.RetentionPeriod)
	if err := s.storage.CleanupBefore(ctx, threshold); err != nil {
		return fmt.Errorf("failed to cleanup storage: %w", err)
	}
	s.logger.Info("Completed tasks cleanup", logger.Time("threshold", threshold))
	return nil
}

// run extracts path and generates the study aid. Extraction holds a slot of
// the bounded pool; generation does not.
func (s *MaterialService) run(ctx context.Context, path, fileName string, action models.Action) (*models.StudyResult, error) {
	if err := s.extracts.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to start extraction: %w", err)
	}
	extraction, err := s.extractor.Extract(ctx, path)
	s.extracts.Release(1)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(extraction.Text) == "" {
		return nil, ErrEmptyContent
	}

	resp, err := s.generator.Generate(ctx, action, extraction.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s: %w", action, err)
	}

	return &models.StudyResult{
		Action:     action,
		Content:    resp.Content,
		Structured: resp.Structured,
		Extraction: models.Extraction{
			Text:              extraction.Text,
			ImageCount:        extraction.ImageCount,
			ImageDescriptions: extraction.ImageDescriptions,
		},
		FileName: fileName,
	}, nil
}

// processStored downloads the object to a scratch file named after the
// upload so the extension still selects the extractor.
func (s *MaterialService) processStored(ctx context.Context, key, fileName string, action models.Action) (*models.StudyResult, error) {
	reader, err := s.storage.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	defer reader.Close()

	if s.config.ScratchDir != "" {
		if err := os.MkdirAll(s.config.ScratchDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create scratch directory: %w", err)
		}
	}
	f, err := os.CreateTemp(s.config.ScratchDir, "material-*"+strings.ToLower(filepath.Ext(fileName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch file: %w", err)
	}
	defer s.removeFile(f.Name())

	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}

	return s.run(ctx, f.Name(), fileName, action)
}

func (s *MaterialService) validate(file multipart.File, header *multipart.FileHeader) error {
	res, err := s.validator.Validate(file, header.Filename, header.Size)
	if err != nil {
		return fmt.Errorf("failed to validate file: %w", err)
	}
	if err := res.Err(); err != nil {
		s.logger.Warn("File validation failed",
			logger.String("filename", header.Filename),
			logger.Error(err),
		)
		return err
	}
	return nil
}

// saveUpload writes the upload as <unix millis>-<random>-<name> under UploadDir.
func (s *MaterialService) saveUpload(file io.Reader, fileName string) (string, error) {
	if err := os.MkdirAll(s.config.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	base := strings.ReplaceAll(filepath.Base(fileName), "*", "_")
	f, err := os.CreateTemp(s.config.UploadDir, fmt.Sprintf("%d-*-%s", s.now().UnixMilli(), base))
	if err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}

	if _, err := io.Copy(f, file); err != nil {
		f.Close()
		s.removeFile(f.Name())
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	if err := f.Close(); err != nil {
		s.removeFile(f.Name())
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return f.Name(), nil
}

func (s *MaterialService) recordHistory(ctx context.Context, userID string, result *models.StudyResult) {
	if s.history == nil || userID == "" {
		return
	}
	entry, err := s.history.Create(ctx, &models.ResponseHistory{
		UserID:          userID,
		Action:          result.Action,
		Prompt:          fmt.Sprintf("Process %s for %s", result.Action, result.FileName),
		Response:        result.Content,
		OriginalContent: result.Extraction.Text,
		FileName:        result.FileName,
	})
	if err != nil {
		s.logger.Warn("Failed to save response history",
			logger.String("userId", userID),
			logger.Error(err),
		)
		return
	}
	result.HistoryID = entry.ID
}

func (s *MaterialService) fail(ctx context.Context, taskID string, cause error, meta models.MaterialMetadata, start time.Time) {
	s.logger.Error("Material processing failed",
		logger.String("taskId", taskID),
		logger.Bool("permanent", Permanent(cause)),
		logger.Error(cause),
	)

	finished := s.now()
	meta.ProcessingTime = finished.Sub(start).Milliseconds()
	meta.ProcessedAt = finished
	if err := s.storeResult(ctx, s.converter.Failed(taskID, cause, meta)); err != nil {
		s.logger.Error("Failed to store failure document", logger.String("taskId", taskID), logger.Error(err))
	}

	s.saveStatus(ctx, &queue.TaskStatus{
		TaskID:     taskID,
		Status:     string(models.StatusFailed),
		Error:      cause.Error(),
		StartedAt:  start,
		FinishedAt: finished,
	})
}

func (s *MaterialService) storeResult(ctx context.Context, processed *models.ProcessedMaterial) error {
	data, err := s.converter.Encode(processed)
	if err != nil {
		return err
	}
	if _, err := s.storage.Store(ctx, bytes.NewReader(data), storage.ResultKey(processed.TaskID)); err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	return nil
}

func (s *MaterialService) saveStatus(ctx context.Context, status *queue.TaskStatus) {
	if err := s.queue.SaveFinalStatus(ctx, status); err != nil {
		s.logger.Error("Failed to save task status",
			logger.String("taskId", status.TaskID),
			logger.String("status", status.Status),
			logger.Error(err),
		)
	}
}

// cancelled reports whether CancelTask has marked the task. Lookup errors
// count as not cancelled.
func (s *MaterialService) cancelled(ctx context.Context, taskID string) bool {
	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return false
	}
	return status.Status == string(models.StatusCancelled)
}

func (s *MaterialService) deleteObject(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, key); err != nil {
		s.logger.Warn("Failed to delete stored upload", logger.String("key", key), logger.Error(err))
	}
}

func (s *MaterialService) removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Failed to delete uploaded file", logger.String("path", path), logger.Error(err))
	}
}
