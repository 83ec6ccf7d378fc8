package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/study-assistant/internal/service/material"
	"github.com/feichai0017/study-assistant/pkg/logger"
	"github.com/feichai0017/study-assistant/pkg/queue"
)

type fakeHandler struct {
	err      error
	handled  []*queue.Task
	cleanups int
}

func (h *fakeHandler) HandleMaterial(_ context.Context, task *queue.Task) error {
	h.handled = append(h.handled, task)
	return h.err
}

func (h *fakeHandler) CleanupTasks(context.Context) error {
	h.cleanups++
	return nil
}

func newTestWorker(t *testing.T, h MaterialHandler) *MaterialWorker {
	t.Helper()
	w, err := NewMaterialWorker(&Config{RedisAddr: "127.0.0.1:0", Concurrency: 1}, h, logger.NewTestLogger())
	require.NoError(t, err)
	return w
}

func taskPayload(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(&queue.Task{
		ID:       "task-1",
		Type:     queue.TaskTypeMaterialProcess,
		Payload:  map[string]interface{}{"fileKey": "uploads/task-1/a.txt"},
		Metadata: map[string]string{"filename": "a.txt", "action": "summary"},
	})
	require.NoError(t, err)
	return data
}

func TestHandleMaterialProcess(t *testing.T) {
	h := &fakeHandler{}
	w := newTestWorker(t, h)

	err := w.handleMaterialProcess(context.Background(), asynq.NewTask(queue.TaskTypeMaterialProcess, taskPayload(t)))
	require.NoError(t, err)
	require.Len(t, h.handled, 1)
	assert.Equal(t, "task-1", h.handled[0].ID)
	assert.Equal(t, "uploads/task-1/a.txt", h.handled[0].Payload["fileKey"])
}

func TestHandleMaterialProcessRetryPolicy(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		skipRetry bool
	}{
		{"permanent", material.ErrEmptyContent, true},
		{"cancelled", fmt.Errorf("%w: %w", material.ErrCancelled, context.Canceled), true},
		{"interrupted", context.Canceled, false},
		{"transient", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWorker(t, &fakeHandler{err: tt.err})
			err := w.handleMaterialProcess(context.Background(), asynq.NewTask(queue.TaskTypeMaterialProcess, taskPayload(t)))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestHandleMaterialProcessBadPayload(t *testing.T) {
	h := &fakeHandler{}
	w := newTestWorker(t, h)

	err := w.handleMaterialProcess(context.Background(), asynq.NewTask(queue.TaskTypeMaterialProcess, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, h.handled)
}

func TestHandleCleanup(t *testing.T) {
	h := &fakeHandler{}
	w := newTestWorker(t, h)

	require.NoError(t, w.handleCleanup(context.Background(), asynq.NewTask(queue.TaskTypeMaterialCleanup, nil)))
	assert.Equal(t, 1, h.cleanups)
}

func TestNewMaterialWorkerRequiresRedis(t *testing.T) {
	_, err := NewMaterialWorker(&Config{}, &fakeHandler{}, logger.NewNop())
	assert.Error(t, err)
}
