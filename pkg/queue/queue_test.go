package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*AsynqQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	q, err := NewAsynqQueue(&QueueConfig{RedisAddr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q, mr
}

func TestSaveAndGetStatus(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	want := &TaskStatus{TaskID: "t-1", Status: "completed", Progress: 1}
	require.NoError(t, q.SaveFinalStatus(ctx, want))

	got, err := q.GetTaskStatus(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, 1.0, got.Progress)

	assert.True(t, mr.Exists("task_status:t-1"))
	assert.Equal(t, statusTTL, mr.TTL("task_status:t-1"))
}

func TestNewAsynqQueueRequiresAddr(t *testing.T) {
	_, err := NewAsynqQueue(&QueueConfig{})
	assert.Error(t, err)
}

func TestQueueForPriority(t *testing.T) {
	assert.Equal(t, "critical", QueueForPriority(1))
	assert.Equal(t, "default", QueueForPriority(2))
	assert.Equal(t, "low", QueueForPriority(0))
	assert.Equal(t, "low", QueueForPriority(9))
}

func TestConvertAsynqStatus(t *testing.T) {
	done := time.Now()
	tests := []struct {
		state    asynq.TaskState
		want     string
		progress float64
	}{
		{asynq.TaskStatePending, "pending", 0},
		{asynq.TaskStateScheduled, "pending", 0},
		{asynq.TaskStateActive, "running", 0.5},
		{asynq.TaskStateCompleted, "completed", 1},
		{asynq.TaskStateRetry, "failed", 0},
		{asynq.TaskStateArchived, "failed", 0},
	}
	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.state.String(), func(t *testing.T) {
			got := convertAsynqStatus(&asynq.TaskInfo{ID: "x", State: tt.state, CompletedAt: done, LastErr: "boom"})
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.progress, got.Progress)
			if tt.want == "failed" {
				assert.Equal(t, "boom", got.Error)
			}
		})
	}
}
