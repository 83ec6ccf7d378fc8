package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/feichai0017/study-assistant/pkg/logger"
)

func TestUploadKey(t *testing.T) {
	assert.Equal(t, "uploads/t1/lecture_notes.pdf", UploadKey("t1", "lecture notes.pdf"))
	assert.Equal(t, "uploads/t1/passwd", UploadKey("t1", "../../etc/passwd"))
	assert.Equal(t, "results/t1.json", ResultKey("t1"))
}

func TestNewStorageRejectsUnknownType(t *testing.T) {
	_, err := NewStorage(context.Background(), StorageType("ftp"), logger.NewNop())
	assert.Error(t, err)
}
