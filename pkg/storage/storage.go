package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"time"

	cfg "github.com/feichai0017/study-assistant/config"
	"github.com/feichai0017/study-assistant/pkg/logger"
	"github.com/feichai0017/study-assistant/pkg/storage/minio"
	"github.com/feichai0017/study-assistant/pkg/storage/s3"
)

type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
)

// Storage holds uploaded materials and generated results for asynchronous tasks.
type Storage interface {
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// CleanupBefore removes objects last modified before threshold.
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

func NewStorage(ctx context.Context, storageType StorageType, log logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeS3:
		return s3.NewS3Storage(ctx, cfg.GetS3Config(), log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, cfg.GetMinioConfig(), log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// UploadKey is the object key for a task's uploaded file. The original name
// is kept, minus anything that is not safe in a key, so its extension still
// selects the extractor.
func UploadKey(taskID, filename string) string {
	name := unsafeKeyChars.ReplaceAllString(path.Base(filename), "_")
	return path.Join("uploads", taskID, name)
}

// ResultKey is the object key for a task's result document.
func ResultKey(taskID string) string {
	return path.Join("results", taskID+".json")
}
