package material

import (
	"context"
	"errors"
	"mime/multipart"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/feichai0017/study-assistant/internal/agent/document"
	"github.com/feichai0017/study-assistant/internal/agent/study"
	"github.com/feichai0017/study-assistant/internal/models"
	"github.com/feichai0017/study-assistant/internal/service/history"
	"github.com/feichai0017/study-assistant/internal/utils/validator"
	"github.com/feichai0017/study-assistant/pkg/converters"
	"github.com/feichai0017/study-assistant/pkg/logger"
	"github.com/feichai0017/study-assistant/pkg/queue"
	"github.com/feichai0017/study-assistant/pkg/storage"
)

var (
	// ErrEmptyContent means extraction produced only whitespace.
	ErrEmptyContent = errors.New("extracted text is empty")
	// ErrAsyncDisabled is returned by the queued operations when the service
	// was built without a queue or storage backend.
	ErrAsyncDisabled = errors.New("asynchronous processing is not configured")
	// ErrInvalidTask marks a queued task whose payload cannot be processed.
	ErrInvalidTask = errors.New("invalid task")
	// ErrNotCompleted is returned when a result is requested too early.
	ErrNotCompleted = errors.New("task is not completed")
	// ErrCancelled is returned by HandleMaterial for a task cancelled through
	// CancelTask.
	ErrCancelled = errors.New("task was cancelled")
)

// MaterialProcessor turns uploaded course material into study aids.
type MaterialProcessor interface {
	ProcessUpload(ctx context.Context, file multipart.File, header *multipart.FileHeader, action models.Action, userID string) (*models.StudyResult, error)
	Submit(ctx context.Context, file multipart.File, header *multipart.FileHeader, action models.Action, userID string) (*models.ProcessingTask, error)
	SubmitBatch(ctx context.Context, files []*multipart.FileHeader, action models.Action, userID string) ([]*models.ProcessingTask, error)
	HandleMaterial(ctx context.Context, task *queue.Task) error
	GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error)
	GetProcessedMaterial(ctx context.Context, taskID string) (*models.ProcessedMaterial, error)
	CancelTask(ctx context.Context, taskID string) error
	CleanupTasks(ctx context.Context) error
}

// Extractor reads the text and image summary out of a local file.
type Extractor interface {
	Extract(ctx context.Context, path string) (*document.ExtractionResult, error)
}

// Generator produces the study aid for one action.
type Generator interface {
	Generate(ctx context.Context, action models.Action, content string) (*study.Response, error)
}

type ServiceConfig struct {
	// UploadDir holds synchronous uploads until the request finishes.
	UploadDir string
	// ScratchDir holds files downloaded by the worker.
	ScratchDir               string
	MaxConcurrentExtractions int
	QueuePriority            int
	RetentionPeriod          time.Duration
}

func (c *ServiceConfig) withDefaults() *ServiceConfig {
	out := ServiceConfig{}
	if c != nil {
		out = *c
	}
	if out.UploadDir == "" {
		out.UploadDir = "uploads"
	}
	if out.MaxConcurrentExtractions <= 0 {
		out.MaxConcurrentExtractions = 4
	}
	if out.QueuePriority == 0 {
		out.QueuePriority = 2
	}
	if out.RetentionPeriod <= 0 {
		out.RetentionPeriod = 24 * time.Hour
	}
	return &out
}

// Deps are the collaborators of a MaterialService. History, Queue and
// Storage are optional: without history nothing is recorded, and without
// queue and storage only the synchronous pipeline is available.
type Deps struct {
	Extractor Extractor
	Generator Generator
	Validator *validator.DocumentValidator
	History   history.Service
	Queue     queue.Queue
	Storage   storage.Storage
}

type MaterialService struct {
	extractor Extractor
	generator Generator
	validator *validator.DocumentValidator
	history   history.Service
	queue     queue.Queue
	storage   storage.Storage
	converter *converters.JSONConverter
	extracts  *semaphore.Weighted
	logger    logger.Logger
	config    *ServiceConfig
	now       func() time.Time
}

func NewService(deps Deps, log logger.Logger, cfg *ServiceConfig) *MaterialService {
	cfg = cfg.withDefaults()
	v := deps.Validator
	if v == nil {
		v = validator.NewDocumentValidator(log, nil)
	}
	return &MaterialService{
		extractor: deps.Extractor,
		generator: deps.Generator,
		validator: v,
		history:   deps.History,
		queue:     deps.Queue,
		storage:   deps.Storage,
		converter: converters.NewJSONConverter(),
		extracts:  semaphore.NewWeighted(int64(cfg.MaxConcurrentExtractions)),
		logger:    log.Named("material"),
		config:    cfg,
		now:       time.Now,
	}
}

// Permanent reports whether retrying the task cannot change the outcome.
func Permanent(err error) bool {
	return errors.Is(err, ErrEmptyContent) ||
		errors.Is(err, ErrInvalidTask) ||
		errors.Is(err, ErrCancelled) ||
		errors.Is(err, document.ErrUnsupportedFormat) ||
		errors.Is(err, document.ErrExtractionFailed) ||
		errors.Is(err, study.ErrInvalidAction) ||
		errors.Is(err, validator.ErrInvalidFile)
}
