package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/study-assistant/internal/agent/document"
	"github.com/feichai0017/study-assistant/internal/agent/study"
	"github.com/feichai0017/study-assistant/internal/service/history"
	"github.com/feichai0017/study-assistant/internal/service/material"
	"github.com/feichai0017/study-assistant/internal/utils/validator"
	"github.com/feichai0017/study-assistant/pkg/logger"
	"github.com/feichai0017/study-assistant/pkg/queue"
)

// UserHeader carries the caller's id; authentication happens upstream.
const UserHeader = "X-User-ID"

const timeLayout = "2006-01-02T15:04:05Z07:00"

type Handlers struct {
	AI       *AIHandler
	Material *MaterialHandler
	History  *HistoryHandler
	Health   *HealthHandler
}

// NewHandlers wires the handlers. ping may be nil when there is no backing
// store to check.
func NewHandlers(
	materialService material.MaterialProcessor,
	historyService history.Service,
	ping func(ctx context.Context) error,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		AI:       NewAIHandler(materialService, log),
		Material: NewMaterialHandler(materialService, log),
		History:  NewHistoryHandler(historyService, log),
		Health:   NewHealthHandler(ping),
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, validator.ErrInvalidFile),
		errors.Is(err, document.ErrUnsupportedFormat),
		errors.Is(err, study.ErrInvalidAction),
		errors.Is(err, material.ErrEmptyContent),
		errors.Is(err, history.ErrInvalidEntry):
		return http.StatusBadRequest
	case errors.Is(err, document.ErrExtractionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, history.ErrNotFound), errors.Is(err, queue.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, material.ErrNotCompleted):
		return http.StatusConflict
	case errors.Is(err, material.ErrAsyncDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, log logger.Logger, status int, message string, err error) {
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
	}
	if id := logger.RequestID(c.Request.Context()); id != "" {
		fields = append(fields, logger.String("request_id", id))
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if status >= http.StatusInternalServerError {
		log.Error(message, fields...)
	} else {
		log.Warn(message, fields...)
	}

	resp := ErrorResponse{Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	c.AbortWithStatusJSON(status, resp)
}

func userID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(UserHeader))
}
