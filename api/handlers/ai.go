package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/study-assistant/internal/agent/document"
	"github.com/feichai0017/study-assistant/internal/models"
	"github.com/feichai0017/study-assistant/internal/service/material"
	"github.com/feichai0017/study-assistant/internal/utils/validator"
	"github.com/feichai0017/study-assistant/pkg/logger"
)

// AIHandler serves the synchronous upload used by the study assistant UI.
type AIHandler struct {
	service material.MaterialProcessor
	logger  logger.Logger
}

type UploadResponse struct {
	Success bool          `json:"success"`
	Action  models.Action `json:"action"`
	// Data is the generated text exactly as the model returned it.
	Data              string   `json:"data"`
	Structured        any      `json:"structured,omitempty"`
	ImageCount        int      `json:"imageCount"`
	ImageDescriptions []string `json:"imageDescriptions"`
	HistoryID         string   `json:"historyId,omitempty"`
}

func NewAIHandler(service material.MaterialProcessor, log logger.Logger) *AIHandler {
	return &AIHandler{
		service: service,
		logger:  log.Named("ai"),
	}
}

// Upload handles POST /api/ai/upload with a multipart "file" and an "action".
func (h *AIHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Please upload a file", err)
		return
	}
	defer file.Close()

	action, err := models.ParseAction(c.PostForm("action"))
	if err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Please provide a valid action (summary, flashcards, or quiz)", nil)
		return
	}

	result, err := h.service.ProcessUpload(c.Request.Context(), file, header, action, userID(c))
	if err != nil {
		respondError(c, h.logger, statusFor(err), uploadMessage(err), err)
		return
	}

	resp := UploadResponse{
		Success:           true,
		Action:            result.Action,
		Data:              result.Content,
		ImageCount:        result.Extraction.ImageCount,
		ImageDescriptions: result.Extraction.ImageDescriptions,
		HistoryID:         result.HistoryID,
	}
	if result.Structured != nil {
		resp.Structured = result.Structured
	}
	c.JSON(http.StatusOK, resp)
}

func uploadMessage(err error) string {
	switch {
	case errors.Is(err, validator.ErrInvalidFile), errors.Is(err, document.ErrUnsupportedFormat):
		return "Unsupported or invalid file"
	case errors.Is(err, document.ErrExtractionFailed):
		return "Could not extract text from the file"
	case errors.Is(err, material.ErrEmptyContent):
		return "Extracted text is empty"
	default:
		return "Error processing material"
	}
}
