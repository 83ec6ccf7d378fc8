package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/study-assistant/internal/models"
	"github.com/feichai0017/study-assistant/internal/service/material"
	"github.com/feichai0017/study-assistant/pkg/logger"
)

// MaterialHandler serves the queued variant of the upload.
type MaterialHandler struct {
	service material.MaterialProcessor
	logger  logger.Logger
}

type ProcessResponse struct {
	TaskID    string `json:"taskId"`
	Status    string `json:"status"`
	Action    string `json:"action"`
	Filename  string `json:"filename"`
	FileSize  int64  `json:"fileSize"`
	FileType  string `json:"fileType"`
	CreatedAt string `json:"createdAt"`
}

func NewMaterialHandler(service material.MaterialProcessor, log logger.Logger) *MaterialHandler {
	return &MaterialHandler{
		service: service,
		logger:  log.Named("materials"),
	}
}

func (h *MaterialHandler) ProcessMaterial(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Invalid file upload", err)
		return
	}
	defer file.Close()

	action, err := models.ParseAction(c.PostForm("action"))
	if err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Invalid action", err)
		return
	}

	task, err := h.service.Submit(c.Request.Context(), file, header, action, userID(c))
	if err != nil {
		respondError(c, h.logger, statusFor(err), "Failed to process file", err)
		return
	}

	c.JSON(http.StatusAccepted, ProcessResponse{
		TaskID:    task.ID,
		Status:    string(task.Status),
		Action:    string(action),
		Filename:  header.Filename,
		FileSize:  header.Size,
		FileType:  filepath.Ext(header.Filename),
		CreatedAt: task.CreatedAt.Format(timeLayout),
	})
}

func (h *MaterialHandler) ProcessBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		respondError(c, h.logger, http.StatusBadRequest, "No files provided", nil)
		return
	}

	action, err := models.ParseAction(c.PostForm("action"))
	if err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Invalid action", err)
		return
	}

	tasks, err := h.service.SubmitBatch(c.Request.Context(), files, action, userID(c))
	if err != nil {
		respondError(c, h.logger, statusFor(err), "Failed to process files", err)
		return
	}

	// Tasks finish in any order; the metadata carries the file each belongs to.
	responses := make([]ProcessResponse, len(tasks))
	for i, task := range tasks {
		size, _ := strconv.ParseInt(task.Metadata["size"], 10, 64)
		responses[i] = ProcessResponse{
			TaskID:    task.ID,
			Status:    string(task.Status),
			Action:    string(action),
			Filename:  task.Metadata["filename"],
			FileSize:  size,
			FileType:  task.Metadata["type"],
			CreatedAt: task.CreatedAt.Format(timeLayout),
		}
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": fmt.Sprintf("Processing %d materials", len(files)),
		"tasks":   responses,
	})
}

func (h *MaterialHandler) GetStatus(c *gin.Context) {
	taskID := c.Param("taskId")
	if taskID == "" {
		respondError(c, h.logger, http.StatusBadRequest, "Task ID is required", nil)
		return
	}

	task, err := h.service.GetProcessingStatus(c.Request.Context(), taskID)
	if err != nil {
		respondError(c, h.logger, statusFor(err), "Failed to get status", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"taskId":    task.ID,
		"status":    string(task.Status),
		"progress":  task.Progress,
		"error":     task.Error,
		"metadata":  task.Metadata,
		"createdAt": task.CreatedAt.Format(timeLayout),
		"updatedAt": task.UpdatedAt.Format(timeLayout),
	})
}

func (h *MaterialHandler) DownloadResult(c *gin.Context) {
	taskID := c.Param("taskId")
	if taskID == "" {
		respondError(c, h.logger, http.StatusBadRequest, "Task ID is required", nil)
		return
	}

	result, err := h.service.GetProcessedMaterial(c.Request.Context(), taskID)
	if err != nil {
		respondError(c, h.logger, statusFor(err), "Failed to get result", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=result_%s.json", taskID))
	c.JSON(http.StatusOK, result)
}

func (h *MaterialHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("taskId")
	if taskID == "" {
		respondError(c, h.logger, http.StatusBadRequest, "Task ID is required", nil)
		return
	}

	if err := h.service.CancelTask(c.Request.Context(), taskID); err != nil {
		respondError(c, h.logger, statusFor(err), "Failed to cancel task", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task cancelled successfully",
		"taskId":  taskID,
	})
}
