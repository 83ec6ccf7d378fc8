package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/study-assistant/internal/models"
	"github.com/feichai0017/study-assistant/internal/service/history"
	"github.com/feichai0017/study-assistant/pkg/logger"
)

// HistoryHandler exposes a user's saved responses. Routes using it sit
// behind middleware.RequireUser.
type HistoryHandler struct {
	service history.Service
	logger  logger.Logger
}

type CreateHistoryRequest struct {
	Action          string `json:"action"`
	Prompt          string `json:"prompt"`
	Response        string `json:"response"`
	OriginalContent string `json:"originalContent"`
	FileName        string `json:"fileName"`
}

func NewHistoryHandler(service history.Service, log logger.Logger) *HistoryHandler {
	return &HistoryHandler{
		service: service,
		logger:  log.Named("history"),
	}
}

func (h *HistoryHandler) Create(c *gin.Context) {
	var req CreateHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Action == "" || req.Prompt == "" || req.Response == "" {
		respondError(c, h.logger, http.StatusBadRequest, "Action, prompt, and response are required fields", nil)
		return
	}
	action, err := models.ParseAction(req.Action)
	if err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Action must be one of: summary, flashcards, quiz", nil)
		return
	}

	entry, err := h.service.Create(c.Request.Context(), &models.ResponseHistory{
		UserID:          userID(c),
		Action:          action,
		Prompt:          req.Prompt,
		Response:        req.Response,
		OriginalContent: req.OriginalContent,
		FileName:        req.FileName,
	})
	if err != nil {
		respondError(c, h.logger, statusFor(err), "Failed to save response history", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": entry})
}

func (h *HistoryHandler) List(c *gin.Context) {
	entries, err := h.service.ListByUser(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, h.logger, statusFor(err), "Failed to fetch response history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(entries), "data": entries})
}

func (h *HistoryHandler) Get(c *gin.Context) {
	entry, err := h.service.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, statusFor(err), notFoundMessage(err, "Failed to fetch response history"), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": entry})
}

func (h *HistoryHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		respondError(c, h.logger, statusFor(err), notFoundMessage(err, "Failed to delete response history"), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Response history deleted successfully"})
}

func (h *HistoryHandler) ListByAction(c *gin.Context) {
	action, err := models.ParseAction(c.Param("action"))
	if err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Action must be one of: summary, flashcards, quiz", nil)
		return
	}

	entries, err := h.service.ListByAction(c.Request.Context(), userID(c), action)
	if err != nil {
		respondError(c, h.logger, statusFor(err), "Failed to fetch response history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(entries), "data": entries})
}

func notFoundMessage(err error, fallback string) string {
	if errors.Is(err, history.ErrNotFound) {
		return "Response history not found"
	}
	return fallback
}
