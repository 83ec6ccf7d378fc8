package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Action is what the study generator produces from extracted text.
type Action string

const (
	ActionSummary    Action = "summary"
	ActionFlashcards Action = "flashcards"
	ActionQuiz       Action = "quiz"
)

// ParseAction validates a user-supplied action name.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("invalid action %q", s)
	}
	return a, nil
}

func (a Action) Valid() bool {
	switch a {
	case ActionSummary, ActionFlashcards, ActionQuiz:
		return true
	}
	return false
}

// Structured reports whether the action's output is a JSON document.
func (a Action) Structured() bool {
	return a == ActionFlashcards || a == ActionQuiz
}

type ProcessingTask struct {
	ID        string            `json:"id"`
	Status    ProcessingStatus  `json:"status"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Progress  float64           `json:"progress"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt,omitempty"`
}

type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusRunning   ProcessingStatus = "running"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
	StatusCancelled ProcessingStatus = "cancelled"
)

// Extraction summarises what was read out of an uploaded document.
type Extraction struct {
	Text              string   `json:"text"`
	ImageCount        int      `json:"imageCount"`
	ImageDescriptions []string `json:"imageDescriptions"`
}

// StudyResult is the outcome of one action over one document.
type StudyResult struct {
	Action Action `json:"action"`
	// Content is the model's reply as returned.
	Content string `json:"content"`
	// Structured holds the validated JSON for flashcards and quiz, nil otherwise
	// or when the reply did not validate.
	Structured json.RawMessage `json:"structured,omitempty"`
	Extraction Extraction      `json:"extraction"`
	FileName   string          `json:"fileName"`
	HistoryID  string          `json:"historyId,omitempty"`
}

type MaterialMetadata struct {
	FileName       string    `json:"fileName"`
	FileType       string    `json:"fileType"`
	FileSize       int64     `json:"fileSize"`
	ProcessingTime int64     `json:"processingTimeMs"`
	ProcessedAt    time.Time `json:"processedAt"`
}

// ProcessedMaterial is the downloadable result of an asynchronous task.
type ProcessedMaterial struct {
	TaskID   string           `json:"taskId"`
	Status   ProcessingStatus `json:"status"`
	Result   *StudyResult     `json:"result,omitempty"`
	Metadata MaterialMetadata `json:"metadata"`
	Error    string           `json:"error,omitempty"`
}

// ResponseHistory is one saved generator response.
type ResponseHistory struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	Action          Action    `json:"action"`
	Prompt          string    `json:"prompt"`
	Response        string    `json:"response"`
	OriginalContent string    `json:"originalContent,omitempty"`
	FileName        string    `json:"fileName,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}
