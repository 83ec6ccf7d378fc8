package converters

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/feichai0017/study-assistant/internal/models"
)

// MaterialConverter turns a finished study result into its stored form.
type MaterialConverter interface {
	Convert(taskID string, result *models.StudyResult, meta models.MaterialMetadata) (*models.ProcessedMaterial, error)
}

type JSONConverter struct{}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{}
}

func (c *JSONConverter) Convert(taskID string, result *models.StudyResult, meta models.MaterialMetadata) (*models.ProcessedMaterial, error) {
	if result == nil {
		return nil, errors.New("no result to convert")
	}
	if meta.ProcessedAt.IsZero() {
		meta.ProcessedAt = time.Now()
	}
	if meta.FileName == "" {
		meta.FileName = result.FileName
	}
	if result.Extraction.ImageDescriptions == nil {
		result.Extraction.ImageDescriptions = []string{}
	}

	return &models.ProcessedMaterial{
		TaskID:   taskID,
		Status:   models.StatusCompleted,
		Result:   result,
		Metadata: meta,
	}, nil
}

// Failed builds the stored form of a task that did not produce a result.
func (c *JSONConverter) Failed(taskID string, cause error, meta models.MaterialMetadata) *models.ProcessedMaterial {
	if meta.ProcessedAt.IsZero() {
		meta.ProcessedAt = time.Now()
	}
	return &models.ProcessedMaterial{
		TaskID:   taskID,
		Status:   models.StatusFailed,
		Metadata: meta,
		Error:    cause.Error(),
	}
}

func (c *JSONConverter) Encode(m *models.ProcessedMaterial) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal processed material: %w", err)
	}
	return data, nil
}

func (c *JSONConverter) Decode(data []byte) (*models.ProcessedMaterial, error) {
	var m models.ProcessedMaterial
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal processed material: %w", err)
	}
	return &m, nil
}
