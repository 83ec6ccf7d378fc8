package converters

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/study-assistant/internal/models"
)

func TestConvertFillsDefaults(t *testing.T) {
	res := &models.StudyResult{
		Action:     models.ActionQuiz,
		Content:    "[]",
		Structured: json.RawMessage(`[]`),
		FileName:   "deck.pptx",
	}

	pm, err := NewJSONConverter().Convert("task-1", res, models.MaterialMetadata{FileSize: 42})
	require.NoError(t, err)

	assert.Equal(t, "task-1", pm.TaskID)
	assert.Equal(t, models.StatusCompleted, pm.Status)
	assert.Equal(t, "deck.pptx", pm.Metadata.FileName)
	assert.False(t, pm.Metadata.ProcessedAt.IsZero())
	assert.NotNil(t, pm.Result.Extraction.ImageDescriptions)
}

func TestConvertNilResult(t *testing.T) {
	_, err := NewJSONConverter().Convert("t", nil, models.MaterialMetadata{})
	assert.Error(t, err)
}

func TestEncodeIncludesStructuredOutput(t *testing.T) {
	c := NewJSONConverter()
	pm, err := c.Convert("t", &models.StudyResult{
		Action:     models.ActionFlashcards,
		Structured: json.RawMessage(`[{"term":"a","definition":"b"}]`),
	}, models.MaterialMetadata{ProcessedAt: time.Unix(0, 0).UTC()})
	require.NoError(t, err)

	data, err := c.Encode(pm)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"term": "a"`)

	back, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, models.ActionFlashcards, back.Result.Action)
}

func TestFailed(t *testing.T) {
	pm := NewJSONConverter().Failed("t", errors.New("no text"), models.MaterialMetadata{})
	assert.Equal(t, models.StatusFailed, pm.Status)
	assert.Equal(t, "no text", pm.Error)
	assert.Nil(t, pm.Result)
}
