package study

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/study-assistant/internal/models"
)

func TestDefaultPromptsRender(t *testing.T) {
	set, err := DefaultPrompts()
	require.NoError(t, err)

	quiz, err := set.Render(models.ActionQuiz, "Sorting algorithms")
	require.NoError(t, err)
	assert.Contains(t, quiz, "Create 5 multiple-choice questions")
	assert.Contains(t, quiz, "Lecture content:\nSorting algorithms")

	cards, err := set.Render(models.ActionFlashcards, "Cells")
	require.NoError(t, err)
	assert.Contains(t, cards, "Generate 5 flashcards")

	assert.Nil(t, set.schema(models.ActionSummary))
	assert.NotNil(t, set.schema(models.ActionQuiz))
}

func TestParsePromptsRejectsIncompleteSets(t *testing.T) {
	_, err := ParsePrompts([]byte("summary:\n  template: hi\n"))
	assert.Error(t, err)

	_, err = ParsePrompts([]byte("essay:\n  template: hi\n"))
	assert.Error(t, err)

	_, err = ParsePrompts([]byte("summary:\n  template: '{{.Content'\n"))
	assert.Error(t, err)
}

func TestParseStructuredJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "bare", in: `[{"a":1}]`, want: `[{"a":1}]`},
		{name: "fenced", in: "```json\n[1, 2]\n```", want: `[1,2]`},
		{name: "prose around", in: "Sure! [\"x\"] Hope it helps.", want: `["x"]`},
		{name: "object", in: `note: {"k": "v"}`, want: `{"k":"v"}`},
		{name: "empty", in: "  ", wantErr: true},
		{name: "no json", in: "just words", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseStructuredJSON(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}
