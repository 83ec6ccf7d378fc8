package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	a, err := ParseAction(" Flashcards ")
	require.NoError(t, err)
	assert.Equal(t, ActionFlashcards, a)
	assert.True(t, a.Structured())

	a, err = ParseAction("summary")
	require.NoError(t, err)
	assert.False(t, a.Structured())

	_, err = ParseAction("essay")
	assert.Error(t, err)
	_, err = ParseAction("")
	assert.Error(t, err)
}
