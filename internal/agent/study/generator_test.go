package study

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/study-assistant/internal/models"
	"github.com/feichai0017/study-assistant/pkg/logger"
)

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completionBody(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 0,
		"model":   "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(body)
}

// fakeOpenAI answers chat completions with the replies in order, repeating the last.
type fakeOpenAI struct {
	replies []func(w http.ResponseWriter)
	calls   atomic.Int32
	last    atomic.Value
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	raw, _ := io.ReadAll(r.Body)
	var req chatRequest
	_ = json.Unmarshal(raw, &req)
	f.last.Store(req)

	n := int(f.calls.Add(1)) - 1
	if n >= len(f.replies) {
		n = len(f.replies) - 1
	}
	f.replies[n](w)
}

func reply(content string) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody(content))
	}
}

func status(code int) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = io.WriteString(w, `{"error":{"message":"upstream says no","type":"server_error"}}`)
	}
}

func newTestGenerator(t *testing.T, fake *fakeOpenAI, tl *logger.TestLogger) *Generator {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	g, err := NewGenerator(Config{
		APIKey:     "sk-test",
		BaseURL:    srv.URL + "/v1",
		Attempts:   3,
		RetryDelay: time.Millisecond,
	}, tl)
	require.NoError(t, err)
	return g
}

func TestGenerateSummary(t *testing.T) {
	fake := &fakeOpenAI{replies: []func(http.ResponseWriter){reply("# Summary\n- point")}}
	g := newTestGenerator(t, fake, logger.NewTestLogger())

	resp, err := g.Generate(context.Background(), models.ActionSummary, "Photosynthesis converts light.")
	require.NoError(t, err)

	assert.Equal(t, "# Summary\n- point", resp.Content)
	assert.Nil(t, resp.Structured)

	req := fake.last.Load().(chatRequest)
	assert.Equal(t, "gpt-4o", req.Model)
	assert.InDelta(t, 0.7, req.Temperature, 1e-9)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.True(t, strings.HasPrefix(req.Messages[0].Content, "Summarize the following lecture content"))
	assert.True(t, strings.HasSuffix(req.Messages[0].Content, "\n\nPhotosynthesis converts light."))
}

func TestGenerateFlashcardsParsesFencedJSON(t *testing.T) {
	content := "Here you go:\n```json\n[{\"term\":\"ATP\",\"definition\":\"Energy carrier\"}]\n```"
	fake := &fakeOpenAI{replies: []func(http.ResponseWriter){reply(content)}}
	g := newTestGenerator(t, fake, logger.NewTestLogger())

	resp, err := g.Generate(context.Background(), models.ActionFlashcards, "cells")
	require.NoError(t, err)

	assert.Equal(t, content, resp.Content)
	assert.JSONEq(t, `[{"term":"ATP","definition":"Energy carrier"}]`, string(resp.Structured))
}

func TestGenerateQuizRejectsBadShape(t *testing.T) {
	bad := `[{"question":"Q?","options":["a","b"],"answer":"a"}]`
	fake := &fakeOpenAI{replies: []func(http.ResponseWriter){reply(bad)}}
	tl := logger.NewTestLogger()
	g := newTestGenerator(t, fake, tl)

	resp, err := g.Generate(context.Background(), models.ActionQuiz, "algorithms")
	require.NoError(t, err)
	assert.Equal(t, bad, resp.Content)
	assert.Nil(t, resp.Structured)
	assert.Equal(t, 1, tl.Count("WARN", "Structured output rejected"))
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	fake := &fakeOpenAI{replies: []func(http.ResponseWriter){
		status(http.StatusTooManyRequests),
		status(http.StatusBadGateway),
		reply("ok"),
	}}
	g := newTestGenerator(t, fake, logger.NewTestLogger())

	resp, err := g.Generate(context.Background(), models.ActionSummary, "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(3), fake.calls.Load())
}

func TestGenerateDoesNotRetryClientErrors(t *testing.T) {
	fake := &fakeOpenAI{replies: []func(http.ResponseWriter){status(http.StatusBadRequest)}}
	g := newTestGenerator(t, fake, logger.NewTestLogger())

	_, err := g.Generate(context.Background(), models.ActionSummary, "x")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, int32(1), fake.calls.Load())
}

func TestGenerateEmptyReply(t *testing.T) {
	fake := &fakeOpenAI{replies: []func(http.ResponseWriter){reply("  ")}}
	g := newTestGenerator(t, fake, logger.NewTestLogger())

	_, err := g.Generate(context.Background(), models.ActionSummary, "x")
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, int32(1), fake.calls.Load())
}

func TestGenerateInvalidAction(t *testing.T) {
	fake := &fakeOpenAI{replies: []func(http.ResponseWriter){reply("never")}}
	g := newTestGenerator(t, fake, logger.NewTestLogger())

	_, err := g.Generate(context.Background(), models.Action("essay"), "x")
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.Zero(t, fake.calls.Load())
}

func TestNewGeneratorRequiresKey(t *testing.T) {
	_, err := NewGenerator(Config{}, logger.NewNop())
	assert.ErrorIs(t, err, ErrNotConfigured)
}
