package s3

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/feichai0017/study-assistant/config"
	"github.com/feichai0017/study-assistant/pkg/logger"
)

// fakeS3 serves path-style bucket requests from memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := f.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<Error><Code>NoSuchKey</Code></Error>`))
			return
		}
		_, _ = w.Write(data)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStorage(t *testing.T) (*S3Storage, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewS3Storage(context.Background(), &cfg.S3Config{
		BucketName: "materials",
		Region:     "us-east-1",
		Endpoint:   srv.URL,
		AccessKey:  "key",
		SecretKey:  "secret",
	}, logger.NewTestLogger())
	require.NoError(t, err)
	return s, fake
}

func TestStoreGetDelete(t *testing.T) {
	s, fake := newTestStorage(t)
	ctx := context.Background()

	key, err := s.Store(ctx, bytes.NewReader([]byte("slides")), "uploads/t1/deck.pptx")
	require.NoError(t, err)
	assert.Equal(t, "uploads/t1/deck.pptx", key)
	assert.Equal(t, []byte("slides"), fake.objects["/materials/uploads/t1/deck.pptx"])

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "slides", string(data))

	require.NoError(t, s.Delete(ctx, key))
	assert.Empty(t, fake.objects)
}

func TestGetMissingObject(t *testing.T) {
	s, _ := newTestStorage(t)
	_, err := s.Get(context.Background(), "nope")
	assert.Error(t, err)
}

func TestNewS3StorageRequiresBucket(t *testing.T) {
	_, err := NewS3Storage(context.Background(), &cfg.S3Config{Region: "us-east-1"}, logger.NewNop())
	assert.Error(t, err)
}
