package scratch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirLifecycle(t *testing.T) {
	base := t.TempDir()
	d, err := New(base, "docx")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(d.Path()), "docx-"))

	p, err := d.Write("../../escape.png", []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, d.Path(), filepath.Dir(p))

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	_, err = os.Stat(d.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestConcurrentDirsAreUnique(t *testing.T) {
	base := t.TempDir()
	const n = 16

	paths := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := New(base, "job")
			if err != nil {
				t.Error(err)
				return
			}
			paths[i] = d.Path()
			_, _ = d.Write("image-1.png", []byte("x"))
			_ = d.Close()
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, p := range paths {
		assert.False(t, seen[p])
		seen[p] = true
	}
	left, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, left)
}
