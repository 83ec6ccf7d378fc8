// Package scratch provides per-call temporary directories that are always
// removed, so concurrent extractions never share intermediate files.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Dir is a uniquely named temporary directory owned by a single call.
type Dir struct {
	path string
	once sync.Once
	err  error
}

// New creates <base>/<label>-<uuid>. An empty base means os.TempDir().
func New(base, label string) (*Dir, error) {
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch base %s: %w", base, err)
	}
	if label == "" {
		label = "scratch"
	}

	path := filepath.Join(base, fmt.Sprintf("%s-%s", label, uuid.NewString()))
	if err := os.Mkdir(path, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	return &Dir{path: path}, nil
}

// Path returns the absolute directory path.
func (d *Dir) Path() string { return d.path }

// Write stores data under name inside the directory and returns the full path.
// Names are flattened so nothing escapes the directory.
func (d *Dir) Write(name string, data []byte) (string, error) {
	name = filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, "\\", "/")))
	if name == "/" || name == "." {
		return "", fmt.Errorf("invalid scratch file name %q", name)
	}
	full := filepath.Join(d.path, name)
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write scratch file %s: %w", name, err)
	}
	return full, nil
}

// Close removes the directory tree. Safe to call more than once.
func (d *Dir) Close() error {
	d.once.Do(func() {
		d.err = os.RemoveAll(d.path)
	})
	return d.err
}
