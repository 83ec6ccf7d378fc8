package document

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat matches any *UnsupportedFormatError via errors.Is.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrExtractionFailed matches any *ExtractionFailedError via errors.Is.
	ErrExtractionFailed = errors.New("extraction failed")
)

// UnsupportedFormatError is returned before any read when the extension is
// not one of the recognised formats.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Ext == "" {
		return "unsupported file format: missing extension"
	}
	return fmt.Sprintf("unsupported file format: %s", e.Ext)
}

func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

// ExtractionFailedError wraps a fatal extractor failure.
type ExtractionFailedError struct {
	Format Format
	Cause  error
}

func (e *ExtractionFailedError) Error() string {
	return fmt.Sprintf("failed to extract %s document: %v", e.Format, e.Cause)
}

func (e *ExtractionFailedError) Unwrap() error {
	return e.Cause
}

func (e *ExtractionFailedError) Is(target error) bool {
	return target == ErrExtractionFailed
}
