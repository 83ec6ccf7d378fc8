package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/feichai0017/study-assistant/pkg/logger"
)

const (
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeEmptyFile       = "EMPTY_FILE"
	CodeInvalidFileType = "INVALID_FILE_TYPE"
	CodeInvalidMimeType = "INVALID_MIME_TYPE"
)

// ErrInvalidFile matches every *InvalidFileError.
var ErrInvalidFile = errors.New("invalid file")

type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

type ValidatorConfig struct {
	MaxFileSize int64
	// AllowedTypes maps an extension to the content types accepted for it.
	// A detected type also matches when one of its parents is listed.
	AllowedTypes map[string][]string
}

type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
}

// InvalidFileError carries every rule a file broke.
type InvalidFileError struct {
	Errors []ValidationError
}

func (e *InvalidFileError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Message
	}
	return "invalid file: " + strings.Join(msgs, "; ")
}

func (e *InvalidFileError) Is(target error) bool {
	return target == ErrInvalidFile
}

// Err returns nil for a valid file and an *InvalidFileError otherwise.
func (r *ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return &InvalidFileError{Errors: r.Errors}
}

// DefaultConfig accepts the upload types the extractor handles, up to maxSize bytes.
func DefaultConfig(maxSize int64) *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize: maxSize,
		AllowedTypes: map[string][]string{
			".pdf":  {"application/pdf"},
			".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
			".pptx": {"application/vnd.openxmlformats-officedocument.presentationml.presentation", "application/zip"},
			".txt":  {"text/plain"},
		},
	}
}

func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = DefaultConfig(10 << 20)
	}
	return &DocumentValidator{
		logger: log.Named("validator"),
		config: config,
	}
}

// AllowedExtensions lists the configured extensions.
func (v *DocumentValidator) AllowedExtensions() []string {
	exts := make([]string, 0, len(v.config.AllowedTypes))
	for ext := range v.config.AllowedTypes {
		exts = append(exts, ext)
	}
	return exts
}

func (v *DocumentValidator) ValidateFile(file *multipart.FileHeader) (*ValidationResult, error) {
	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return v.Validate(f, file.Filename, file.Size)
}

// Validate checks size, extension and sniffed content type. The reader is
// rewound before returning.
func (v *DocumentValidator) Validate(r io.ReadSeeker, filename string, size int64) (*ValidationResult, error) {
	result := &ValidationResult{
		IsValid: true,
		Errors:  make([]ValidationError, 0),
		FileInfo: FileInfo{
			Filename:  filename,
			Size:      size,
			Extension: strings.ToLower(filepath.Ext(filename)),
		},
	}

	hash, err := calculateHash(r)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}
	result.FileInfo.Hash = hash

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file pointer: %w", err)
	}

	result.addAll(v.performBasicValidation(result.FileInfo))

	if _, ok := v.config.AllowedTypes[result.FileInfo.Extension]; ok && size > 0 {
		mtype, err := mimetype.DetectReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to detect mime type: %w", err)
		}
		result.FileInfo.MimeType = mtype.String()
		result.addAll(v.validateMimeType(mtype, result.FileInfo.Extension))

		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to reset file pointer: %w", err)
		}
	}

	if !result.IsValid {
		v.logger.Info("File rejected",
			logger.String("filename", filename),
			logger.String("mimeType", result.FileInfo.MimeType),
			logger.Int("errors", len(result.Errors)),
		)
	}
	return result, nil
}

func (r *ValidationResult) addAll(errs []ValidationError) {
	if len(errs) == 0 {
		return
	}
	r.IsValid = false
	r.Errors = append(r.Errors, errs...)
}

func (v *DocumentValidator) performBasicValidation(info FileInfo) []ValidationError {
	var errs []ValidationError

	if info.Size <= 0 {
		errs = append(errs, ValidationError{
			Code:    CodeEmptyFile,
			Message: "File is empty",
			Field:   "size",
		})
	}
	if v.config.MaxFileSize > 0 && info.Size > v.config.MaxFileSize {
		errs = append(errs, ValidationError{
			Code:    CodeFileTooLarge,
			Message: fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}
	if _, ok := v.config.AllowedTypes[info.Extension]; !ok {
		errs = append(errs, ValidationError{
			Code:    CodeInvalidFileType,
			Message: "Unsupported file type. Please upload PDF, DOCX, PPTX, or TXT files.",
			Field:   "extension",
		})
	}
	return errs
}

func (v *DocumentValidator) validateMimeType(detected *mimetype.MIME, ext string) []ValidationError {
	for m := detected; m != nil; m = m.Parent() {
		for _, allowed := range v.config.AllowedTypes[ext] {
			if m.Is(allowed) {
				return nil
			}
		}
	}
	return []ValidationError{{
		Code:    CodeInvalidMimeType,
		Message: fmt.Sprintf("Invalid MIME type %s for extension %s", detected.String(), ext),
		Field:   "mimeType",
	}}
}

func calculateHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
