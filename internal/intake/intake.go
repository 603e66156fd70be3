// Package intake validates uploaded files and persists them to the uploads
// directory under collision-resistant names.
package intake

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/peterchen97/pdf-ocr-service/internal/models"
	"github.com/peterchen97/pdf-ocr-service/pkg/logger"
)

// Validation error codes.
const (
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	CodePermissionDenied     = "PERMISSION_DENIED"
	CodeIOFailure            = "IO_FAILURE"
	CodeMalformedRequest     = "MALFORMED_REQUEST"
)

const (
	acceptedMediaType = "application/pdf"
	acceptedExtension = ".pdf"
)

// ValidationError is a classified intake failure.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Config for the intake service.
type Config struct {
	UploadsDir     string
	ProcessedDir   string
	MaxUploadBytes int64
}

// Intake validates and stores uploads.
type Intake struct {
	logger logger.Logger
	config Config
}

func New(log logger.Logger, cfg Config) *Intake {
	return &Intake{
		logger: log,
		config: cfg,
	}
}

// UploadsDir returns the intake directory.
func (in *Intake) UploadsDir() string { return in.config.UploadsDir }

// ProcessedDir returns the output directory.
func (in *Intake) ProcessedDir() string { return in.config.ProcessedDir }

// EnsureDirectories creates the uploads and processed directories and
// probes each with a write-then-delete of a throwaway file. Called once per
// request, before any file is stored.
func (in *Intake) EnsureDirectories() error {
	for _, dir := range []string{in.config.UploadsDir, in.config.ProcessedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &ValidationError{
				Code:    CodePermissionDenied,
				Message: fmt.Sprintf("cannot create directory %s: %v", dir, err),
			}
		}
		if err := probeWritable(dir); err != nil {
			return &ValidationError{
				Code:    CodePermissionDenied,
				Message: fmt.Sprintf("directory %s is not writable: %v", dir, err),
			}
		}
	}
	return nil
}

func probeWritable(dir string) error {
	probe := filepath.Join(dir, fmt.Sprintf("write-test-%s.tmp", uuid.NewString()))
	if err := os.WriteFile(probe, []byte("permission test"), 0644); err != nil {
		return err
	}
	return os.Remove(probe)
}

// Store validates the upload and writes it to the uploads directory,
// returning the stored file record. All validation happens before any byte
// touches the disk.
func (in *Intake) Store(file multipart.File, header *multipart.FileHeader) (*models.StoredFile, error) {
	if err := in.validateHeader(header); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, &ValidationError{
			Code:    CodeIOFailure,
			Message: fmt.Sprintf("failed to read upload: %v", err),
		}
	}

	if err := in.validateContent(data); err != nil {
		return nil, err
	}

	base := header.Filename
	if ext := filepath.Ext(base); ext != "" {
		base = base[:len(base)-len(ext)]
	}
	stem := fmt.Sprintf("%s_%d", SanitizeBaseName(base), nextStamp())
	safeName := stem + acceptedExtension
	path := filepath.Join(in.config.UploadsDir, safeName)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, &ValidationError{
			Code:    CodeIOFailure,
			Message: fmt.Sprintf("failed to save file: %v", err),
		}
	}

	// Re-read the size from disk; a partial or interrupted write must fail
	// the job before the OCR tool ever sees the file.
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ValidationError{
			Code:    CodeIOFailure,
			Message: fmt.Sprintf("failed to verify saved file: %v", err),
		}
	}
	if info.Size() == 0 || info.Size() != int64(len(data)) {
		return nil, &ValidationError{
			Code: CodeIOFailure,
			Message: fmt.Sprintf("saved file size %d does not match upload size %d",
				info.Size(), len(data)),
		}
	}

	stored := &models.StoredFile{
		OriginalName: header.Filename,
		SafeName:     safeName,
		Stem:         stem,
		Path:         path,
		Size:         info.Size(),
		StoredAt:     time.Now(),
	}

	if pages, err := countPages(data); err != nil {
		in.logger.Warn("could not inspect PDF structure",
			logger.String("file", safeName),
			logger.Error(err),
		)
	} else {
		stored.Pages = pages
	}

	in.logger.Info("file stored",
		logger.String("file", safeName),
		logger.Int64("size", stored.Size),
		logger.Int("pages", stored.Pages),
	)

	return stored, nil
}

func (in *Intake) validateHeader(header *multipart.FileHeader) error {
	declared := header.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(declared); err != nil || mediaType != acceptedMediaType {
		return &ValidationError{
			Code:    CodeUnsupportedMediaType,
			Message: fmt.Sprintf("content type %q is not supported, only %s is accepted", declared, acceptedMediaType),
			Field:   "file",
		}
	}

	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != acceptedExtension {
		return &ValidationError{
			Code:    CodeUnsupportedMediaType,
			Message: fmt.Sprintf("file extension %q is not supported, only %s is accepted", ext, acceptedExtension),
			Field:   "file",
		}
	}

	if header.Size > in.config.MaxUploadBytes {
		return &ValidationError{
			Code: CodePayloadTooLarge,
			Message: fmt.Sprintf("file size %.2f MB exceeds the maximum of %d MB",
				float64(header.Size)/(1024*1024), in.config.MaxUploadBytes/(1024*1024)),
			Field: "file",
		}
	}

	return nil
}

func (in *Intake) validateContent(data []byte) error {
	if int64(len(data)) > in.config.MaxUploadBytes {
		return &ValidationError{
			Code: CodePayloadTooLarge,
			Message: fmt.Sprintf("file size %.2f MB exceeds the maximum of %d MB",
				float64(len(data))/(1024*1024), in.config.MaxUploadBytes/(1024*1024)),
			Field: "file",
		}
	}

	if !mimetype.Detect(data).Is(acceptedMediaType) {
		return &ValidationError{
			Code:    CodeUnsupportedMediaType,
			Message: "file content is not a PDF document",
			Field:   "file",
		}
	}

	return nil
}

// countPages parses the PDF to report its page count. The parser panics on
// some malformed documents, so the call is fenced; a failure here only
// degrades logging, never the job.
func countPages(data []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return 0, err
	}
	return pdfReader.NumPage(), nil
}
