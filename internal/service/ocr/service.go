package ocr

import (
	"context"
	"fmt"
	"mime/multipart"

	"github.com/peterchen97/pdf-ocr-service/internal/models"
	"github.com/peterchen97/pdf-ocr-service/internal/ocr/classify"
)

// Service orchestrates the OCR flow: intake, tool probing, command
// construction, execution, failure classification and the single retry.
type Service interface {
	// Process runs one upload through OCR synchronously.
	Process(ctx context.Context, file multipart.File, header *multipart.FileHeader, opts models.OCROptions) (*models.OCRResult, error)

	// ProcessBatch runs several uploads concurrently, ensuring the working
	// directories once for the whole batch. Per-file failures do not abort
	// the others.
	ProcessBatch(ctx context.Context, headers []*multipart.FileHeader, opts models.OCROptions) []BatchItem

	// ListProcessed lists the output PDFs currently on disk.
	ListProcessed(ctx context.Context) ([]models.ProcessedFile, error)
}

// BatchItem is the per-file outcome of a batch run.
type BatchItem struct {
	Filename string
	Result   *models.OCRResult
	Err      error
}

// ProcessError is a classified execution failure, carrying everything the
// client needs for diagnosis in one place.
type ProcessError struct {
	Class   classify.Classification
	Message string
	Details string
	Command string
	Stdout  string
	Stderr  string
}

func (e *ProcessError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// ErrorType returns the machine-readable tag for the response body.
func (e *ProcessError) ErrorType() string {
	return classify.ErrorType(e.Class)
}
