// Package classify inspects the stderr of a failed ocrmypdf run and
// decides whether a single retry with adjusted flags is worth attempting.
package classify

import (
	"strings"

	"github.com/peterchen97/pdf-ocr-service/internal/models"
)

// Classification of a failed attempt.
type Classification string

const (
	// HasTextLayer means the document already carries OCR text.
	HasTextLayer Classification = "has_text"
	// TaggedPDF means the document is a tagged (accessibility) PDF.
	TaggedPDF Classification = "tagged_pdf"
	// Timeout means the wall-clock budget expired before completion.
	Timeout Classification = "timeout"
	// GenericFailure is every other non-zero exit.
	GenericFailure Classification = "generic"
)

// MaxAttempts bounds the retry loop. Attempt 2 is final.
const MaxAttempts = 2

// Stderr signatures, matched case-insensitively in priority order.
var (
	hasTextSignatures = []string{
		"already contains text",
		"page already has text",
		"prior ocr",
	}
	taggedPDFSignatures = []string{
		"tagged pdf",
	}
)

// Classify is a pure function of the captured stderr and the timeout flag.
// A timed-out run is never retried: flag changes do not fix a document
// that cannot finish within the budget.
func Classify(stderr string, timedOut bool) Classification {
	if timedOut {
		return Timeout
	}

	lowered := strings.ToLower(stderr)
	for _, sig := range hasTextSignatures {
		if strings.Contains(lowered, sig) {
			return HasTextLayer
		}
	}
	for _, sig := range taggedPDFSignatures {
		if strings.Contains(lowered, sig) {
			return TaggedPDF
		}
	}
	return GenericFailure
}

// RetryOptions returns the adjusted options for a second attempt and
// whether a retry is permitted. Only the first attempt may retry, and only
// for the two recoverable signatures.
//
// A prior text layer is recovered with --skip-text rather than --force-ocr:
// skipping pages that already have text is non-destructive, while forcing
// rasterizes and discards the existing layer. Conflicting prior-OCR flags
// are cleared so the rebuilt command carries exactly one strategy.
func RetryOptions(class Classification, attempt int, opts models.OCROptions) (models.OCROptions, bool) {
	if attempt >= MaxAttempts {
		return opts, false
	}

	switch class {
	case HasTextLayer:
		opts.SkipText = true
		opts.ForceOCR = false
		opts.RedoOCR = false
		return opts, true
	case TaggedPDF:
		opts.ForceOCR = true
		opts.SkipText = false
		opts.RedoOCR = false
		return opts, true
	default:
		return opts, false
	}
}

// ErrorType is the machine-readable error tag surfaced to clients, empty
// for classifications that carry no dedicated tag.
func ErrorType(class Classification) string {
	switch class {
	case HasTextLayer:
		return "has_text"
	case TaggedPDF:
		return "tagged_pdf"
	default:
		return ""
	}
}
