// Package command turns an option record into an ocrmypdf invocation.
// Building is a pure function; flag order is fixed so retries can be
// constructed by rebuilding from substituted options rather than by
// patching a previous command line.
package command

import (
	"strconv"

	"github.com/peterchen97/pdf-ocr-service/internal/models"
)

// Program is the external OCR tool, resolved through PATH.
const Program = "ocrmypdf"

// jbig2SafeOptimizeLevel is the highest --optimize level ocrmypdf can run
// without the jbig2 encoder.
const jbig2SafeOptimizeLevel = 1

// Build produces the invocation for one attempt. Token order: language,
// boolean flags in declared order, numeric/enum flags, then the two paths.
func Build(opts models.OCROptions, inputPath, outputPath string, attempt int) models.CommandInvocation {
	args := make([]string, 0, 16)

	if opts.Language != "" && opts.Language != models.DefaultLanguage {
		args = append(args, "--language", opts.Language)
	}
	if opts.Deskew {
		args = append(args, "--deskew")
	}
	if opts.SkipText {
		args = append(args, "--skip-text")
	}
	if opts.ForceOCR {
		args = append(args, "--force-ocr")
	}
	if opts.RedoOCR {
		args = append(args, "--redo-ocr")
	}
	if opts.RemoveBackground {
		args = append(args, "--remove-background")
	}
	if opts.Clean {
		args = append(args, "--clean")
	}
	if opts.OptimizeLevel > 0 {
		args = append(args, "--optimize", strconv.Itoa(opts.OptimizeLevel))
	}
	if opts.RotatePages != "" && opts.RotatePages != models.AutoSentinel {
		args = append(args, "--rotate-pages", opts.RotatePages)
	}
	if opts.PDFRenderer != "" && opts.PDFRenderer != models.AutoSentinel {
		args = append(args, "--pdf-renderer", opts.PDFRenderer)
	}

	args = append(args, inputPath, outputPath)

	return models.CommandInvocation{
		Program:    Program,
		Args:       args,
		InputPath:  inputPath,
		OutputPath: outputPath,
		Attempt:    attempt,
	}
}

// ApplyToolAvailability downgrades the optimization level when the jbig2
// encoder is missing, so ocrmypdf does not fail outright on aggressive
// optimization it cannot perform.
func ApplyToolAvailability(opts models.OCROptions, jbig2Available bool) models.OCROptions {
	if !jbig2Available && opts.OptimizeLevel > jbig2SafeOptimizeLevel {
		opts.OptimizeLevel = jbig2SafeOptimizeLevel
	}
	return opts
}
