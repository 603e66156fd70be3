package ocr

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/peterchen97/pdf-ocr-service/internal/intake"
	"github.com/peterchen97/pdf-ocr-service/internal/models"
	"github.com/peterchen97/pdf-ocr-service/internal/ocr/classify"
	"github.com/peterchen97/pdf-ocr-service/internal/ocr/command"
	"github.com/peterchen97/pdf-ocr-service/internal/tools"
	"github.com/peterchen97/pdf-ocr-service/pkg/logger"
	"github.com/peterchen97/pdf-ocr-service/pkg/runner"
)

// responseStreamLimit caps the stdout/stderr echoed in HTTP responses.
const responseStreamLimit = 10000

const outputSuffix = "_ocr.pdf"

// ServiceConfig tunes the orchestration service.
type ServiceConfig struct {
	OCRTimeout    time.Duration
	MaxConcurrent int
}

type ocrService struct {
	intake   *intake.Intake
	resolver tools.Resolver
	runner   runner.Runner
	logger   logger.Logger
	config   ServiceConfig
}

// NewService wires the orchestration service from its collaborators.
func NewService(
	in *intake.Intake,
	resolver tools.Resolver,
	run runner.Runner,
	log logger.Logger,
	cfg ServiceConfig,
) Service {
	if cfg.OCRTimeout <= 0 {
		cfg.OCRTimeout = 10 * time.Minute
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &ocrService{
		intake:   in,
		resolver: resolver,
		runner:   run,
		logger:   log,
		config:   cfg,
	}
}

func (s *ocrService) Process(ctx context.Context, file multipart.File, header *multipart.FileHeader, opts models.OCROptions) (*models.OCRResult, error) {
	if err := s.intake.EnsureDirectories(); err != nil {
		return nil, err
	}
	return s.process(ctx, file, header, opts)
}

func (s *ocrService) ProcessBatch(ctx context.Context, headers []*multipart.FileHeader, opts models.OCROptions) []BatchItem {
	items := make([]BatchItem, len(headers))

	if err := s.intake.EnsureDirectories(); err != nil {
		for i, header := range headers {
			items[i] = BatchItem{Filename: header.Filename, Err: err}
		}
		return items
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrent)
	var mu sync.Mutex

	for i, header := range headers {
		i, header := i, header
		g.Go(func() error {
			item := BatchItem{Filename: header.Filename}

			f, err := header.Open()
			if err != nil {
				item.Err = &intake.ValidationError{
					Code:    intake.CodeIOFailure,
					Message: fmt.Sprintf("failed to open upload %s: %v", header.Filename, err),
				}
			} else {
				defer f.Close()
				item.Result, item.Err = s.process(ctx, f, header, opts)
			}

			mu.Lock()
			items[i] = item
			mu.Unlock()
			return nil
		})
	}

	g.Wait()
	return items
}

// process runs the full attempt/retry flow for one already-validated
// request. Directories are assumed ensured.
func (s *ocrService) process(ctx context.Context, file multipart.File, header *multipart.FileHeader, opts models.OCROptions) (*models.OCRResult, error) {
	stored, err := s.intake.Store(file, header)
	if err != nil {
		return nil, err
	}

	_, jbig2Available := s.resolver.Resolve(ctx)
	opts = command.ApplyToolAvailability(opts, jbig2Available)

	outputName := stored.Stem + outputSuffix
	outputPath := filepath.Join(s.intake.ProcessedDir(), outputName)

	inv := command.Build(opts, stored.Path, outputPath, 1)
	result, runErr := s.attempt(ctx, inv)
	if runErr != nil {
		return nil, &ProcessError{
			Class:   classify.GenericFailure,
			Message: "failed to execute OCRmyPDF",
			Details: runErr.Error(),
			Command: inv.String(),
		}
	}

	if result.Success() {
		return s.finish(stored, outputName, outputPath, result, inv)
	}

	class := classify.Classify(result.Stderr, result.TimedOut)
	retryOpts, retry := classify.RetryOptions(class, inv.Attempt, opts)
	if !retry {
		return nil, s.terminalError(class, result, inv)
	}

	s.logger.Info("retrying OCR with adjusted flags",
		logger.String("file", stored.SafeName),
		logger.String("reason", string(class)),
	)

	retryInv := command.Build(retryOpts, stored.Path, outputPath, 2)
	retryResult, runErr := s.attempt(ctx, retryInv)
	if runErr != nil {
		// A process that could not start is an execution problem, not the
		// document condition that triggered the retry.
		return nil, &ProcessError{
			Class:   classify.GenericFailure,
			Message: "OCR retry failed to execute",
			Details: runErr.Error(),
			Command: retryInv.String(),
		}
	}

	if retryResult.Success() {
		return s.finish(stored, outputName, outputPath, retryResult, retryInv)
	}

	// No third attempt. Prefer the retry's own classification when it
	// matched a signature; otherwise keep the reason the retry was issued.
	finalClass := classify.Classify(retryResult.Stderr, retryResult.TimedOut)
	if finalClass == classify.GenericFailure {
		finalClass = class
	}
	return nil, s.terminalError(finalClass, retryResult, retryInv)
}

// attempt executes one invocation and verifies the claimed output.
func (s *ocrService) attempt(ctx context.Context, inv models.CommandInvocation) (*models.ProcessResult, error) {
	s.logger.Info("executing OCR command",
		logger.Int("attempt", inv.Attempt),
		logger.String("command", inv.String()),
	)

	result, err := s.runner.Run(ctx, s.config.OCRTimeout, inv.Program, inv.Args...)
	if err != nil {
		return nil, err
	}

	// Exit code zero alone is not trusted: the tool has silent-failure
	// modes that leave no usable artifact behind.
	if result.Success() {
		info, statErr := os.Stat(inv.OutputPath)
		if statErr != nil || info.Size() == 0 {
			result.ExitCode = -1
			if result.Stderr != "" {
				result.Stderr += "\n"
			}
			result.Stderr += "OCR completed but the output file was not created or is empty"
		}
	}

	return result, nil
}

func (s *ocrService) finish(stored *models.StoredFile, outputName, outputPath string, result *models.ProcessResult, inv models.CommandInvocation) (*models.OCRResult, error) {
	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, &ProcessError{
			Class:   classify.GenericFailure,
			Message: "failed to verify output file",
			Details: err.Error(),
			Command: inv.String(),
		}
	}

	s.logger.Info("OCR completed",
		logger.String("input", stored.SafeName),
		logger.String("output", outputName),
		logger.String("size", humanize.Bytes(uint64(info.Size()))),
		logger.Int("attempts", inv.Attempt),
		logger.Duration("duration", result.Duration),
	)

	return &models.OCRResult{
		InputFile:  stored.SafeName,
		OutputFile: outputName,
		Stdout:     truncateForResponse(result.Stdout),
		Stderr:     truncateForResponse(result.Stderr),
		FileSize:   info.Size(),
		Attempts:   inv.Attempt,
	}, nil
}

func (s *ocrService) terminalError(class classify.Classification, result *models.ProcessResult, inv models.CommandInvocation) *ProcessError {
	perr := &ProcessError{
		Class:   class,
		Command: inv.String(),
		Stdout:  truncateForResponse(result.Stdout),
		Stderr:  truncateForResponse(result.Stderr),
	}

	switch class {
	case classify.HasTextLayer:
		perr.Message = "PDF already contains text and the skip-text retry failed"
	case classify.TaggedPDF:
		perr.Message = "PDF is a tagged PDF and the force-ocr retry failed"
	case classify.Timeout:
		perr.Message = fmt.Sprintf("OCR processing timed out after %s", s.config.OCRTimeout)
	default:
		perr.Message = "failed to execute OCRmyPDF"
	}
	perr.Details = truncateForResponse(result.Stderr)

	s.logger.Error("OCR failed",
		logger.String("class", string(class)),
		logger.Int("attempt", inv.Attempt),
		logger.Int("exitCode", result.ExitCode),
		logger.String("command", perr.Command),
	)

	return perr
}

func (s *ocrService) ListProcessed(ctx context.Context) ([]models.ProcessedFile, error) {
	entries, err := os.ReadDir(s.intake.ProcessedDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []models.ProcessedFile{}, nil
		}
		return nil, fmt.Errorf("failed to read processed directory: %w", err)
	}

	files := make([]models.ProcessedFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".pdf") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, models.ProcessedFile{
			Name:       entry.Name(),
			Size:       info.Size(),
			SizeHuman:  humanize.Bytes(uint64(info.Size())),
			ModifiedAt: info.ModTime(),
			Path:       "/api/download?file=" + url.QueryEscape(entry.Name()),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModifiedAt.After(files[j].ModifiedAt)
	})

	return files, nil
}

func truncateForResponse(s string) string {
	if len(s) <= responseStreamLimit {
		return s
	}
	return s[:responseStreamLimit] + "... [truncated]"
}
