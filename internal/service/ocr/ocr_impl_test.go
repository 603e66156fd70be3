package ocr

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peterchen97/pdf-ocr-service/internal/intake"
	"github.com/peterchen97/pdf-ocr-service/internal/models"
	"github.com/peterchen97/pdf-ocr-service/internal/ocr/classify"
	"github.com/peterchen97/pdf-ocr-service/internal/tools"
	"github.com/peterchen97/pdf-ocr-service/pkg/logger"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

// scriptedStep drives one invocation of the fake runner.
type scriptedStep struct {
	exitCode     int
	stdout       string
	stderr       string
	timedOut     bool
	createOutput bool
	startErr     error
}

// scriptedRunner replays a fixed sequence of process results, creating the
// output artifact when the script says the tool "succeeded". Batch runs
// invoke it from concurrent goroutines, so the script state is locked.
type scriptedRunner struct {
	mu          sync.Mutex
	steps       []scriptedStep
	invocations [][]string
}

func (r *scriptedRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (*models.ProcessResult, error) {
	r.mu.Lock()
	call := append([]string{name}, args...)
	r.invocations = append(r.invocations, call)

	if len(r.steps) == 0 {
		r.mu.Unlock()
		panic("scripted runner invoked more times than scripted")
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	r.mu.Unlock()

	if step.startErr != nil {
		return nil, step.startErr
	}

	if step.createOutput {
		outputPath := args[len(args)-1]
		if err := os.WriteFile(outputPath, []byte("%PDF-1.4 ocr output"), 0644); err != nil {
			return nil, err
		}
	}

	return &models.ProcessResult{
		ExitCode: step.exitCode,
		Stdout:   step.stdout,
		Stderr:   step.stderr,
		TimedOut: step.timedOut,
		Duration: 10 * time.Millisecond,
	}, nil
}

func (r *scriptedRunner) Version(ctx context.Context, name string, args ...string) (string, error) {
	return "", fmt.Errorf("not scripted")
}

// fakeResolver reports a fixed jbig2 availability.
type fakeResolver struct {
	info *tools.ToolInfo
	ok   bool
}

func (f *fakeResolver) Resolve(ctx context.Context) (*tools.ToolInfo, bool) {
	return f.info, f.ok
}

type fixture struct {
	service Service
	runner  *scriptedRunner
	intake  *intake.Intake
}

func newFixture(t *testing.T, steps []scriptedStep, jbig2 bool) *fixture {
	t.Helper()

	base := t.TempDir()
	in := intake.New(logger.NewTestLogger(), intake.Config{
		UploadsDir:     filepath.Join(base, "uploads"),
		ProcessedDir:   filepath.Join(base, "processed"),
		MaxUploadBytes: 10 << 20,
	})

	run := &scriptedRunner{steps: steps}
	resolver := &fakeResolver{ok: jbig2}
	if jbig2 {
		resolver.info = &tools.ToolInfo{Path: "/usr/bin/jbig2", Version: "jbig2enc 0.29"}
	}

	svc := NewService(in, resolver, run, logger.NewTestLogger(), ServiceConfig{
		OCRTimeout: time.Minute,
	})

	return &fixture{service: svc, runner: run, intake: in}
}

func makeUpload(t *testing.T, filename string, data []byte) (multipart.File, *multipart.FileHeader) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", "application/pdf")

	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(&body, writer.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })

	fh := form.File["file"][0]
	file, err := fh.Open()
	require.NoError(t, err)
	t.Cleanup(func() { file.Close() })

	return file, fh
}

func TestProcessSucceedsFirstAttempt(t *testing.T) {
	f := newFixture(t, []scriptedStep{
		{exitCode: 0, stdout: "Scanning contents", createOutput: true},
	}, true)

	file, fh := makeUpload(t, "scan.pdf", pdfBytes)
	result, err := f.service.Process(context.Background(), file, fh, models.DefaultOptions())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Attempts)
	assert.Regexp(t, `^scan_\d+\.pdf$`, result.InputFile)
	assert.Regexp(t, `^scan_\d+_ocr\.pdf$`, result.OutputFile)
	assert.Greater(t, result.FileSize, int64(0))
	assert.Len(t, f.runner.invocations, 1)

	// The output artifact is really on disk.
	assert.FileExists(t, filepath.Join(f.intake.ProcessedDir(), result.OutputFile))
}

func TestProcessRetriesWithSkipTextOnPriorOCR(t *testing.T) {
	f := newFixture(t, []scriptedStep{
		{exitCode: 1, stderr: "ERROR - page 3 already contains text"},
		{exitCode: 0, createOutput: true},
	}, true)

	opts := models.DefaultOptions()
	opts.ForceOCR = true

	file, fh := makeUpload(t, "scan.pdf", pdfBytes)
	result, err := f.service.Process(context.Background(), file, fh, opts)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempts)
	require.Len(t, f.runner.invocations, 2)

	first := f.runner.invocations[0]
	second := f.runner.invocations[1]
	assert.Contains(t, first, "--force-ocr")
	assert.Contains(t, second, "--skip-text")
	assert.NotContains(t, second, "--force-ocr", "the conflicting strategy must be dropped on retry")
}

func TestProcessRetriesWithForceOCROnTaggedPDF(t *testing.T) {
	f := newFixture(t, []scriptedStep{
		{exitCode: 1, stderr: "This PDF is a Tagged PDF"},
		{exitCode: 0, createOutput: true},
	}, true)

	opts := models.DefaultOptions()
	opts.SkipText = true

	file, fh := makeUpload(t, "tagged.pdf", pdfBytes)
	result, err := f.service.Process(context.Background(), file, fh, opts)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempts)
	require.Len(t, f.runner.invocations, 2)
	assert.Contains(t, f.runner.invocations[1], "--force-ocr")
	assert.NotContains(t, f.runner.invocations[1], "--skip-text")
}

func TestProcessStopsAfterSecondFailure(t *testing.T) {
	f := newFixture(t, []scriptedStep{
		{exitCode: 1, stderr: "page already contains text"},
		{exitCode: 1, stderr: "page already contains text"},
	}, true)

	file, fh := makeUpload(t, "stubborn.pdf", pdfBytes)
	_, err := f.service.Process(context.Background(), file, fh, models.DefaultOptions())

	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "has_text", perr.ErrorType())
	assert.NotEmpty(t, perr.Command)
	assert.Len(t, f.runner.invocations, 2, "no third attempt is ever made")
}

func TestProcessRetryStartFailureIsGeneric(t *testing.T) {
	f := newFixture(t, []scriptedStep{
		{exitCode: 1, stderr: "page already contains text"},
		{startErr: fmt.Errorf("fork/exec ocrmypdf: no such file or directory")},
	}, true)

	file, fh := makeUpload(t, "scan.pdf", pdfBytes)
	_, err := f.service.Process(context.Background(), file, fh, models.DefaultOptions())

	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, classify.GenericFailure, perr.Class)
	assert.Empty(t, perr.ErrorType(), "a spawn failure carries no document error tag")
	assert.Contains(t, perr.Details, "no such file")
}

func TestProcessTimeoutIsTerminal(t *testing.T) {
	f := newFixture(t, []scriptedStep{
		{exitCode: -1, stderr: "page already contains text", timedOut: true},
	}, true)

	file, fh := makeUpload(t, "slow.pdf", pdfBytes)
	_, err := f.service.Process(context.Background(), file, fh, models.DefaultOptions())

	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, classify.Timeout, perr.Class)
	assert.Len(t, f.runner.invocations, 1, "timeouts are never retried")
}

func TestProcessRejectsZeroExitWithoutOutput(t *testing.T) {
	f := newFixture(t, []scriptedStep{
		{exitCode: 0, createOutput: false},
	}, true)

	file, fh := makeUpload(t, "phantom.pdf", pdfBytes)
	_, err := f.service.Process(context.Background(), file, fh, models.DefaultOptions())

	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, classify.GenericFailure, perr.Class)
	assert.Contains(t, perr.Details, "not created or is empty")
}

func TestProcessDowngradesOptimizeWithoutJBIG2(t *testing.T) {
	f := newFixture(t, []scriptedStep{
		{exitCode: 0, createOutput: true},
	}, false)

	opts := models.DefaultOptions()
	opts.OptimizeLevel = 3

	file, fh := makeUpload(t, "scan.pdf", pdfBytes)
	_, err := f.service.Process(context.Background(), file, fh, opts)

	require.NoError(t, err)
	require.Len(t, f.runner.invocations, 1)
	args := f.runner.invocations[0]

	for i, arg := range args {
		if arg == "--optimize" {
			assert.Equal(t, "1", args[i+1])
			return
		}
	}
	t.Fatal("--optimize flag not found")
}

func TestProcessKeepsOptimizeWithJBIG2(t *testing.T) {
	f := newFixture(t, []scriptedStep{
		{exitCode: 0, createOutput: true},
	}, true)

	opts := models.DefaultOptions()
	opts.OptimizeLevel = 3

	file, fh := makeUpload(t, "scan.pdf", pdfBytes)
	_, err := f.service.Process(context.Background(), file, fh, opts)

	require.NoError(t, err)
	args := f.runner.invocations[0]
	for i, arg := range args {
		if arg == "--optimize" {
			assert.Equal(t, "3", args[i+1])
			return
		}
	}
	t.Fatal("--optimize flag not found")
}

func TestProcessBatchCollectsPerFileOutcomes(t *testing.T) {
	f := newFixture(t, []scriptedStep{
		{exitCode: 0, createOutput: true},
		{exitCode: 0, createOutput: true},
	}, true)

	_, fhA := makeUpload(t, "a.pdf", pdfBytes)
	_, fhB := makeUpload(t, "b.pdf", pdfBytes)

	items := f.service.ProcessBatch(context.Background(), []*multipart.FileHeader{fhA, fhB}, models.DefaultOptions())

	require.Len(t, items, 2)
	for _, item := range items {
		assert.NoError(t, item.Err)
		assert.NotNil(t, item.Result)
	}
}

func TestListProcessedReturnsOnlyPDFs(t *testing.T) {
	f := newFixture(t, nil, true)
	require.NoError(t, os.MkdirAll(f.intake.ProcessedDir(), 0755))

	require.NoError(t, os.WriteFile(filepath.Join(f.intake.ProcessedDir(), "done_ocr.pdf"), []byte("%PDF"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(f.intake.ProcessedDir(), "note.txt"), []byte("x"), 0644))

	files, err := f.service.ListProcessed(context.Background())
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Equal(t, "done_ocr.pdf", files[0].Name)
	assert.NotEmpty(t, files[0].SizeHuman)
	assert.Contains(t, files[0].Path, "/api/download?file=")
}

func TestListProcessedMissingDirectoryIsEmpty(t *testing.T) {
	f := newFixture(t, nil, true)

	files, err := f.service.ListProcessed(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files)
}
