package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peterchen97/pdf-ocr-service/internal/models"
)

func TestBuildDefaultsProduceMinimalCommand(t *testing.T) {
	opts := models.DefaultOptions()
	opts.OptimizeLevel = 0

	inv := Build(opts, "/in/doc.pdf", "/out/doc_ocr.pdf", 1)

	assert.Equal(t, Program, inv.Program)
	assert.Equal(t, []string{"/in/doc.pdf", "/out/doc_ocr.pdf"}, inv.Args)
	assert.Equal(t, 1, inv.Attempt)
}

func TestBuildAllOptionsInDeclaredOrder(t *testing.T) {
	opts := models.OCROptions{
		Language:         "deu",
		Deskew:           true,
		SkipText:         true,
		ForceOCR:         true,
		RedoOCR:          true,
		RemoveBackground: true,
		Clean:            true,
		OptimizeLevel:    2,
		RotatePages:      "90",
		PDFRenderer:      "hocr",
	}

	inv := Build(opts, "/in/a.pdf", "/out/a_ocr.pdf", 1)

	assert.Equal(t, []string{
		"--language", "deu",
		"--deskew",
		"--skip-text",
		"--force-ocr",
		"--redo-ocr",
		"--remove-background",
		"--clean",
		"--optimize", "2",
		"--rotate-pages", "90",
		"--pdf-renderer", "hocr",
		"/in/a.pdf",
		"/out/a_ocr.pdf",
	}, inv.Args)
}

func TestBuildOmitsDefaultSentinels(t *testing.T) {
	opts := models.OCROptions{
		Language:    "eng",
		RotatePages: "auto",
		PDFRenderer: "auto",
	}

	inv := Build(opts, "in.pdf", "out.pdf", 1)

	assert.NotContains(t, inv.Args, "--language")
	assert.NotContains(t, inv.Args, "--rotate-pages")
	assert.NotContains(t, inv.Args, "--pdf-renderer")
	assert.NotContains(t, inv.Args, "--optimize")
}

func TestBuildIsDeterministic(t *testing.T) {
	opts := models.DefaultOptions()
	opts.Deskew = true

	first := Build(opts, "in.pdf", "out.pdf", 1)
	second := Build(opts, "in.pdf", "out.pdf", 1)

	assert.Equal(t, first.Args, second.Args)
}

func TestBuildPathsComeLast(t *testing.T) {
	opts := models.DefaultOptions()
	inv := Build(opts, "/tmp/input file.pdf", "/tmp/output file.pdf", 2)

	require.GreaterOrEqual(t, len(inv.Args), 2)
	assert.Equal(t, "/tmp/input file.pdf", inv.Args[len(inv.Args)-2])
	assert.Equal(t, "/tmp/output file.pdf", inv.Args[len(inv.Args)-1])
	assert.Equal(t, 2, inv.Attempt)
}

func TestInvocationStringQuotesPaths(t *testing.T) {
	opts := models.OCROptions{}
	inv := Build(opts, "/tmp/my report.pdf", "/tmp/my report_ocr.pdf", 1)

	line := inv.String()
	assert.Contains(t, line, "'/tmp/my report.pdf'")
	assert.Contains(t, line, "'/tmp/my report_ocr.pdf'")
}

func TestApplyToolAvailabilityDowngradesOptimize(t *testing.T) {
	tests := []struct {
		name      string
		level     int
		available bool
		want      int
	}{
		{"jbig2 present keeps level", 3, true, 3},
		{"jbig2 absent downgrades high level", 3, false, 1},
		{"jbig2 absent keeps safe level", 1, false, 1},
		{"jbig2 absent keeps zero", 0, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := models.OCROptions{OptimizeLevel: tt.level}
			got := ApplyToolAvailability(opts, tt.available)
			assert.Equal(t, tt.want, got.OptimizeLevel)
		})
	}
}
