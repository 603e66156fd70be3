package tools

import (
	"context"
	"regexp"

	"github.com/peterchen97/pdf-ocr-service/pkg/logger"
	"github.com/peterchen97/pdf-ocr-service/pkg/runner"
)

// DependencyStatus reports one external binary's availability.
type DependencyStatus struct {
	Name      string `json:"name"`
	Command   string `json:"command"`
	Version   string `json:"version,omitempty"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
	Optional  bool   `json:"optional,omitempty"`
}

// DependencyChecker reports the state of every external tool.
type DependencyChecker interface {
	Check(ctx context.Context) []DependencyStatus
}

var tesseractVersionRe = regexp.MustCompile(`(?i)tesseract\s+v?([0-9][0-9.]*)`)

// Checker probes the required toolchain (ocrmypdf, tesseract, ghostscript)
// and the optional helpers (jbig2, unpaper).
type Checker struct {
	logger logger.Logger
	runner runner.Runner
	jbig2  Resolver
}

func NewChecker(log logger.Logger, run runner.Runner, jbig2 Resolver) *Checker {
	return &Checker{
		logger: log,
		runner: run,
		jbig2:  jbig2,
	}
}

func (c *Checker) Check(ctx context.Context) []DependencyStatus {
	deps := []DependencyStatus{
		c.probe(ctx, "OCRmyPDF", "ocrmypdf", false, nil),
		c.probe(ctx, "Tesseract OCR", "tesseract", false, parseTesseractVersion),
		c.probe(ctx, "Ghostscript", "gs", false, nil),
	}

	jbig2Status := DependencyStatus{
		Name:     "jbig2enc",
		Command:  "jbig2",
		Optional: true,
	}
	if info, ok := c.jbig2.Resolve(ctx); ok {
		jbig2Status.Available = true
		jbig2Status.Command = info.Path
		jbig2Status.Version = info.Version
	} else {
		jbig2Status.Error = "jbig2 not found"
	}
	deps = append(deps, jbig2Status)

	deps = append(deps, c.probe(ctx, "unpaper", "unpaper", true, nil))

	return deps
}

func (c *Checker) probe(ctx context.Context, name, command string, optional bool, parse func(string) string) DependencyStatus {
	status := DependencyStatus{
		Name:     name,
		Command:  command,
		Optional: optional,
	}

	out, err := c.runner.Version(ctx, command, "--version")
	if err != nil {
		status.Error = err.Error()
		return status
	}

	status.Available = true
	if parse != nil {
		status.Version = parse(out)
	} else {
		status.Version = firstLine(out)
	}
	return status
}

func parseTesseractVersion(out string) string {
	if m := tesseractVersionRe.FindStringSubmatch(out); m != nil {
		return m[1]
	}
	return firstLine(out)
}

// AllRequiredAvailable is true when every non-optional dependency answered.
func AllRequiredAvailable(deps []DependencyStatus) bool {
	for _, dep := range deps {
		if !dep.Optional && !dep.Available {
			return false
		}
	}
	return true
}

// AllAvailable is true when every dependency, optional ones included,
// answered.
func AllAvailable(deps []DependencyStatus) bool {
	for _, dep := range deps {
		if !dep.Available {
			return false
		}
	}
	return true
}
