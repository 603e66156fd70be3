// Package tools discovers the external binaries the service depends on.
package tools

import (
	"context"
	"strings"

	"github.com/peterchen97/pdf-ocr-service/pkg/logger"
	"github.com/peterchen97/pdf-ocr-service/pkg/runner"
)

// ToolInfo describes a located optional binary.
type ToolInfo struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

// Resolver locates an optional companion binary. Absence is an expected
// outcome, reported through the boolean, never through a panic or error.
type Resolver interface {
	Resolve(ctx context.Context) (*ToolInfo, bool)
}

// standard installation directories checked after the configured path and
// the project-relative build output.
var jbig2StandardPaths = []string{
	"/usr/bin/jbig2",
	"/usr/local/bin/jbig2",
	"/opt/homebrew/bin/jbig2",
}

const jbig2LocalBuildPath = "./jbig2enc/src/jbig2"

// JBIG2Resolver finds a working jbig2 encoder, which ocrmypdf needs for
// its aggressive optimization levels.
type JBIG2Resolver struct {
	logger         logger.Logger
	runner         runner.Runner
	configuredPath string
}

func NewJBIG2Resolver(log logger.Logger, run runner.Runner, configuredPath string) *JBIG2Resolver {
	return &JBIG2Resolver{
		logger:         log,
		runner:         run,
		configuredPath: configuredPath,
	}
}

// Resolve tries each candidate in order: the configured path, the local
// build output, the standard installation directories, then bare-name PATH
// resolution. The first candidate that answers a version probe wins.
func (r *JBIG2Resolver) Resolve(ctx context.Context) (*ToolInfo, bool) {
	for _, candidate := range r.candidates() {
		out, err := r.runner.Version(ctx, candidate, "--version")
		if err != nil || looksAbsent(out) {
			continue
		}
		info := &ToolInfo{
			Path:    candidate,
			Version: firstLine(out),
		}
		r.logger.Debug("jbig2 located",
			logger.String("path", info.Path),
			logger.String("version", info.Version),
		)
		return info, true
	}

	r.logger.Info("jbig2 not found on any candidate path, optimization will be limited")
	return nil, false
}

func (r *JBIG2Resolver) candidates() []string {
	candidates := make([]string, 0, len(jbig2StandardPaths)+3)
	if r.configuredPath != "" {
		candidates = append(candidates, r.configuredPath)
	}
	candidates = append(candidates, jbig2LocalBuildPath)
	candidates = append(candidates, jbig2StandardPaths...)
	candidates = append(candidates, "jbig2")
	return candidates
}

func looksAbsent(out string) bool {
	return strings.Contains(strings.ToLower(out), "not found")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
