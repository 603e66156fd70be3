package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/peterchen97/pdf-ocr-service/config"
	"github.com/peterchen97/pdf-ocr-service/internal/service/ocr"
	"github.com/peterchen97/pdf-ocr-service/internal/tools"
	"github.com/peterchen97/pdf-ocr-service/pkg/logger"
)

type SystemHandler struct {
	service ocr.Service
	checker tools.DependencyChecker
	config  *config.Config
	logger  logger.Logger
	started time.Time
}

func NewSystemHandler(service ocr.Service, checker tools.DependencyChecker, cfg *config.Config, log logger.Logger) *SystemHandler {
	return &SystemHandler{
		service: service,
		checker: checker,
		config:  cfg,
		logger:  log,
		started: time.Now(),
	}
}

type directoryCheck struct {
	Directory string `json:"directory"`
	Exists    bool   `json:"exists"`
	Writable  bool   `json:"writable"`
	Error     string `json:"error,omitempty"`
}

// Health handles GET /api/health.
func (h *SystemHandler) Health(c *gin.Context) {
	dirChecks, allWritable := checkDirectories([]string{h.config.UploadsDir, h.config.ProcessedDir})
	deps := h.checker.Check(c.Request.Context())

	healthy := allWritable && tools.AllRequiredAvailable(deps)
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"system": gin.H{
			"cpuCount":  runtime.NumCPU(),
			"goVersion": runtime.Version(),
			"platform":  runtime.GOOS,
			"uptime":    time.Since(h.started).Seconds(),
			"memory": gin.H{
				"alloc": humanize.Bytes(mem.Alloc),
				"sys":   humanize.Bytes(mem.Sys),
			},
		},
		"directories":  dirChecks,
		"dependencies": deps,
		"config": gin.H{
			"maxUploadSize":   h.config.MaxUploadSizeMB,
			"ocrTimeout":      h.config.OCRTimeout.Milliseconds(),
			"defaultLanguage": h.config.DefaultLanguage,
			"debug":           h.config.Debug,
		},
	})
}

// CheckDependencies handles GET /api/check-dependencies.
func (h *SystemHandler) CheckDependencies(c *gin.Context) {
	deps := h.checker.Check(c.Request.Context())

	dirChecks, _ := checkDirectories([]string{h.config.UploadsDir, h.config.ProcessedDir})

	c.JSON(http.StatusOK, gin.H{
		"success":                  true,
		"dependencies":             deps,
		"directories":              dirChecks,
		"allRequiredAvailable":     tools.AllRequiredAvailable(deps),
		"allDependenciesAvailable": tools.AllAvailable(deps),
	})
}

// checkDirectories probes each directory with a write-then-delete of a
// throwaway file. Shared by the status and health surfaces.
func checkDirectories(dirs []string) ([]directoryCheck, bool) {
	checks := make([]directoryCheck, 0, len(dirs))
	allOk := true

	for _, dir := range dirs {
		check := directoryCheck{Directory: dir}

		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			check.Exists = true
			probe := filepath.Join(dir, "write-test-"+uuid.NewString()+".tmp")
			if err := os.WriteFile(probe, []byte("permission test"), 0644); err == nil {
				os.Remove(probe)
				check.Writable = true
			} else {
				check.Error = err.Error()
			}
		} else if err != nil {
			check.Error = err.Error()
		}

		if !check.Exists || !check.Writable {
			allOk = false
		}
		checks = append(checks, check)
	}

	return checks, allOk
}
