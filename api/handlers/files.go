package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/peterchen97/pdf-ocr-service/config"
	"github.com/peterchen97/pdf-ocr-service/internal/service/ocr"
	"github.com/peterchen97/pdf-ocr-service/internal/tools"
	"github.com/peterchen97/pdf-ocr-service/pkg/logger"
)

type FileHandler struct {
	service ocr.Service
	checker tools.DependencyChecker
	config  *config.Config
	logger  logger.Logger
}

func NewFileHandler(service ocr.Service, checker tools.DependencyChecker, cfg *config.Config, log logger.Logger) *FileHandler {
	return &FileHandler{
		service: service,
		checker: checker,
		config:  cfg,
		logger:  log,
	}
}

// Download handles GET /api/download?file=<name>. Files are served from
// the processed directory only; the requested name is reduced to its base
// name so traversal sequences cannot escape it.
func (h *FileHandler) Download(c *gin.Context) {
	name := c.Query("file")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "file parameter is required",
		})
		return
	}

	safeName := filepath.Base(name)
	path := filepath.Join(h.config.ProcessedDir, safeName)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		h.logger.Warn("download of missing file requested",
			logger.String("file", safeName),
		)
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "file not found",
		})
		return
	}

	contentType := "application/pdf"
	if strings.HasSuffix(strings.ToLower(safeName), ".txt") {
		contentType = "text/plain"
	}

	c.Header("Content-Type", contentType)
	c.FileAttachment(path, safeName)
}

// Status handles GET /api/status: external tool state, working-directory
// writability and the listing of output files currently available for
// download.
func (h *FileHandler) Status(c *gin.Context) {
	files, err := h.service.ListProcessed(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list processed files", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "failed to get status",
			"details": err.Error(),
		})
		return
	}

	deps := h.checker.Check(c.Request.Context())
	dirChecks, _ := checkDirectories([]string{h.config.UploadsDir, h.config.ProcessedDir})

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"dependencies": deps,
		"directories":  dirChecks,
		"files":        files,
	})
}
