package handlers

import (
	"github.com/peterchen97/pdf-ocr-service/config"
	"github.com/peterchen97/pdf-ocr-service/internal/service/ocr"
	"github.com/peterchen97/pdf-ocr-service/internal/tools"
	"github.com/peterchen97/pdf-ocr-service/pkg/logger"
)

type Handlers struct {
	OCR    *OCRHandler
	Files  *FileHandler
	System *SystemHandler
}

func NewHandlers(
	service ocr.Service,
	checker tools.DependencyChecker,
	cfg *config.Config,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		OCR:    NewOCRHandler(service, cfg, log),
		Files:  NewFileHandler(service, checker, cfg, log),
		System: NewSystemHandler(service, checker, cfg, log),
	}
}
