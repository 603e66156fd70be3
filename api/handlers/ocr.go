package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/peterchen97/pdf-ocr-service/config"
	"github.com/peterchen97/pdf-ocr-service/internal/intake"
	"github.com/peterchen97/pdf-ocr-service/internal/models"
	"github.com/peterchen97/pdf-ocr-service/internal/ocr/classify"
	"github.com/peterchen97/pdf-ocr-service/internal/service/ocr"
	"github.com/peterchen97/pdf-ocr-service/pkg/logger"
)

type OCRHandler struct {
	service ocr.Service
	config  *config.Config
	logger  logger.Logger
}

func NewOCRHandler(service ocr.Service, cfg *config.Config, log logger.Logger) *OCRHandler {
	return &OCRHandler{
		service: service,
		config:  cfg,
		logger:  log,
	}
}

// ocrForm carries the option fields of the multipart body. Booleans arrive
// as the strings "true"/"false"; absent fields keep their defaults.
type ocrForm struct {
	Language         string `form:"language"`
	Deskew           bool   `form:"deskew"`
	SkipText         bool   `form:"skipText"`
	Force            bool   `form:"force"`
	RedoOcr          bool   `form:"redoOcr"`
	RemoveBackground bool   `form:"removeBackground"`
	Clean            bool   `form:"clean"`
	Optimize         *int   `form:"optimize" binding:"omitempty,min=0,max=3"`
	Rotate           string `form:"rotate"`
	PDFRenderer      string `form:"pdfRenderer" binding:"omitempty,oneof=auto hocr sandwich"`
}

func (f *ocrForm) toOptions(defaultLanguage string) models.OCROptions {
	opts := models.DefaultOptions()
	opts.Language = defaultLanguage

	if f.Language != "" {
		opts.Language = f.Language
	}
	opts.Deskew = f.Deskew
	opts.SkipText = f.SkipText
	opts.ForceOCR = f.Force
	opts.RedoOCR = f.RedoOcr
	opts.RemoveBackground = f.RemoveBackground
	opts.Clean = f.Clean
	if f.Optimize != nil {
		opts.OptimizeLevel = *f.Optimize
	}
	if f.Rotate != "" {
		opts.RotatePages = f.Rotate
	}
	if f.PDFRenderer != "" {
		opts.PDFRenderer = f.PDFRenderer
	}
	return opts
}

// Process handles POST /api/ocr.
func (h *OCRHandler) Process(c *gin.Context) {
	var form ocrForm
	if err := c.ShouldBind(&form); err != nil {
		h.respondError(c, &intake.ValidationError{
			Code:    intake.CodeMalformedRequest,
			Message: "invalid form data: " + err.Error(),
		})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.respondError(c, &intake.ValidationError{
			Code:    intake.CodeMalformedRequest,
			Message: "no file provided",
			Field:   "file",
		})
		return
	}
	defer file.Close()

	result, err := h.service.Process(c.Request.Context(), file, header, form.toOptions(h.config.DefaultLanguage))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"inputFile":  result.InputFile,
		"outputFile": result.OutputFile,
		"stdout":     result.Stdout,
		"stderr":     result.Stderr,
		"fileSize":   result.FileSize,
		"attempts":   result.Attempts,
	})
}

// ProcessBatch handles POST /api/ocr/batch.
func (h *OCRHandler) ProcessBatch(c *gin.Context) {
	var form ocrForm
	if err := c.ShouldBind(&form); err != nil {
		h.respondError(c, &intake.ValidationError{
			Code:    intake.CodeMalformedRequest,
			Message: "invalid form data: " + err.Error(),
		})
		return
	}

	mpForm, err := c.MultipartForm()
	if err != nil {
		h.respondError(c, &intake.ValidationError{
			Code:    intake.CodeMalformedRequest,
			Message: "invalid multipart form: " + err.Error(),
		})
		return
	}

	headers := mpForm.File["files"]
	if len(headers) == 0 {
		h.respondError(c, &intake.ValidationError{
			Code:    intake.CodeMalformedRequest,
			Message: "no files provided",
			Field:   "files",
		})
		return
	}

	items := h.service.ProcessBatch(c.Request.Context(), headers, form.toOptions(h.config.DefaultLanguage))

	responses := make([]gin.H, len(items))
	allOk := true
	for i, item := range items {
		if item.Err != nil {
			allOk = false
			responses[i] = errorBody(item.Err)
			responses[i]["filename"] = item.Filename
			continue
		}
		responses[i] = gin.H{
			"success":    true,
			"filename":   item.Filename,
			"inputFile":  item.Result.InputFile,
			"outputFile": item.Result.OutputFile,
			"fileSize":   item.Result.FileSize,
			"attempts":   item.Result.Attempts,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": allOk,
		"results": responses,
	})
}

// respondError maps classified errors to HTTP statuses and the uniform
// JSON error shape.
func (h *OCRHandler) respondError(c *gin.Context, err error) {
	status := statusFor(err)

	h.logger.Error("request failed",
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
		logger.Error(err),
	)

	c.JSON(status, errorBody(err))
}

func statusFor(err error) int {
	var verr *intake.ValidationError
	if errors.As(err, &verr) {
		switch verr.Code {
		case intake.CodeUnsupportedMediaType:
			return http.StatusUnsupportedMediaType
		case intake.CodePayloadTooLarge:
			return http.StatusRequestEntityTooLarge
		case intake.CodeMalformedRequest:
			return http.StatusBadRequest
		default:
			return http.StatusInternalServerError
		}
	}

	var perr *ocr.ProcessError
	if errors.As(err, &perr) {
		switch perr.Class {
		case classify.HasTextLayer, classify.TaggedPDF:
			return http.StatusUnprocessableEntity
		case classify.Timeout:
			return http.StatusGatewayTimeout
		default:
			return http.StatusInternalServerError
		}
	}

	return http.StatusInternalServerError
}

func errorBody(err error) gin.H {
	body := gin.H{"success": false}

	var verr *intake.ValidationError
	if errors.As(err, &verr) {
		body["error"] = verr.Message
		body["details"] = verr.Code
		return body
	}

	var perr *ocr.ProcessError
	if errors.As(err, &perr) {
		body["error"] = perr.Message
		body["details"] = perr.Details
		if t := perr.ErrorType(); t != "" {
			body["errorType"] = t
		}
		if perr.Command != "" {
			body["command"] = perr.Command
		}
		return body
	}

	body["error"] = "internal server error"
	body["details"] = err.Error()
	return body
}
