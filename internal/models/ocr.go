package models

import (
	"strings"
	"time"
)

// DefaultLanguage is the OCR language assumed when the client sends none.
const DefaultLanguage = "eng"

// AutoSentinel marks rotate/renderer options left to the tool's own choice.
const AutoSentinel = "auto"

// OCROptions mirrors the ocrmypdf flags exposed through the upload form.
// ForceOCR and SkipText are mutually exclusive strategies for documents
// that already carry a text layer; the retry policy may flip one of them.
type OCROptions struct {
	Language         string `json:"language"`
	Deskew           bool   `json:"deskew"`
	SkipText         bool   `json:"skipText"`
	ForceOCR         bool   `json:"forceOcr"`
	RedoOCR          bool   `json:"redoOcr"`
	RemoveBackground bool   `json:"removeBackground"`
	Clean            bool   `json:"clean"`
	OptimizeLevel    int    `json:"optimize"`
	RotatePages      string `json:"rotate"`
	PDFRenderer      string `json:"pdfRenderer"`
}

// DefaultOptions returns the option set applied when a field is absent
// from the request.
func DefaultOptions() OCROptions {
	return OCROptions{
		Language:      DefaultLanguage,
		OptimizeLevel: 3,
		RotatePages:   AutoSentinel,
		PDFRenderer:   AutoSentinel,
	}
}

// StoredFile describes an uploaded file persisted to the intake directory.
type StoredFile struct {
	OriginalName string    `json:"originalName"`
	SafeName     string    `json:"safeName"`
	Stem         string    `json:"-"` // safe name without extension
	Path         string    `json:"-"`
	Size         int64     `json:"size"`
	Pages        int       `json:"pages,omitempty"` // 0 when inspection failed
	StoredAt     time.Time `json:"storedAt"`
}

// CommandInvocation is one attempt to run the external OCR tool. It is
// immutable once built; a retry produces a new invocation.
type CommandInvocation struct {
	Program    string
	Args       []string
	InputPath  string
	OutputPath string
	Attempt    int
}

// String renders the invocation as a shell-style command line for logs and
// error responses. The rendered string is never executed; the process is
// always spawned from the argument vector.
func (ci CommandInvocation) String() string {
	parts := make([]string, 0, len(ci.Args)+1)
	parts = append(parts, ci.Program)
	for _, arg := range ci.Args {
		parts = append(parts, quoteArg(arg))
	}
	return strings.Join(parts, " ")
}

func quoteArg(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsAny(arg, " \t\"'\\$&|;<>()*?[]#~%") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

// ProcessResult captures the outcome of a single external process run.
type ProcessResult struct {
	ExitCode int           `json:"exitCode"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	TimedOut bool          `json:"timedOut"`
	Duration time.Duration `json:"-"`
}

// Success reports whether the process exited cleanly within its budget.
func (r *ProcessResult) Success() bool {
	return r != nil && r.ExitCode == 0 && !r.TimedOut
}

// OCRResult is the payload returned for a completed job.
type OCRResult struct {
	InputFile  string `json:"inputFile"`
	OutputFile string `json:"outputFile"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	FileSize   int64  `json:"fileSize"`
	Attempts   int    `json:"attempts"`
}

// ProcessedFile is one entry of the output-directory listing.
type ProcessedFile struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	SizeHuman  string    `json:"sizeHuman"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Path       string    `json:"path"`
}
