package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/peterchen97/pdf-ocr-service/api/handlers"
	"github.com/peterchen97/pdf-ocr-service/api/routes"
	"github.com/peterchen97/pdf-ocr-service/config"
	"github.com/peterchen97/pdf-ocr-service/internal/cleanup"
	"github.com/peterchen97/pdf-ocr-service/internal/intake"
	ocrservice "github.com/peterchen97/pdf-ocr-service/internal/service/ocr"
	"github.com/peterchen97/pdf-ocr-service/internal/tools"
	"github.com/peterchen97/pdf-ocr-service/pkg/logger"
	"github.com/peterchen97/pdf-ocr-service/pkg/runner"
)

func main() {
	cfg := config.Get()

	// init logger
	log, err := logger.NewLogger(
		logger.WithLevel(cfg.LogLevel),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/app.log"}),
		logger.WithDevelopment(cfg.Debug),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if problems := cfg.Validate(); len(problems) > 0 {
		log.Fatal("invalid configuration", logger.Strings("problems", problems))
	}

	// wire collaborators
	run := runner.NewExecRunner(log.Named("runner"))
	jbig2 := tools.NewJBIG2Resolver(log.Named("probe"), run, cfg.JBIG2Path)
	checker := tools.NewChecker(log.Named("deps"), run, jbig2)

	in := intake.New(log.Named("intake"), intake.Config{
		UploadsDir:     cfg.UploadsDir,
		ProcessedDir:   cfg.ProcessedDir,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	})

	service := ocrservice.NewService(in, jbig2, run, log.Named("ocr"), ocrservice.ServiceConfig{
		OCRTimeout: cfg.OCRTimeout,
	})

	// retention sweep over the working directories
	sweeper := cleanup.NewSweeper(log.Named("cleanup"), cleanup.Config{
		Directories:          []string{cfg.UploadsDir, cfg.ProcessedDir, cfg.TempDir},
		DuplicateDirectories: []string{cfg.UploadsDir, cfg.ProcessedDir},
		Interval:             cfg.CleanupInterval,
		MaxAge:               cfg.MaxStorageAge,
	})
	if err := sweeper.Start(); err != nil {
		log.Fatal("failed to start cleanup service", logger.Error(err))
	}

	// init handlers
	h := handlers.NewHandlers(service, checker, cfg, log.Named("api"))

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	// start server
	go func() {
		log.Info("Server starting", logger.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error:", logger.Error(err))
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	sweeper.Stop()

	// graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown:", logger.Error(err))
	}
}
