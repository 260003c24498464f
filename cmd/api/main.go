package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"tms-provisioning-api/internal"
	"tms-provisioning-api/internal/config"
	"tms-provisioning-api/internal/logger"
)

func main() {
	// A missing .env is fine; the environment may already be populated
	_ = godotenv.Load()

	cfg, err := config.LoadAndValidate()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	logCfg := logger.ConfigForEnvironment(cfg.Environment, cfg.LogLevel)
	if cfg.LogFormat != "" {
		logCfg.Format = cfg.LogFormat
	}
	zl, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	srv, err := internal.NewServer(cfg, zl)
	if err != nil {
		zl.Fatal("Failed to create server", zap.Error(err))
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		// A request makes up to eight sequential TMS calls; the Excel
		// import sets its own deadline from IMPORT_TIMEOUT
		WriteTimeout: 8*cfg.TMS.Timeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		zl.Info("Starting TMS provisioning API",
			zap.String("addr", httpServer.Addr),
			zap.String("environment", cfg.Environment),
			zap.Bool("auth", cfg.AuthEnabled),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zl.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		zl.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := srv.Close(ctx); err != nil {
		zl.Error("Failed to close resources", zap.Error(err))
	}
	zl.Info("Server exited gracefully")
}
