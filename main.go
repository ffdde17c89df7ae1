package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"affiliate-tracking-system/internal/app"
	"affiliate-tracking-system/internal/config"
	"affiliate-tracking-system/internal/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.SetupLogger("info").WithError(err).Fatal("Invalid configuration")
	}
	log := logger.SetupLogger(cfg.LogLevel)

	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialise application")
	}

	// Lead queue processor and cron jobs
	application.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           application.Server().Router(cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.WithField("port", cfg.Port).Info("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	// Stop accepting leads first, then let the queue drain.
	cancel()
	if err := application.Shutdown(ctxShutdown); err != nil {
		log.WithError(err).Warn("Error while releasing resources")
	}

	log.Info("Server exited")
}
