package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/partners_backend/config"
	"github.com/mmdatafocus/partners_backend/middlewares"
	"github.com/mmdatafocus/partners_backend/models"
	"github.com/mmdatafocus/partners_backend/sapsync"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// The reverse-sync worker: accepts pubsub push deliveries and, when a
// schedule expression is configured, runs the ingestion on a timer.
func main() {
	port := os.Getenv("SAP_SYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.Use(gin.Recovery())

	r.GET("/api/integrations/sap/status", sapsync.StatusHandler())
	r.POST("/pubsub/sap-reverse-sync", sapsync.PubSubPushHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	scheduler := startScheduler(logger)
	if scheduler != nil {
		defer scheduler.Stop()
	}

	logger.WithFields(logrus.Fields{"port": port}).Info("sap sync service started")

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

// startScheduler wires the cron expression from the sync configuration.
// Without one the worker runs on pubsub pushes only.
func startScheduler(logger *logrus.Logger) *cron.Cron {
	cfg := sapsync.LoadConfig()
	if cfg.CronExpression == "" {
		logger.WithFields(logrus.Fields{"field": "scheduler"}).Info("no SAP_SYNC_CRON configured; running on push only")
		return nil
	}

	scheduler := cron.New()
	_, err := scheduler.AddFunc(cfg.CronExpression, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		summary := sapsync.RunScheduled(ctx)
		logger.WithFields(logrus.Fields{
			"field":   "scheduler",
			"pages":   summary.Pages,
			"seen":    summary.Seen,
			"updated": summary.Updated,
			"errors":  summary.Errors,
		}).Info("scheduled reverse sync finished")
	})
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "scheduler"}).Error("invalid SAP_SYNC_CRON: " + err.Error())
		return nil
	}
	scheduler.Start()
	return scheduler
}
