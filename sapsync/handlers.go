package sapsync

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/partners_backend/utils"
)

type statusResponse struct {
	Enabled    bool   `json:"enabled"`
	Configured bool   `json:"configured"`
	BaseURL    string `json:"base_url"`
	PageSize   int    `json:"page_size"`
	TimeoutMs  uint   `json:"timeout_ms"`
	Schedule   string `json:"schedule,omitempty"`
}

// StatusHandler reports the current connection settings, credentials
// excluded.
func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := LoadConfig()
		c.JSON(http.StatusOK, statusResponse{
			Enabled:    cfg.Enabled,
			Configured: cfg.Configured(),
			BaseURL:    cfg.BaseURL,
			PageSize:   cfg.EffectivePageSize(),
			TimeoutMs:  cfg.TimeoutMs,
			Schedule:   cfg.CronExpression,
		})
	}
}

// TriggerReverseSyncHandler starts a reverse-sync run. With
// SAP_SYNC_USE_PUBSUB the run is dispatched to the worker via pubsub;
// otherwise it executes inline and the summary is returned to the caller.
func TriggerReverseSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		triggeredBy := "api"
		if name, ok := utils.GetUserNameFromContext(ctx); ok && name != "" {
			triggeredBy = name
		}

		if envBoolDefault("SAP_SYNC_USE_PUBSUB", false) {
			if err := PublishReverseSync(ctx, triggeredBy); err != nil {
				c.JSON(utils.ErrorStatus(err), gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"dispatched": true})
			return
		}

		summary := runReverseSync(ctx)
		c.JSON(http.StatusOK, summary)
	}
}
