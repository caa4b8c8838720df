package sapsync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/partners_backend/config"
	"github.com/mmdatafocus/partners_backend/models"
)

// ReverseSyncPayload is the message published to request an asynchronous
// reverse-sync run. The audit job is created lazily by the run itself, so
// the payload only carries provenance.
type ReverseSyncPayload struct {
	TriggeredBy string `json:"triggered_by"`
	RequestedAt string `json:"requested_at"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data      []byte `json:"data"`
		MessageId string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func topicName() string {
	name := strings.TrimSpace(os.Getenv("SAP_SYNC_TOPIC"))
	if name == "" {
		name = "sap-reverse-sync"
	}
	return name
}

func PublishReverseSync(ctx context.Context, triggeredBy string) error {
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	name := topicName()
	topic := client.Topic(name)
	if envBoolDefault("SAP_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, name)
		if err != nil {
			return err
		}
	}

	payload := ReverseSyncPayload{
		TriggeredBy: triggeredBy,
		RequestedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler accepts push deliveries from the reverse-sync
// subscription. Always 204: pubsub retries on anything else and a malformed
// message will never get better.
func PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_SAP_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(http.StatusNoContent)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusNoContent)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(http.StatusNoContent)
			return
		}

		var payload ReverseSyncPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(http.StatusNoContent)
			return
		}

		runReverseSync(c.Request.Context())
		c.Status(http.StatusNoContent)
	}
}

// runReverseSync wires a ReverseSync against the live SAP client and the
// gorm-backed stores.
func runReverseSync(ctx context.Context) ReverseSyncSummary {
	cfg := LoadConfig()
	sync := NewReverseSync(cfg, NewClient(cfg), models.PartnerStore{}, models.SegmentStateStore{}, models.AuditStore{})
	return sync.Run(ctx)
}

// RunScheduled is the entry point used by the cron scheduler.
func RunScheduled(ctx context.Context) ReverseSyncSummary {
	return runReverseSync(ctx)
}
