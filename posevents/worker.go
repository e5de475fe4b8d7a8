package posevents

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
)

// RunPullWorker consumes POS sale events from a pull subscription. Deployments
// behind Cloud Run use the push endpoint instead; this exists for long-running
// worker deployments and local development against the emulator.
//
// Blocks until ctx is cancelled.
func RunPullWorker(ctx context.Context) error {
	subName := strings.TrimSpace(os.Getenv("POS_SALES_SUBSCRIPTION"))
	if subName == "" {
		subName = "pos-sales-sub"
	}
	topicName := strings.TrimSpace(os.Getenv("POS_SALES_TOPIC"))
	if topicName == "" {
		topicName = "pos-sales"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic, err := config.CreateTopicIfNotExists(client, topicName)
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, subName, topic)
	if err != nil {
		return err
	}

	logger := config.GetLogger()
	logger.WithFields(logrus.Fields{
		"subscription": subName,
		"topic":        topicName,
	}).Info("pos sale pull worker started")

	return sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		var msg saleMessage
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			config.LogError(logger, "posevents", "RunPullWorker", "Unmarshal sale message", m.Data, err)
			// Poisoned payload; retrying cannot fix it.
			m.Ack()
			return
		}
		if msg.TenantId == "" || msg.ExternalId == "" {
			m.Ack()
			return
		}

		correlationId := msg.CorrelationId
		if correlationId == "" {
			correlationId = m.ID
		}
		eventCtx := buildEventContext(ctx, msg.TenantId, correlationId)
		if err := processSaleMessage(eventCtx, m.ID, &msg); err != nil {
			config.LogError(logger, "posevents", "RunPullWorker", "process sale message",
				map[string]interface{}{"tenant_id": msg.TenantId, "external_id": msg.ExternalId, "message_id": m.ID}, err)
			m.Nack()
			return
		}
		m.Ack()
	})
}
