package posevents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"bitbucket.org/mmdatafocus/boh_backend/workflow"
	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PushHandler is the Pub/Sub push endpoint for POS sale events.
//
// Malformed or poisoned messages are acked (204) so they cannot retry forever;
// processing failures return 500 so Pub/Sub retries and eventually routes to
// the DLQ. Idempotency lives in the workflow layer, so a retried delivery of
// an already-processed message is harmless.
func PushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "posevents", "PushHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}

		var envelope pushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			config.LogError(logger, "posevents", "PushHandler", "Unmarshal envelope", body, err)
			c.Status(http.StatusNoContent)
			return
		}

		var msg saleMessage
		if err := json.Unmarshal(envelope.Message.Data, &msg); err != nil {
			config.LogError(logger, "posevents", "PushHandler", "Unmarshal sale message", envelope.Message.Data, err)
			c.Status(http.StatusNoContent)
			return
		}

		if msg.TenantId == "" || msg.ExternalId == "" {
			config.LogError(logger, "posevents", "PushHandler",
				"Invalid sale message (missing required fields)", msg,
				fmt.Errorf("tenant_id/external_id required"))
			c.Status(http.StatusNoContent)
			return
		}

		correlationId := msg.CorrelationId
		if correlationId == "" {
			correlationId = envelope.Message.ID
		}

		// Best-effort redis lock per tenant to reduce in-request blocking on the
		// MySQL advisory lock; reliability never depends on it.
		var lock *redislock.Lock
		redisLock := config.GetRedisLock()
		if redisLock != nil {
			lock, err = redisLock.Obtain(c.Request.Context(), fmt.Sprintf("lock:%s", msg.TenantId), 30*time.Second, nil)
			if err != nil {
				logger.WithFields(logrus.Fields{
					"field":      "PushHandler",
					"tenant_id":  msg.TenantId,
					"message_id": envelope.Message.ID,
				}).Warn("proceeding without redis lock: " + err.Error())
				lock = nil
			}
		}
		defer func() {
			if lock == nil {
				return
			}
			if releaseErr := lock.Release(c.Request.Context()); releaseErr != nil {
				logger.WithFields(logrus.Fields{
					"field":      "PushHandler",
					"tenant_id":  msg.TenantId,
					"message_id": envelope.Message.ID,
				}).Warn("failed to release redis lock: " + releaseErr.Error())
			}
		}()

		ctx := buildEventContext(c.Request.Context(), msg.TenantId, correlationId)
		if err := processSaleMessage(ctx, envelope.Message.ID, &msg); err != nil {
			logger.WithFields(logrus.Fields{
				"field":          "PushHandler",
				"tenant_id":      msg.TenantId,
				"external_id":    msg.ExternalId,
				"message_id":     envelope.Message.ID,
				"correlation_id": correlationId,
			}).Error("pos sale processing failed: " + err.Error())
			c.Status(http.StatusInternalServerError)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

func buildEventContext(parent context.Context, tenantId, correlationId string) context.Context {
	ctx := utils.SetTenantIdInContext(parent, tenantId)
	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "System")
	ctx = utils.SetCorrelationIdInContext(ctx, correlationId)
	return ctx
}

func processSaleMessage(ctx context.Context, messageId string, msg *saleMessage) error {
	event := &workflow.PosSaleEvent{
		MessageId:  messageId,
		VenueId:    msg.VenueId,
		RecipeId:   msg.RecipeId,
		Quantity:   msg.Quantity,
		Amount:     msg.Amount,
		SaleTime:   msg.SaleTime,
		ExternalId: msg.ExternalId,
	}
	_, err := workflow.ProcessPosSale(ctx, event)
	return err
}
