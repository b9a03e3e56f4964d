package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/manu042k/ecommerce-microservices/internal/domain"
	"github.com/manu042k/ecommerce-microservices/internal/service"
	"github.com/manu042k/ecommerce-microservices/pkg/kafka"
	"github.com/manu042k/ecommerce-microservices/pkg/mylogger"
)

const dedupTTL = 24 * time.Hour

type Consumer struct {
	service     service.ReservationService
	redisClient *redis.Client
	logger      *zap.Logger
}

func NewConsumer(service service.ReservationService, redisClient *redis.Client, logger *zap.Logger) *Consumer {
	return &Consumer{
		service:     service,
		redisClient: redisClient,
		logger:      logger,
	}
}

func (c *Consumer) Start(ctx context.Context, brokers []string, groupID string) {
	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		groupID,
		[]string{"order_events", "payment_events"},
		c.processMessage,
		c.logger,
	)

	consumerGroup.Run(ctx)
}

type eventWrapper struct {
	Event   string          `json:"event"`
	EventID int64           `json:"event_id"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	mylogger.Debug(
		ctx,
		c.logger,
		"Processing message",
		zap.String("topic", msg.Topic),
	)

	var wrapper eventWrapper
	if err := json.Unmarshal(msg.Value, &wrapper); err != nil {
		mylogger.Error(ctx, c.logger, "Error unmarshalling wrapper", zap.Error(err))
		return err
	}

	if wrapper.EventID != 0 {
		seen, err := c.alreadyProcessed(ctx, wrapper.Event, wrapper.EventID)
		if err != nil {
			mylogger.Warn(ctx, c.logger, "Event dedup check failed", zap.Error(err))
		} else if seen {
			mylogger.Info(
				ctx,
				c.logger,
				"Skipping already processed event",
				zap.String("event_type", wrapper.Event),
				zap.Int64("event_id", wrapper.EventID),
			)

			return nil
		}
	}

	if err := c.dispatch(ctx, &wrapper); err != nil {
		return err
	}

	// the event is claimed only after the handler succeeds. A transient
	// failure leaves the key unset, so the Kafka redelivery gets handled
	// instead of skipped; the handlers themselves tolerate the rare
	// duplicate in between.
	if wrapper.EventID != 0 {
		if err := c.markProcessed(ctx, wrapper.Event, wrapper.EventID); err != nil {
			mylogger.Warn(ctx, c.logger, "Failed to mark event processed", zap.Error(err))
		}
	}

	return nil
}

func (c *Consumer) dispatch(ctx context.Context, wrapper *eventWrapper) error {
	switch wrapper.Event {
	case "OrderCreated":
		var event domain.OrderCreatedEvent
		if err := json.Unmarshal(wrapper.Payload, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to unmarshal payload", zap.Error(err))
			return err
		}

		if err := c.service.HandleOrderCreated(ctx, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to reserve stock for order", zap.Error(err))
			return err
		}
	case "PaymentSucceeded":
		var event domain.PaymentSucceededEvent
		if err := json.Unmarshal(wrapper.Payload, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to unmarshal payload", zap.Error(err))
			return err
		}

		if err := c.service.HandlePaymentSucceeded(ctx, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to commit reservation", zap.Error(err))
			return err
		}
	case "PaymentFailed":
		var event domain.PaymentFailedEvent
		if err := json.Unmarshal(wrapper.Payload, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to unmarshal payload", zap.Error(err))
			return err
		}

		if err := c.service.HandlePaymentFailed(ctx, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to release reservation", zap.Error(err))
			return err
		}
	default:
		mylogger.Warn(ctx, c.logger, "Ignored event type", zap.String("event_type", wrapper.Event))
	}

	return nil
}

func (c *Consumer) alreadyProcessed(ctx context.Context, eventType string, eventID int64) (bool, error) {
	n, err := c.redisClient.Exists(ctx, dedupKey(eventType, eventID)).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// markProcessed records the event id. Kafka redelivers on rebalance; a second
// OrderCreated for the same event must not double-reserve stock.
func (c *Consumer) markProcessed(ctx context.Context, eventType string, eventID int64) error {
	return c.redisClient.Set(ctx, dedupKey(eventType, eventID), 1, dedupTTL).Err()
}

func dedupKey(eventType string, eventID int64) string {
	return fmt.Sprintf("inventory:processed:%s:%d", eventType, eventID)
}
