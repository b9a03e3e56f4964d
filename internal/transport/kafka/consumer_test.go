package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/manu042k/ecommerce-microservices/internal/domain"
)

type stubReservationService struct {
	failNext int
	handled  int
}

func (s *stubReservationService) CreateReservation(context.Context, uuid.UUID, []domain.ReservationLine, int32) (*domain.Reservation, error) {
	return nil, nil
}

func (s *stubReservationService) ReleaseReservation(context.Context, uuid.UUID, string) (bool, error) {
	return false, nil
}

func (s *stubReservationService) CommitReservation(context.Context, uuid.UUID) (bool, error) {
	return false, nil
}

func (s *stubReservationService) ExpireReservation(context.Context, uuid.UUID) (bool, error) {
	return false, nil
}

func (s *stubReservationService) HandleOrderCreated(context.Context, *domain.OrderCreatedEvent) error {
	return nil
}

func (s *stubReservationService) HandlePaymentSucceeded(context.Context, *domain.PaymentSucceededEvent) error {
	s.handled++
	if s.failNext > 0 {
		s.failNext--
		return errors.New("database unavailable")
	}

	return nil
}

func (s *stubReservationService) HandlePaymentFailed(context.Context, *domain.PaymentFailedEvent) error {
	return nil
}

func paymentSucceededMessage(t *testing.T, eventID int64, orderID uuid.UUID) *sarama.ConsumerMessage {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"event":    "PaymentSucceeded",
		"event_id": eventID,
		"payload":  domain.PaymentSucceededEvent{OrderID: orderID},
	})
	require.NoError(t, err)

	return &sarama.ConsumerMessage{
		Topic: "payment_events",
		Value: payload,
	}
}

func newTestRedisClient(t *testing.T, ctx context.Context) *redis.Client {
	t.Helper()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	return redis.NewClient(opts)
}

// A transient handler failure must not burn the dedup key: the Kafka
// redelivery has to be handled, not skipped as already processed.
func TestProcessMessage_TransientFailureIsRetriable(t *testing.T) {
	ctx := context.Background()
	redisClient := newTestRedisClient(t, ctx)

	svc := &stubReservationService{failNext: 1}
	consumer := NewConsumer(svc, redisClient, zap.NewNop())

	msg := paymentSucceededMessage(t, 42, uuid.New())

	err := consumer.processMessage(ctx, msg)
	require.Error(t, err)
	require.Equal(t, 1, svc.handled)

	// redelivery after the failure reaches the handler again
	err = consumer.processMessage(ctx, msg)
	require.NoError(t, err)
	require.Equal(t, 2, svc.handled)
}

func TestProcessMessage_DuplicateAfterSuccessIsSkipped(t *testing.T) {
	ctx := context.Background()
	redisClient := newTestRedisClient(t, ctx)

	svc := &stubReservationService{}
	consumer := NewConsumer(svc, redisClient, zap.NewNop())

	msg := paymentSucceededMessage(t, 7, uuid.New())

	require.NoError(t, consumer.processMessage(ctx, msg))
	require.Equal(t, 1, svc.handled)

	require.NoError(t, consumer.processMessage(ctx, msg))
	require.Equal(t, 1, svc.handled)
}

func TestProcessMessage_NoEventIDSkipsDedup(t *testing.T) {
	ctx := context.Background()
	redisClient := newTestRedisClient(t, ctx)

	svc := &stubReservationService{}
	consumer := NewConsumer(svc, redisClient, zap.NewNop())

	msg := paymentSucceededMessage(t, 0, uuid.New())

	require.NoError(t, consumer.processMessage(ctx, msg))
	require.NoError(t, consumer.processMessage(ctx, msg))
	require.Equal(t, 2, svc.handled)
}
