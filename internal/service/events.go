package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	outboxDomain "github.com/manu042k/ecommerce-microservices/pkg/outbox/domain"
	"github.com/manu042k/ecommerce-microservices/pkg/outbox/worker"
)

const inventoryEventsTopic = "inventory_events"

// saveEvent writes a lifecycle event into the outbox inside the caller's
// transaction, so the event is published iff the state change commits.
func saveEvent(ctx context.Context, tx pgx.Tx, repo worker.OutboxRepository, eventType, aggregateType, aggregateID string, payload any) error {
	envelope := map[string]any{
		"event":   eventType,
		"payload": payload,
	}

	envelopeBytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	outboxEvent := &outboxDomain.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       envelopeBytes,
		Topic:         inventoryEventsTopic,
	}

	return repo.SaveOutboxEvent(ctx, tx, outboxEvent)
}
