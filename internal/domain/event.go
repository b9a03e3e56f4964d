package domain

import (
	"time"

	"github.com/google/uuid"
)

// Events published through the outbox to inventory_events.

type ReservationLinePayload struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int32     `json:"quantity"`
}

type ReservationCreatedEvent struct {
	ReservationID uuid.UUID                `json:"reservation_id"`
	OrderID       uuid.UUID                `json:"order_id"`
	ExpiresAt     *time.Time               `json:"expires_at"`
	Items         []ReservationLinePayload `json:"items"`
}

type ReservationCommittedEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	OrderID       uuid.UUID `json:"order_id"`
}

type ReservationReleasedEvent struct {
	ReservationID uuid.UUID         `json:"reservation_id"`
	OrderID       uuid.UUID         `json:"order_id"`
	Status        ReservationStatus `json:"status"`
	Reason        string            `json:"reason"`
}

type StockBelowReorderPointEvent struct {
	ProductID    uuid.UUID `json:"product_id"`
	Sku          string    `json:"sku"`
	Available    int32     `json:"available"`
	ReorderPoint int32     `json:"reorder_point"`
}

// Events consumed from peer services.

type OrderCreatedEvent struct {
	OrderID uuid.UUID                `json:"order_id"`
	Items   []ReservationLinePayload `json:"items"`
}

type PaymentSucceededEvent struct {
	OrderID uuid.UUID `json:"order_id"`
}

type PaymentFailedEvent struct {
	OrderID uuid.UUID `json:"order_id"`
}
