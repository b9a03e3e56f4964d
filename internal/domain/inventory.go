package domain

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem is the per-product quantity ledger row. The invariant
// 0 <= QuantityReserved <= QuantityOnHand must hold after every completed
// operation.
type InventoryItem struct {
	ID               uuid.UUID `db:"id"`
	ProductID        uuid.UUID `db:"product_id"`
	ProductName      string    `db:"product_name"`
	Sku              string    `db:"sku"`
	QuantityOnHand   int32     `db:"quantity_on_hand"`
	QuantityReserved int32     `db:"quantity_reserved"`
	ReorderPoint     int32     `db:"reorder_point"`
	SafetyStock      int32     `db:"safety_stock"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (i *InventoryItem) Available() int32 {
	return i.QuantityOnHand - i.QuantityReserved
}

// InventoryAdjustment is an immutable audit record of a manual quantity
// change. Reservation commits consume stock without writing one; the event
// stream covers order-driven consumption.
type InventoryAdjustment struct {
	ID            uuid.UUID `db:"id"`
	ProductID     uuid.UUID `db:"product_id"`
	QuantityDelta int32     `db:"quantity_delta"`
	Reason        string    `db:"reason"`
	CreatedBy     string    `db:"created_by"`
	CreatedAt     time.Time `db:"created_at"`
}

// AdjustmentInput carries one administrative ledger change. Nil thresholds
// leave the stored values untouched.
type AdjustmentInput struct {
	ProductID     uuid.UUID
	ProductName   string
	Sku           string
	QuantityDelta int32
	ReorderPoint  *int32
	SafetyStock   *int32
	Reason        string
	CreatedBy     string
}

// AvailabilityEntry is the read-only projection over one ledger row.
type AvailabilityEntry struct {
	ProductID         uuid.UUID `json:"product_id"`
	QuantityOnHand    int32     `json:"quantity_on_hand"`
	QuantityReserved  int32     `json:"quantity_reserved"`
	AvailableQuantity int32     `json:"available_quantity"`
}
