package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusReleased  ReservationStatus = "released"
	ReservationStatusFailed    ReservationStatus = "failed"
	ReservationStatusExpired   ReservationStatus = "expired"
)

type ReservationEvent string

const (
	EventConfirm ReservationEvent = "confirm"
	EventRelease ReservationEvent = "release"
	EventFail    ReservationEvent = "fail"
	EventExpire  ReservationEvent = "expire"
)

var ErrInvalidTransition = errors.New("invalid reservation transition")

// transitions is the closed state machine: pending is the only state with
// outgoing edges, the four targets are terminal.
var transitions = map[ReservationStatus]map[ReservationEvent]ReservationStatus{
	ReservationStatusPending: {
		EventConfirm: ReservationStatusConfirmed,
		EventRelease: ReservationStatusReleased,
		EventFail:    ReservationStatusFailed,
		EventExpire:  ReservationStatusExpired,
	},
}

// NextStatus is the single place transition rules are enforced.
func NextStatus(current ReservationStatus, event ReservationEvent) (ReservationStatus, error) {
	if next, ok := transitions[current][event]; ok {
		return next, nil
	}

	return current, ErrInvalidTransition
}

func (s ReservationStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

type Reservation struct {
	ID            uuid.UUID         `db:"id"`
	OrderID       uuid.UUID         `db:"order_id"`
	Status        ReservationStatus `db:"status"`
	CreatedAt     time.Time         `db:"created_at"`
	ExpiresAt     *time.Time        `db:"expires_at"`
	CompletedAt   *time.Time        `db:"completed_at"`
	FailureReason *string           `db:"failure_reason"`
	Items         []ReservationItem `db:"items"`
}

// ReservationItem is immutable once the parent reservation exists.
type ReservationItem struct {
	ID            uuid.UUID `db:"id"`
	ReservationID uuid.UUID `db:"reservation_id"`
	ProductID     uuid.UUID `db:"product_id"`
	Quantity      int32     `db:"quantity"`
}

// ReservationLine is one requested hold at admission time.
type ReservationLine struct {
	ProductID uuid.UUID
	Quantity  int32
}
