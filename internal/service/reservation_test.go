package service_test

import (
	"time"

	"github.com/google/uuid"

	"github.com/manu042k/ecommerce-microservices/internal/domain"
	"github.com/manu042k/ecommerce-microservices/internal/repository"
	"github.com/manu042k/ecommerce-microservices/internal/service"
)

func (s *IntegrationTestSuite) TestCreateReservation_HoldsStock() {
	productID := uuid.New()
	s.seedItem(productID, 100, 0)

	reservation := s.reserve(productID, 10)
	s.Require().Equal(domain.ReservationStatusPending, reservation.Status)
	s.Require().NotNil(reservation.ExpiresAt)

	onHand, reserved := s.itemQuantities(productID)
	s.Require().Equal(int32(100), onHand)
	s.Require().Equal(int32(10), reserved)

	entries, err := s.InventoryService.GetAvailability(s.Ctx, []uuid.UUID{productID})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Require().Equal(int32(90), entries[0].AvailableQuantity)
}

func (s *IntegrationTestSuite) TestCreateReservation_InsufficientStock() {
	productID := uuid.New()
	s.seedItem(productID, 5, 0)

	_, err := s.ReservationService.CreateReservation(
		s.Ctx,
		uuid.New(),
		[]domain.ReservationLine{{ProductID: productID, Quantity: 10}},
		15,
	)
	s.Require().ErrorIs(err, repository.ErrInsufficientStock)

	onHand, reserved := s.itemQuantities(productID)
	s.Require().Equal(int32(5), onHand)
	s.Require().Equal(int32(0), reserved)

	var count int
	err = s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM inventory_reservations`).Scan(&count)
	s.Require().NoError(err)
	s.Require().Zero(count)
}

func (s *IntegrationTestSuite) TestCreateReservation_AllOrNothing() {
	first := uuid.New()
	second := uuid.New()
	s.seedItem(first, 100, 0)
	s.seedItem(second, 2, 0)

	_, err := s.ReservationService.CreateReservation(
		s.Ctx,
		uuid.New(),
		[]domain.ReservationLine{
			{ProductID: first, Quantity: 10},
			{ProductID: second, Quantity: 5},
		},
		15,
	)
	s.Require().ErrorIs(err, repository.ErrInsufficientStock)

	// the first line must not hold anything when the second fails
	_, reserved := s.itemQuantities(first)
	s.Require().Equal(int32(0), reserved)
}

func (s *IntegrationTestSuite) TestCreateReservation_UnknownProduct() {
	_, err := s.ReservationService.CreateReservation(
		s.Ctx,
		uuid.New(),
		[]domain.ReservationLine{{ProductID: uuid.New(), Quantity: 1}},
		15,
	)
	s.Require().ErrorIs(err, repository.ErrItemNotFound)
}

func (s *IntegrationTestSuite) TestCreateReservation_ValidationErrors() {
	_, err := s.ReservationService.CreateReservation(s.Ctx, uuid.New(), nil, 15)
	s.Require().ErrorIs(err, service.ErrValidation)

	_, err = s.ReservationService.CreateReservation(
		s.Ctx,
		uuid.New(),
		[]domain.ReservationLine{{ProductID: uuid.New(), Quantity: 0}},
		15,
	)
	s.Require().ErrorIs(err, service.ErrValidation)
}

func (s *IntegrationTestSuite) TestCreateReservation_DuplicateLinesAccumulate() {
	productID := uuid.New()
	s.seedItem(productID, 100, 0)

	reservation, err := s.ReservationService.CreateReservation(
		s.Ctx,
		uuid.New(),
		[]domain.ReservationLine{
			{ProductID: productID, Quantity: 4},
			{ProductID: productID, Quantity: 6},
		},
		15,
	)
	s.Require().NoError(err)
	s.Require().Len(reservation.Items, 2)

	_, reserved := s.itemQuantities(productID)
	s.Require().Equal(int32(10), reserved)
}

func (s *IntegrationTestSuite) TestCommitReservation_ConsumesStock() {
	productID := uuid.New()
	s.seedItem(productID, 100, 0)

	reservation := s.reserve(productID, 10)

	ok, err := s.ReservationService.CommitReservation(s.Ctx, reservation.ID)
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Require().Equal("confirmed", s.reservationStatus(reservation.ID))

	onHand, reserved := s.itemQuantities(productID)
	s.Require().Equal(int32(90), onHand)
	s.Require().Equal(int32(0), reserved)
}

func (s *IntegrationTestSuite) TestCommitReservation_Idempotent() {
	productID := uuid.New()
	s.seedItem(productID, 100, 0)

	reservation := s.reserve(productID, 10)

	ok, err := s.ReservationService.CommitReservation(s.Ctx, reservation.ID)
	s.Require().NoError(err)
	s.Require().True(ok)

	ok, err = s.ReservationService.CommitReservation(s.Ctx, reservation.ID)
	s.Require().NoError(err)
	s.Require().True(ok)

	// the second commit must not double-consume
	onHand, reserved := s.itemQuantities(productID)
	s.Require().Equal(int32(90), onHand)
	s.Require().Equal(int32(0), reserved)
}

func (s *IntegrationTestSuite) TestCommitReservation_Unknown() {
	ok, err := s.ReservationService.CommitReservation(s.Ctx, uuid.New())
	s.Require().NoError(err)
	s.Require().False(ok)
}

func (s *IntegrationTestSuite) TestCommitReservation_RefusesReleased() {
	productID := uuid.New()
	s.seedItem(productID, 100, 0)

	reservation := s.reserve(productID, 10)

	ok, err := s.ReservationService.ReleaseReservation(s.Ctx, reservation.ID, "customer-cancelled")
	s.Require().NoError(err)
	s.Require().True(ok)

	ok, err = s.ReservationService.CommitReservation(s.Ctx, reservation.ID)
	s.Require().NoError(err)
	s.Require().False(ok)

	s.Require().Equal("released", s.reservationStatus(reservation.ID))
}

func (s *IntegrationTestSuite) TestCommitReservation_LedgerDrift() {
	productID := uuid.New()
	s.seedItem(productID, 100, 0)

	reservation := s.reserve(productID, 10)

	// corrupt the ledger out from under the reservation
	_, err := s.DbPool.Exec(
		s.Ctx,
		`UPDATE inventory_items SET quantity_reserved = 2 WHERE product_id = $1`,
		productID,
	)
	s.Require().NoError(err)

	_, err = s.ReservationService.CommitReservation(s.Ctx, reservation.ID)
	s.Require().ErrorIs(err, service.ErrDataIntegrity)

	s.Require().Equal("pending", s.reservationStatus(reservation.ID))
}

func (s *IntegrationTestSuite) TestReleaseReservation_FreesStock() {
	productID := uuid.New()
	s.seedItem(productID, 100, 0)

	reservation := s.reserve(productID, 10)

	ok, err := s.ReservationService.ReleaseReservation(s.Ctx, reservation.ID, "customer-cancelled")
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Require().Equal("released", s.reservationStatus(reservation.ID))

	onHand, reserved := s.itemQuantities(productID)
	s.Require().Equal(int32(100), onHand)
	s.Require().Equal(int32(0), reserved)
}

func (s *IntegrationTestSuite) TestReleaseReservation_Idempotent() {
	productID := uuid.New()
	s.seedItem(productID, 100, 0)

	reservation := s.reserve(productID, 10)

	ok, err := s.ReservationService.ReleaseReservation(s.Ctx, reservation.ID, "customer-cancelled")
	s.Require().NoError(err)
	s.Require().True(ok)

	ok, err = s.ReservationService.ReleaseReservation(s.Ctx, reservation.ID, "customer-cancelled")
	s.Require().NoError(err)
	s.Require().True(ok)

	// the second release must not free stock twice
	_, reserved := s.itemQuantities(productID)
	s.Require().Equal(int32(0), reserved)
}

func (s *IntegrationTestSuite) TestReleaseReservation_RefusesConfirmed() {
	productID := uuid.New()
	s.seedItem(productID, 100, 0)

	reservation := s.reserve(productID, 10)

	ok, err := s.ReservationService.CommitReservation(s.Ctx, reservation.ID)
	s.Require().NoError(err)
	s.Require().True(ok)

	ok, err = s.ReservationService.ReleaseReservation(s.Ctx, reservation.ID, "too-late")
	s.Require().NoError(err)
	s.Require().False(ok)

	s.Require().Equal("confirmed", s.reservationStatus(reservation.ID))

	onHand, _ := s.itemQuantities(productID)
	s.Require().Equal(int32(90), onHand)
}

func (s *IntegrationTestSuite) TestReleaseReservation_Unknown() {
	ok, err := s.ReservationService.ReleaseReservation(s.Ctx, uuid.New(), "whatever")
	s.Require().NoError(err)
	s.Require().False(ok)
}

func (s *IntegrationTestSuite) TestHandlePaymentSucceeded_CommitsByOrder() {
	productID := uuid.New()
	s.seedItem(productID, 100, 0)

	orderID := uuid.New()
	reservation, err := s.ReservationService.CreateReservation(
		s.Ctx,
		orderID,
		[]domain.ReservationLine{{ProductID: productID, Quantity: 10}},
		15,
	)
	s.Require().NoError(err)

	err = s.ReservationService.HandlePaymentSucceeded(s.Ctx, &domain.PaymentSucceededEvent{OrderID: orderID})
	s.Require().NoError(err)

	s.Require().Equal("confirmed", s.reservationStatus(reservation.ID))

	onHand, reserved := s.itemQuantities(productID)
	s.Require().Equal(int32(90), onHand)
	s.Require().Equal(int32(0), reserved)
}

func (s *IntegrationTestSuite) TestHandlePaymentSucceeded_NoReservation() {
	err := s.ReservationService.HandlePaymentSucceeded(s.Ctx, &domain.PaymentSucceededEvent{OrderID: uuid.New()})
	s.Require().NoError(err)
}

func (s *IntegrationTestSuite) TestHandlePaymentFailed_ReleasesByOrder() {
	productID := uuid.New()
	s.seedItem(productID, 100, 0)

	orderID := uuid.New()
	reservation, err := s.ReservationService.CreateReservation(
		s.Ctx,
		orderID,
		[]domain.ReservationLine{{ProductID: productID, Quantity: 10}},
		15,
	)
	s.Require().NoError(err)

	err = s.ReservationService.HandlePaymentFailed(s.Ctx, &domain.PaymentFailedEvent{OrderID: orderID})
	s.Require().NoError(err)

	s.Require().Equal("failed", s.reservationStatus(reservation.ID))

	_, reserved := s.itemQuantities(productID)
	s.Require().Equal(int32(0), reserved)
}

func (s *IntegrationTestSuite) TestReservationCreated_EventPublished() {
	productID := uuid.New()
	s.seedItem(productID, 100, 0)

	reservation := s.reserve(productID, 10)

	s.Require().Eventually(func() bool {
		var publishedAt *time.Time
		err := s.DbPool.QueryRow(
			s.Ctx,
			`SELECT published_at FROM outbox WHERE aggregate_id = $1 AND event_type = 'ReservationCreated'`,
			reservation.ID.String(),
		).Scan(&publishedAt)

		return err == nil && publishedAt != nil
	}, 5*time.Second, 100*time.Millisecond)
}
