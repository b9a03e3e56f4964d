package service_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/manu042k/ecommerce-microservices/internal/worker"
)

func (s *IntegrationTestSuite) TestExpirySweeper_ExpiresOverdueReservations() {
	productID := uuid.New()
	s.seedItem(productID, 100, 0)

	reservation := s.reserve(productID, 10)

	// push the hold deadline into the past
	_, err := s.DbPool.Exec(
		s.Ctx,
		`UPDATE inventory_reservations SET expires_at = NOW() - INTERVAL '1 minute' WHERE id = $1`,
		reservation.ID,
	)
	s.Require().NoError(err)

	sweeper := worker.NewExpirySweeper(s.ReservationRepo, s.ReservationService, zap.NewNop(), 100*time.Millisecond, 100)

	sweepCtx, cancel := context.WithCancel(s.Ctx)
	defer cancel()
	go sweeper.Start(sweepCtx)

	s.Require().Eventually(func() bool {
		return s.reservationStatus(reservation.ID) == "expired"
	}, 5*time.Second, 100*time.Millisecond)

	onHand, reserved := s.itemQuantities(productID)
	s.Require().Equal(int32(100), onHand)
	s.Require().Equal(int32(0), reserved)
}

func (s *IntegrationTestSuite) TestExpirySweeper_LeavesFreshReservationsAlone() {
	productID := uuid.New()
	s.seedItem(productID, 100, 0)

	reservation := s.reserve(productID, 10)

	sweeper := worker.NewExpirySweeper(s.ReservationRepo, s.ReservationService, zap.NewNop(), 100*time.Millisecond, 100)

	sweepCtx, cancel := context.WithCancel(s.Ctx)
	defer cancel()
	go sweeper.Start(sweepCtx)

	time.Sleep(500 * time.Millisecond)

	s.Require().Equal("pending", s.reservationStatus(reservation.ID))

	_, reserved := s.itemQuantities(productID)
	s.Require().Equal(int32(10), reserved)
}

func (s *IntegrationTestSuite) TestExpireReservation_ThenReleaseIsIdempotent() {
	productID := uuid.New()
	s.seedItem(productID, 100, 0)

	reservation := s.reserve(productID, 10)

	ok, err := s.ReservationService.ExpireReservation(s.Ctx, reservation.ID)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Require().Equal("expired", s.reservationStatus(reservation.ID))

	ok, err = s.ReservationService.ReleaseReservation(s.Ctx, reservation.ID, "customer-cancelled")
	s.Require().NoError(err)
	s.Require().True(ok)

	// the status stays expired and stock is not freed twice
	s.Require().Equal("expired", s.reservationStatus(reservation.ID))

	_, reserved := s.itemQuantities(productID)
	s.Require().Equal(int32(0), reserved)
}
