package service_test

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/manu042k/ecommerce-microservices/internal/domain"
	"github.com/manu042k/ecommerce-microservices/internal/repository"
)

// Eight concurrent reservations of 10 against 50 on hand: exactly five may
// win, the rest must see insufficient stock, and reserved can never exceed
// on hand.
func (s *IntegrationTestSuite) TestCreateReservation_ConcurrentNeverOversells() {
	productID := uuid.New()
	s.seedItem(productID, 50, 0)

	const (
		workers  = 8
		quantity = 10
	)

	results := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			_, err := s.ReservationService.CreateReservation(
				s.Ctx,
				uuid.New(),
				[]domain.ReservationLine{{ProductID: productID, Quantity: quantity}},
				15,
			)
			results[i] = err
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, repository.ErrInsufficientStock):
			rejected++
		default:
			s.Require().NoError(err)
		}
	}

	s.Require().Equal(5, succeeded)
	s.Require().Equal(3, rejected)

	onHand, reserved := s.itemQuantities(productID)
	s.Require().Equal(int32(50), onHand)
	s.Require().Equal(int32(50), reserved)
	s.Require().LessOrEqual(reserved, onHand)
}

// Commit and release race for the same pending reservation. Whichever wins,
// the loser must observe the terminal state and back off, and the ledger
// must end up consistent with exactly one outcome.
func (s *IntegrationTestSuite) TestCommitAndRelease_RaceSettlesOnce() {
	productID := uuid.New()
	s.seedItem(productID, 100, 0)

	reservation := s.reserve(productID, 10)

	var (
		wg                    sync.WaitGroup
		commitErr, releaseErr error
	)
	wg.Add(2)

	go func() {
		defer wg.Done()
		_, commitErr = s.ReservationService.CommitReservation(s.Ctx, reservation.ID)
	}()
	go func() {
		defer wg.Done()
		_, releaseErr = s.ReservationService.ReleaseReservation(s.Ctx, reservation.ID, "race")
	}()
	wg.Wait()

	s.Require().NoError(commitErr)
	s.Require().NoError(releaseErr)

	onHand, reserved := s.itemQuantities(productID)
	s.Require().Equal(int32(0), reserved)

	switch s.reservationStatus(reservation.ID) {
	case "confirmed":
		s.Require().Equal(int32(90), onHand)
	case "released":
		s.Require().Equal(int32(100), onHand)
	default:
		s.FailNow("reservation must settle in confirmed or released")
	}
}
