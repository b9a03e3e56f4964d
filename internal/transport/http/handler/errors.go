package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/manu042k/ecommerce-microservices/internal/repository"
	"github.com/manu042k/ecommerce-microservices/internal/service"
)

func mapErrorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, repository.ErrItemNotFound),
		errors.Is(err, repository.ErrReservationNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, repository.ErrInsufficientStock):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
