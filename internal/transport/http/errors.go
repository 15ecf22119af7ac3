package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/vani-inventory/internal/confirm"
	"github.com/sakashimaa/vani-inventory/internal/domain"
	"github.com/sakashimaa/vani-inventory/internal/gate"
	"github.com/sakashimaa/vani-inventory/internal/repository"
	"github.com/sakashimaa/vani-inventory/internal/session"
)

func mapErrorStatus(err error) int {
	switch {
	case errors.Is(err, confirm.ErrConfirmationNotFound),
		errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrSaleNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, gate.ErrChallengeFailed):
		return fiber.StatusUnauthorized
	case errors.Is(err, gate.ErrBiometricUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func resultStatus(res domain.Result) int {
	switch res.Kind {
	case domain.ResultAdded:
		return fiber.StatusCreated
	case domain.ResultInvalid:
		return fiber.StatusBadRequest
	case domain.ResultRefused:
		return fiber.StatusConflict
	case domain.ResultFailed:
		return fiber.StatusInternalServerError
	default:
		return fiber.StatusOK
	}
}
