package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/closing-engine/internal/closing"
)

// ErrInvalidCredentials indicates invalid login credentials
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid login or password"
}

// ErrBadRequest indicates a body or query that could not be decoded.
type ErrBadRequest struct {
	Message string
}

func (e *ErrBadRequest) Error() string {
	return e.Message
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		shape     *closing.RequestShapeError
		period    *closing.PeriodNotFoundError
		process   *closing.ProcessNotFoundError
		deadline  *closing.DeadlineViolationError
		busy      *closing.PeriodBusyError
		infra     *closing.InfrastructureError
		badReq    *ErrBadRequest
		invalidCr *ErrInvalidCredentials
	)
	switch {
	case errors.As(err, &shape), errors.As(err, &period), errors.As(err, &process),
		errors.As(err, &deadline), errors.As(err, &badReq):
		return http.StatusBadRequest
	case errors.As(err, &busy):
		return http.StatusConflict
	case errors.As(err, &infra):
		return http.StatusServiceUnavailable
	case errors.As(err, &invalidCr):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// ErrorDetails returns the structured details attached to an error body.
func ErrorDetails(err error) any {
	var (
		shape    *closing.RequestShapeError
		deadline *closing.DeadlineViolationError
	)
	switch {
	case errors.As(err, &shape):
		return shape.Fields
	case errors.As(err, &deadline):
		return deadline.Invalid
	default:
		return nil
	}
}
