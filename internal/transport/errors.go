package transport

import (
	"errors"
	"net/http"

	"github.com/ds124wfegd/smartblood/internal/entity"
	"github.com/ds124wfegd/smartblood/internal/service"
	"github.com/ds124wfegd/smartblood/internal/transport/middleware"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every failed call
type ErrorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, entity.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

func actorFrom(c *gin.Context) service.Actor {
	return service.Actor{
		ProfileID: c.GetString(middleware.ProfileIDKey),
		Name:      c.GetString(middleware.ProfileNameKey),
		Contact:   c.GetString(middleware.ProfileContactKey),
	}
}

// StatusRequest is the body of a status transition
type StatusRequest struct {
	Status entity.RequestStatus `json:"status" binding:"required"`
}
