package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	carenest "github.com/gaurav-seth/carenest-helper"
)

// statusFor maps a sentinel error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case carenest.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, carenest.ErrInvalidInput),
		errors.Is(err, carenest.ErrInvalidOTP),
		errors.Is(err, carenest.ErrOTPExpired):
		return http.StatusBadRequest
	case errors.Is(err, carenest.ErrJobAlreadyExists),
		errors.Is(err, carenest.ErrSubscriberExists):
		return http.StatusConflict
	case errors.Is(err, carenest.ErrStoreUnavailable),
		errors.Is(err, carenest.ErrStoreClosed),
		errors.Is(err, carenest.ErrBusClosed),
		errors.Is(err, carenest.ErrBroadcastFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}
