package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	carenest "github.com/gaurav-seth/carenest-helper"
)

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{carenest.ErrJobNotFound, http.StatusNotFound},
		{carenest.ErrPatientNotFound, http.StatusNotFound},
		{carenest.ErrInvalidInput, http.StatusBadRequest},
		{carenest.ErrInvalidOTP, http.StatusBadRequest},
		{carenest.ErrJobAlreadyExists, http.StatusConflict},
		{carenest.ErrSubscriberExists, http.StatusConflict},
		{carenest.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{carenest.ErrBusClosed, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(fmt.Errorf("op: %w", tt.err)); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
