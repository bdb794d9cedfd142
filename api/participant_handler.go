package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/participant"
)

// RegisterHelperRequest is the body of POST /api/helpers/register. DOB is
// a calendar date, YYYY-MM-DD.
type RegisterHelperRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address"`
	DOB         string `json:"dob"`
}

// VerifyHelperRequest is the body of POST /api/helpers/verify.
type VerifyHelperRequest struct {
	PhoneNumber string `json:"phone_number"`
	OTP         string `json:"otp"`
}

func (a *API) registerPatient(c *gin.Context) {
	var req participant.PatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %w", carenest.ErrInvalidInput, err))
		return
	}
	p, err := a.eng.Participants().RegisterPatient(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *API) listPatients(c *gin.Context) {
	patients, err := a.eng.Participants().ListPatients(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, patients)
}

func (a *API) registerHelper(c *gin.Context) {
	var req RegisterHelperRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %w", carenest.ErrInvalidInput, err))
		return
	}
	var dob time.Time
	if req.DOB != "" {
		parsed, err := time.Parse(time.DateOnly, req.DOB)
		if err != nil {
			writeError(c, fmt.Errorf("%w: dob %q is not YYYY-MM-DD", carenest.ErrInvalidInput, req.DOB))
			return
		}
		dob = parsed
	}

	h, err := a.eng.Participants().RegisterHelper(c.Request.Context(), participant.HelperRequest{
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
		DOB:         dob,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "registration started, otp sent to " + h.PhoneNumber,
		"helper":  h,
	})
}

func (a *API) verifyHelper(c *gin.Context) {
	var req VerifyHelperRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %w", carenest.ErrInvalidInput, err))
		return
	}
	h, err := a.eng.Participants().VerifyHelper(c.Request.Context(), req.PhoneNumber, req.OTP)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h)
}

func (a *API) listHelpers(c *gin.Context) {
	helpers, err := a.eng.Participants().ListHelpers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, helpers)
}
