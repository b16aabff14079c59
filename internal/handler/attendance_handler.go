// Package handler is the thin HTTP façade: validates inputs, routes to
// the state machine / ingestion / analyzer / anomaly services, and
// translates domain errors to the error envelope.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classattest/attest-backend/internal/attendance"
	"github.com/classattest/attest-backend/internal/model"
	"github.com/classattest/attest-backend/internal/response"
	"github.com/classattest/attest-backend/internal/validator"
)

// AttendanceHandler implements the check-in/confirm/cancel/query routes.
type AttendanceHandler struct {
	svc *attendance.Service
}

// NewAttendanceHandler constructs an AttendanceHandler.
func NewAttendanceHandler(svc *attendance.Service) *AttendanceHandler {
	return &AttendanceHandler{svc: svc}
}

// CheckIn handles POST /check-in.
func (h *AttendanceHandler) CheckIn(c *gin.Context) {
	var req model.CheckInRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest)
		return
	}

	resp, err := h.svc.CheckIn(c.Request.Context(), req)
	if err != nil {
		writeAttendanceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, resp)
}

// Confirm handles POST /attendance/confirm.
func (h *AttendanceHandler) Confirm(c *gin.Context) {
	var req model.ConfirmRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest)
		return
	}

	view, err := h.svc.Confirm(c.Request.Context(), req)
	if err != nil {
		writeAttendanceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"success": true, "attendance": view})
}

// CancelProvisional handles POST /attendance/cancel-provisional.
func (h *AttendanceHandler) CancelProvisional(c *gin.Context) {
	var req model.CancelProvisionalRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest)
		return
	}

	view, err := h.svc.CancelProvisional(c.Request.Context(), req)
	if err != nil {
		writeAttendanceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"success": true, "attendance": view})
}

// QueryToday handles GET /attendance/today/:studentId.
func (h *AttendanceHandler) QueryToday(c *gin.Context) {
	studentID := c.Param("studentId")
	if studentID == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest)
		return
	}

	views, err := h.svc.QueryToday(c.Request.Context(), studentID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if views == nil {
		views = []model.AttendanceView{}
	}
	response.Success(c, http.StatusOK, gin.H{"attendance": views})
}

// writeAttendanceError maps a domain error from the attendance package to
// the matching status code / error kind pair.
func writeAttendanceError(c *gin.Context, err error) {
	var mismatch *attendance.DeviceMismatchError
	if errors.As(err, &mismatch) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":           response.ErrDeviceMismatch,
			"message":         response.GetMessage(response.ErrDeviceMismatch),
			"requestId":       c.GetString(response.ContextKeyRequestID),
			"lockedToStudent": mismatch.LockedToStudent,
		})
		return
	}

	switch {
	case errors.Is(err, attendance.ErrBadRequest):
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest)
	case errors.Is(err, attendance.ErrUnauthorized):
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized)
	case errors.Is(err, attendance.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, attendance.ErrInvalidState):
		response.Fail(c, http.StatusConflict, response.ErrInvalidState)
	case errors.Is(err, attendance.ErrIdempotencyConflict):
		response.Fail(c, http.StatusConflict, response.ErrIdempotencyConflict)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
