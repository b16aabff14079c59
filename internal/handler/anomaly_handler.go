package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classattest/attest-backend/internal/anomaly"
	"github.com/classattest/attest-backend/internal/model"
	"github.com/classattest/attest-backend/internal/repository"
	"github.com/classattest/attest-backend/internal/response"
	"github.com/classattest/attest-backend/internal/validator"
)

// AnomalyHandler implements GET /anomalies and PUT /anomalies/:id/review.
type AnomalyHandler struct {
	svc  *anomaly.Service
	repo repository.Repository
}

// NewAnomalyHandler constructs an AnomalyHandler.
func NewAnomalyHandler(svc *anomaly.Service, repo repository.Repository) *AnomalyHandler {
	return &AnomalyHandler{svc: svc, repo: repo}
}

// List handles GET /anomalies?classId=&sessionDate=&status=.
func (h *AnomalyHandler) List(c *gin.Context) {
	var filter model.AnomalyFilter
	if v := c.Query("classId"); v != "" {
		filter.ClassID = &v
	}
	if v := c.Query("sessionDate"); v != "" {
		filter.SessionDate = &v
	}
	if v := c.Query("status"); v != "" {
		status := model.AnomalyStatus(v)
		filter.Status = &status
	}

	anomalies, err := h.repo.Anomalies().List(c.Request.Context(), filter)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if anomalies == nil {
		anomalies = []model.Anomaly{}
	}
	response.Success(c, http.StatusOK, gin.H{"anomalies": anomalies})
}

// Review handles PUT /anomalies/:id/review.
func (h *AnomalyHandler) Review(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest)
		return
	}

	var req model.ReviewRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest)
		return
	}

	notes := ""
	if req.Notes != nil {
		notes = *req.Notes
	}

	result, err := h.svc.Review(c.Request.Context(), h.repo.Attendance(), id, req.Action, notes)
	if err != nil {
		switch {
		case errors.Is(err, anomaly.ErrNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, anomaly.ErrInvalidAction):
			response.Fail(c, http.StatusBadRequest, response.ErrBadRequest)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"anomaly":              result.Anomaly,
		"cancelledStudentIds":  result.CancelledStudentIDs,
		"reinstatedStudentIds": result.ReinstatedStudentIDs,
	})
}
