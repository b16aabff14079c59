package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classattest/attest-backend/internal/analyzer"
	"github.com/classattest/attest-backend/internal/response"
)

// AnalyzerHandler implements POST /analyze-correlations, the on-demand
// trigger for the same pass the ticker runs.
type AnalyzerHandler struct {
	job *analyzer.Job
}

// NewAnalyzerHandler constructs an AnalyzerHandler.
func NewAnalyzerHandler(job *analyzer.Job) *AnalyzerHandler {
	return &AnalyzerHandler{job: job}
}

type analyzeRequest struct {
	ClassID     *string `json:"classId"`
	SessionDate *string `json:"sessionDate"`
}

// Trigger handles POST /analyze-correlations.
func (h *AnalyzerHandler) Trigger(c *gin.Context) {
	var req analyzeRequest
	_ = c.ShouldBindJSON(&req)

	processed, err := h.job.RunOnce(c.Request.Context(), req.ClassID, req.SessionDate)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"groupsProcessed": processed})
}
