package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classattest/attest-backend/internal/ingestion"
	"github.com/classattest/attest-backend/internal/model"
	"github.com/classattest/attest-backend/internal/response"
	"github.com/classattest/attest-backend/internal/validator"
)

// IngestionHandler implements POST /attendance/rssi-stream.
type IngestionHandler struct {
	svc *ingestion.Service
}

// NewIngestionHandler constructs an IngestionHandler.
func NewIngestionHandler(svc *ingestion.Service) *IngestionHandler {
	return &IngestionHandler{svc: svc}
}

// AppendStream handles POST /attendance/rssi-stream.
func (h *IngestionHandler) AppendStream(c *gin.Context) {
	var req model.AppendStreamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest)
		return
	}

	resp, err := h.svc.AppendStream(c.Request.Context(), req)
	if err != nil {
		if err == ingestion.ErrBadRequest {
			response.Fail(c, http.StatusBadRequest, response.ErrBadRequest)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, resp)
}
