package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/davicafu/orchestrix/internal/saga/application"
	sagaDomain "github.com/davicafu/orchestrix/internal/saga/domain"
	"github.com/davicafu/orchestrix/pkg/utils"
)

type SagaHandler struct {
	service *application.SagaService
}

func NewSagaHandler(service *application.SagaService) *SagaHandler {
	return &SagaHandler{service: service}
}

type startSagaRequest struct {
	SagaName      string                 `json:"sagaName" binding:"required"`
	Input         map[string]interface{} `json:"input"`
	CorrelationID string                 `json:"correlationId"`
}

// StartSaga endpoint POST /sagas/start
func (h *SagaHandler) StartSaga(c *gin.Context) {
	var req startSagaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	res, err := h.service.StartSaga(c.Request.Context(), req.SagaName, req.Input, req.CorrelationID)
	if err != nil {
		switch {
		case errors.Is(err, sagaDomain.ErrSagaDefinitionNotFound):
			utils.SendNotFound(c, err.Error())
		case errors.Is(err, sagaDomain.ErrQueueFull):
			utils.SendServiceUnavailable(c, err.Error())
		default:
			utils.SendInternalServerError(c, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"sagaInstanceId": res.SagaInstanceID,
		"correlationId":  res.CorrelationID,
		"status":         res.Status,
	})
}

// GetStatus endpoint GET /sagas/status?sagaInstanceId=
func (h *SagaHandler) GetStatus(c *gin.Context) {
	id := c.Query("sagaInstanceId")
	if id == "" {
		utils.SendBadRequest(c, "sagaInstanceId is required")
		return
	}

	inst, err := h.service.GetSagaStatus(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sagaDomain.ErrSagaInstanceNotFound) {
			utils.SendNotFound(c, err.Error())
			return
		}
		utils.SendInternalServerError(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, inst)
}

// ListSagas endpoint GET /sagas
func (h *SagaHandler) ListSagas(c *gin.Context) {
	params := application.ListParams{
		Status:   sagaDomain.SagaStatus(c.Query("status")),
		SagaName: c.Query("sagaName"),
	}
	var err error
	if raw := c.Query("limit"); raw != "" {
		if params.Limit, err = strconv.Atoi(raw); err != nil {
			utils.SendBadRequest(c, "invalid limit")
			return
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if params.Offset, err = strconv.Atoi(raw); err != nil || params.Offset < 0 {
			utils.SendBadRequest(c, "invalid offset")
			return
		}
	}

	sagas, err := h.service.ListSagas(c.Request.Context(), params)
	if err != nil {
		utils.SendInternalServerError(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"sagas": sagas, "total": len(sagas)})
}

// ListDefinitions endpoint GET /sagas/definitions
func (h *SagaHandler) ListDefinitions(c *gin.Context) {
	defs := h.service.ListDefinitions()
	c.JSON(http.StatusOK, gin.H{"definitions": defs, "total": len(defs)})
}
