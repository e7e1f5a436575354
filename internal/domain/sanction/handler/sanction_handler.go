package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"robot_overlord_api/internal/domain/sanction/model"
	"robot_overlord_api/internal/domain/sanction/service"
	"robot_overlord_api/pkg/response"
	"robot_overlord_api/pkg/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type SanctionHandler struct {
	service service.SanctionService
}

func NewSanctionHandler(svc service.SanctionService) *SanctionHandler {
	return &SanctionHandler{service: svc}
}

type ApplySanctionInput struct {
	UserPK      string `json:"userPk" binding:"required,uuid"`
	Type        string `json:"type" binding:"required,oneof=warning posting_freeze rate_limit temporary_ban permanent_ban"`
	Reason      string `json:"reason" binding:"required,min=5,max=1000"`
	DurationSec int64  `json:"durationSec" binding:"min=0"`
}

func (h *SanctionHandler) ApplySanction(c *gin.Context) {
	adminID, exists := c.Get("userID")
	if !exists {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "User not authenticated")
		return
	}

	var input ApplySanctionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	sanction, err := h.service.Apply(service.ApplyRequest{
		UserPK:    input.UserPK,
		Type:      model.SanctionType(input.Type),
		Reason:    input.Reason,
		AppliedBy: adminID.(string),
		Duration:  time.Duration(input.DurationSec) * time.Second,
	})
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	response.Success(c, sanction)
}

func (h *SanctionHandler) LiftSanction(c *gin.Context) {
	adminID, exists := c.Get("userID")
	if !exists {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "User not authenticated")
		return
	}

	err := h.service.Lift(nil, c.Param("id"), adminID.(string))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSanctionNotActive):
			response.Fail(c, response.ErrInvalidParam, "Sanction is not active")
		case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, service.ErrSanctionNotFound):
			response.Fail(c, response.ErrContentNotFound, "Sanction not found")
		default:
			response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		}
		return
	}
	response.Success(c, nil)
}

func (h *SanctionHandler) ListUserSanctions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	sanctions, total, err := h.service.ListByUser(c.Param("userPk"), page, pageSize)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	response.Success(c, utils.NewPageResult(sanctions, total, page, pageSize))
}
