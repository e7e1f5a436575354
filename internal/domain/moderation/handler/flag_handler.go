package handler

import (
	"errors"
	"net/http"
	"strconv"

	"robot_overlord_api/internal/domain/moderation/service"
	"robot_overlord_api/pkg/response"
	"robot_overlord_api/pkg/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type FlagHandler struct {
	service service.FlagService
}

func NewFlagHandler(svc service.FlagService) *FlagHandler {
	return &FlagHandler{service: svc}
}

// writeFlagError 举报错误到响应码的映射
func writeFlagError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrFlagReasonLength):
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "Flag reason length out of bounds")
	case errors.Is(err, service.ErrSelfFlag), errors.Is(err, service.ErrNotFlaggable):
		response.Fail(c, response.ErrFlagNotEligible, err.Error())
	case errors.Is(err, service.ErrAlreadyFlagged):
		response.Fail(c, response.ErrFlagDuplicate, "You have already flagged this content")
	case errors.Is(err, service.ErrFlagDecided):
		response.Fail(c, response.ErrFlagAlreadyDecided, "Flag is already decided")
	case errors.Is(err, gorm.ErrRecordNotFound):
		response.Fail(c, response.ErrFlagNotFound, "Flag or content not found")
	default:
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
	}
}

type CreateFlagInput struct {
	ContentType string `json:"contentType" binding:"required,oneof=topic post"`
	ContentPK   string `json:"contentPk" binding:"required,uuid"`
	Reason      string `json:"reason" binding:"required"`
}

// CreateFlag 举报一条公开内容
func (h *FlagHandler) CreateFlag(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var input CreateFlagInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	flag, err := h.service.Create(userID, input.ContentType, input.ContentPK, input.Reason)
	if err != nil {
		writeFlagError(c, err)
		return
	}
	response.Success(c, flag)
}

type ReviewFlagInput struct {
	Uphold bool   `json:"uphold"`
	Notes  string `json:"notes" binding:"required,max=1000"`
}

// ReviewFlag 审核人裁决举报
func (h *FlagHandler) ReviewFlag(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var input ReviewFlagInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	flag, err := h.service.Review(service.ReviewFlagRequest{
		FlagID:     c.Param("id"),
		ReviewerPK: userID,
		Uphold:     input.Uphold,
		Notes:      input.Notes,
	})
	if err != nil {
		writeFlagError(c, err)
		return
	}
	response.Success(c, flag)
}

// ListPendingFlags 待裁决举报列表
func (h *FlagHandler) ListPendingFlags(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	flags, total, err := h.service.ListPending(page, pageSize)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	response.Success(c, utils.NewPageResult(flags, total, page, pageSize))
}
