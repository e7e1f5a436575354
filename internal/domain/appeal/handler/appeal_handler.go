package handler

import (
	"errors"
	"net/http"
	"strconv"

	"robot_overlord_api/internal/domain/appeal/service"
	sanctionService "robot_overlord_api/internal/domain/sanction/service"
	"robot_overlord_api/pkg/response"
	"robot_overlord_api/pkg/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type AppealHandler struct {
	service service.AppealService
}

func NewAppealHandler(svc service.AppealService) *AppealHandler {
	return &AppealHandler{service: svc}
}

func currentUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("userID")
	if !exists {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "User not authenticated")
		return "", false
	}
	uid, ok := userID.(string)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, "Invalid user ID type")
		return "", false
	}
	return uid, true
}

// writeAppealError 申诉校验错误到响应码的映射。
// 拒绝必须携带具体原因码，调用方据此区分可重试与不可重试。
func writeAppealError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAppealReasonLength):
		response.Fail(c, response.ErrAppealReasonLength, "Appeal reason length out of bounds")
	case errors.Is(err, service.ErrNotAppealable), errors.Is(err, service.ErrNotContentOwner),
		errors.Is(err, service.ErrAppealWindowClosed):
		response.Fail(c, response.ErrAppealNotEligible, err.Error())
	case errors.Is(err, service.ErrAppealCooldown):
		response.Fail(c, response.ErrAppealCooldown, "Cooldown active, this content was recently denied on appeal")
	case errors.Is(err, service.ErrAppealLimitReached):
		response.Fail(c, response.ErrAppealLimitReached, "Daily appeal limit reached")
	case errors.Is(err, service.ErrActiveAppealExists):
		response.Fail(c, response.ErrAppealDuplicate, "An active appeal already exists for this content")
	case errors.Is(err, service.ErrAppealNotAssigned):
		response.Fail(c, response.ErrAppealNotAssigned, "Appeal is not assigned to this reviewer")
	case errors.Is(err, service.ErrAppealTerminal):
		response.Fail(c, response.ErrAppealTerminal, "Appeal is already terminal")
	case errors.Is(err, service.ErrRationaleRequired):
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "Decision rationale is required")
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, sanctionService.ErrSanctionNotFound):
		response.Fail(c, response.ErrAppealNotFound, "Appeal or content not found")
	default:
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
	}
}

type CreateAppealInput struct {
	ContentType string `json:"contentType" binding:"required,oneof=topic post private_message sanction"`
	ContentPK   string `json:"contentPk" binding:"required,uuid"`
	Reason      string `json:"reason" binding:"required"`
}

func (h *AppealHandler) CreateAppeal(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}

	var input CreateAppealInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	appeal, err := h.service.Create(c.Request.Context(), uid, input.ContentType, input.ContentPK, input.Reason)
	if err != nil {
		writeAppealError(c, err)
		return
	}
	response.Success(c, appeal)
}

func (h *AppealHandler) ListMyAppeals(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	appeals, total, err := h.service.ListByUser(uid, page, pageSize)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	response.Success(c, utils.NewPageResult(appeals, total, page, pageSize))
}

func (h *AppealHandler) WithdrawAppeal(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.service.Withdraw(c.Param("id"), uid); err != nil {
		writeAppealError(c, err)
		return
	}
	response.Success(c, nil)
}

// ListReviewable 审核台队列：按优先级排序的待审申诉
func (h *AppealHandler) ListReviewable(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	appeals, total, err := h.service.ListReviewable(page, pageSize)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	response.Success(c, utils.NewPageResult(appeals, total, page, pageSize))
}

// AssignAppeal 审核人认领申诉
func (h *AppealHandler) AssignAppeal(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.service.Assign(c.Param("id"), uid); err != nil {
		writeAppealError(c, err)
		return
	}
	response.Success(c, nil)
}

type DecideAppealInput struct {
	Sustain       bool    `json:"sustain"`
	Rationale     string  `json:"rationale" binding:"required,min=10,max=2000"`
	EditedTitle   *string `json:"editedTitle"`
	EditedContent *string `json:"editedContent"`
}

// DecideAppeal 审核人裁决申诉
func (h *AppealHandler) DecideAppeal(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}

	var input DecideAppealInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	appeal, err := h.service.Decide(c.Request.Context(), service.DecideRequest{
		AppealID:      c.Param("id"),
		ReviewerPK:    uid,
		Sustain:       input.Sustain,
		Rationale:     input.Rationale,
		EditedTitle:   input.EditedTitle,
		EditedContent: input.EditedContent,
	})
	if err != nil {
		writeAppealError(c, err)
		return
	}
	response.Success(c, appeal)
}

func (h *AppealHandler) GetStats(c *gin.Context) {
	stats, err := h.service.Stats()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	response.Success(c, stats)
}
