package handler

import (
	"net/http"
	"strconv"

	"robot_overlord_api/internal/domain/loyalty/service"
	"robot_overlord_api/pkg/response"
	"robot_overlord_api/pkg/utils"

	"github.com/gin-gonic/gin"
)

type LoyaltyHandler struct {
	service service.LoyaltyService
}

func NewLoyaltyHandler(svc service.LoyaltyService) *LoyaltyHandler {
	return &LoyaltyHandler{service: svc}
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

// GetMyProfile 当前用户的声誉档案
func (h *LoyaltyHandler) GetMyProfile(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}

	profile, err := h.service.GetProfile(c.Request.Context(), uid)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	response.Success(c, profile)
}

// GetMyEvents 当前用户的账本事件流
func (h *LoyaltyHandler) GetMyEvents(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	events, total, err := h.service.GetEvents(uid, page, pageSize)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	response.Success(c, utils.NewPageResult(events, total, page, pageSize))
}

// GetLeaderboard 排行榜
func (h *LoyaltyHandler) GetLeaderboard(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	entries, err := h.service.Leaderboard(c.Request.Context(), offset, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	response.Success(c, entries)
}

type ManualAdjustInput struct {
	UserPK     string `json:"userPk" binding:"required,uuid"`
	Adjustment int    `json:"adjustment" binding:"required"`
	Reason     string `json:"reason" binding:"required,min=5,max=500"`
	AdminNotes string `json:"adminNotes" binding:"max=1000"`
}

// ManualAdjust 管理员人工调整分数
func (h *LoyaltyHandler) ManualAdjust(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	var input ManualAdjustInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	adj, err := h.service.ManualAdjust(input.UserPK, adminID, input.Adjustment, input.Reason, input.AdminNotes)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	response.Success(c, adj)
}

// Rebuild 管理员触发事件回放重建
func (h *LoyaltyHandler) Rebuild(c *gin.Context) {
	before, err := h.service.Rebuild(c.Param("userPk"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	response.Success(c, gin.H{"previous": before})
}
