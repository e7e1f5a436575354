package handler

import (
	"errors"
	"net/http"

	"robot_overlord_api/internal/domain/moderation/service"
	queueService "robot_overlord_api/internal/domain/queue/service"
	"robot_overlord_api/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type SubmissionHandler struct {
	service service.SubmissionService
}

func NewSubmissionHandler(svc service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{service: svc}
}

// currentUserID 从 Context 中取 AuthMiddleware 写入的用户 ID
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

// writeSubmitError 提交错误到响应码的映射
func writeSubmitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUserSanctioned):
		response.Fail(c, response.ErrUserSanctioned, "Submissions are blocked by an active sanction")
	case errors.Is(err, service.ErrTopicPrivilege):
		response.Fail(c, response.ErrTopicPrivilege, "Insufficient loyalty standing to create topics")
	case errors.Is(err, service.ErrEmptyContent):
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "Content is empty after sanitization")
	case errors.Is(err, service.ErrTopicNotOpen):
		response.Fail(c, response.ErrContentNotVisible, "Topic is not open for posts")
	case errors.Is(err, queueService.ErrAlreadyQueued):
		response.Fail(c, response.ErrAlreadyQueued, "Content is already awaiting review")
	case errors.Is(err, gorm.ErrRecordNotFound):
		response.Fail(c, response.ErrContentNotFound, "Content not found")
	default:
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
	}
}

type SubmitTopicInput struct {
	Title       string `json:"title" binding:"required,max=200"`
	Description string `json:"description" binding:"required"`
}

func (h *SubmissionHandler) SubmitTopic(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}

	var input SubmitTopicInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	result, err := h.service.SubmitTopic(c.Request.Context(), uid, input.Title, input.Description)
	if err != nil {
		writeSubmitError(c, err)
		return
	}
	response.Success(c, result)
}

type SubmitPostInput struct {
	Content  string  `json:"content" binding:"required"`
	ParentPK *string `json:"parentPk"`
}

func (h *SubmissionHandler) SubmitPost(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}

	var input SubmitPostInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	result, err := h.service.SubmitPost(c.Request.Context(), uid, c.Param("id"), input.ParentPK, input.Content)
	if err != nil {
		writeSubmitError(c, err)
		return
	}
	response.Success(c, result)
}

type SubmitMessageInput struct {
	RecipientPK string `json:"recipientPk" binding:"required,uuid"`
	Content     string `json:"content" binding:"required"`
}

func (h *SubmissionHandler) SubmitMessage(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}

	var input SubmitMessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	result, err := h.service.SubmitMessage(c.Request.Context(), uid, input.RecipientPK, input.Content)
	if err != nil {
		writeSubmitError(c, err)
		return
	}
	response.Success(c, result)
}
