package handler

import (
	"errors"
	"net/http"
	"strconv"

	"robot_overlord_api/internal/domain/content/model"
	"robot_overlord_api/internal/domain/content/service"
	"robot_overlord_api/pkg/response"
	"robot_overlord_api/pkg/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ContentHandler struct {
	service service.ContentService
}

func NewContentHandler(svc service.ContentService) *ContentHandler {
	return &ContentHandler{service: svc}
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	return page, pageSize
}

func (h *ContentHandler) ListTopics(c *gin.Context) {
	page, pageSize := pageParams(c)
	topics, total, err := h.service.ApprovedTopics(page, pageSize)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	response.Success(c, utils.NewPageResult(topics, total, page, pageSize))
}

func (h *ContentHandler) GetTopic(c *gin.Context) {
	topic, err := h.service.GetTopic(c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Fail(c, response.ErrContentNotFound, "Topic not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	// 未过审的辩题不对外展示
	if topic.Status != model.StatusApproved {
		response.Fail(c, response.ErrContentNotVisible, "Topic is not visible")
		return
	}
	response.Success(c, topic)
}

func (h *ContentHandler) ListPosts(c *gin.Context) {
	page, pageSize := pageParams(c)
	posts, total, err := h.service.ApprovedPosts(c.Param("id"), page, pageSize)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	response.Success(c, utils.NewPageResult(posts, total, page, pageSize))
}

func (h *ContentHandler) GetConversation(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "User not authenticated")
		return
	}
	uid, ok := userID.(string)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, "Invalid user ID type")
		return
	}

	page, pageSize := pageParams(c)
	msgs, total, err := h.service.Conversation(uid, c.Param("userPk"), page, pageSize)
	if err != nil {
		if errors.Is(err, service.ErrNotParticipant) {
			response.Error(c, http.StatusForbidden, response.ErrNoPermission, "Not a participant of this conversation")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	response.Success(c, utils.NewPageResult(msgs, total, page, pageSize))
}

// GetVersionHistory 内容版本历史，审核台使用
func (h *ContentHandler) GetVersionHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	versions, err := h.service.VersionHistory(c.Param("id"), limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	if len(versions) == 0 {
		response.Fail(c, response.ErrVersionNotFound, "No versions recorded for this content")
		return
	}
	response.Success(c, versions)
}
