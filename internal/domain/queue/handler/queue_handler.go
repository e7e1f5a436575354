package handler

import (
	"net/http"

	"robot_overlord_api/internal/domain/queue/model"
	"robot_overlord_api/internal/domain/queue/service"
	"robot_overlord_api/pkg/response"

	"github.com/gin-gonic/gin"
)

type QueueHandler struct {
	service service.QueueService
}

func NewQueueHandler(svc service.QueueService) *QueueHandler {
	return &QueueHandler{service: svc}
}

// validQueueTypes 允许查询的队列类型
var validQueueTypes = map[model.QueueType]bool{
	model.QueueTopicCreation:    true,
	model.QueuePostTosScreening: true,
	model.QueuePostModeration:   true,
	model.QueuePrivateMessage:   true,
}

// GetPosition 查询内容在队列中的估计位置
func (h *QueueHandler) GetPosition(c *gin.Context) {
	queueType := model.QueueType(c.Param("type"))
	if !validQueueTypes[queueType] {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "Unknown queue type")
		return
	}

	info, err := h.service.Position(queueType, c.Param("contentPk"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	if info == nil {
		response.Fail(c, response.ErrQueueEntryGone, "Content is not in this queue")
		return
	}
	response.Success(c, info)
}

// GetOverview 各队列长度与平均处理时长快照
func (h *QueueHandler) GetOverview(c *gin.Context) {
	overview, err := h.service.Overview(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	response.Success(c, overview)
}
