package service

import (
	"errors"

	"robot_overlord_api/internal/domain/content/model"
	"robot_overlord_api/internal/domain/content/repository"
)

// ErrNotParticipant 非会话参与者无权读取私信
var ErrNotParticipant = errors.New("user is not a participant of this conversation")

// ContentService 已审内容的读侧
type ContentService interface {
	GetTopic(id string) (*model.Topic, error)
	// ApprovedTopics 公开辩题流
	ApprovedTopics(page, pageSize int) ([]model.Topic, int64, error)
	// ApprovedPosts 辩题下的公开帖子流
	ApprovedPosts(topicPK string, page, pageSize int) ([]model.Post, int64, error)
	// Conversation 私信会话，仅限参与者
	Conversation(userPK, otherPK string, page, pageSize int) ([]model.PrivateMessage, int64, error)
	// VersionHistory 内容版本历史，新版本在前
	VersionHistory(contentPK string, limit int) ([]model.ContentVersion, error)
}

type contentService struct {
	contents repository.ContentRepository
	versions repository.VersionRepository
}

// NewContentService 创建内容读服务
func NewContentService(contents repository.ContentRepository, versions repository.VersionRepository) ContentService {
	return &contentService{contents: contents, versions: versions}
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return (page - 1) * pageSize, pageSize
}

func (s *contentService) GetTopic(id string) (*model.Topic, error) {
	return s.contents.GetTopicByID(id)
}

func (s *contentService) ApprovedTopics(page, pageSize int) ([]model.Topic, int64, error) {
	offset, limit := normalizePage(page, pageSize)
	return s.contents.GetTopics(model.StatusApproved, offset, limit)
}

func (s *contentService) ApprovedPosts(topicPK string, page, pageSize int) ([]model.Post, int64, error) {
	offset, limit := normalizePage(page, pageSize)
	return s.contents.GetPostsByTopic(topicPK, model.StatusApproved, offset, limit)
}

func (s *contentService) Conversation(userPK, otherPK string, page, pageSize int) ([]model.PrivateMessage, int64, error) {
	if userPK == "" || otherPK == "" || userPK == otherPK {
		return nil, 0, ErrNotParticipant
	}
	offset, limit := normalizePage(page, pageSize)
	return s.contents.GetMessagesByConversation(model.ConversationID(userPK, otherPK), offset, limit)
}

func (s *contentService) VersionHistory(contentPK string, limit int) ([]model.ContentVersion, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.versions.GetHistory(contentPK, limit)
}
