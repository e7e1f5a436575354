package repository

import (
	"errors"

	"robot_overlord_api/internal/domain/content/model"

	"gorm.io/gorm"
)

// ErrInvalidTransition 状态转移被数据库条件更新拒绝
var ErrInvalidTransition = errors.New("invalid content status transition")

// ContentRepository 接口定义
type ContentRepository interface {
	CreateTopic(topic *model.Topic) error
	CreatePost(post *model.Post) error
	CreateMessage(msg *model.PrivateMessage) error

	GetTopicByID(id string) (*model.Topic, error)
	GetPostByID(id string) (*model.Post, error)
	GetMessageByID(id string) (*model.PrivateMessage, error)

	// GetRef 按类型加载统一内容引用
	GetRef(contentType model.ContentType, pk string) (*model.Ref, error)

	// TransitionStatus 条件更新实现的原子状态转移：
	// 仅当当前状态仍为 from 时才更新，否则返回 ErrInvalidTransition
	TransitionStatus(tx *gorm.DB, contentType model.ContentType, pk string, from, to model.Status, feedback string) error

	// ApplyEditedBody 恢复时用编辑稿替换正文（标题可选）
	ApplyEditedBody(tx *gorm.DB, contentType model.ContentType, pk string, title, body *string) error

	GetTopics(status model.Status, offset, limit int) ([]model.Topic, int64, error)
	GetPostsByTopic(topicPK string, status model.Status, offset, limit int) ([]model.Post, int64, error)
	GetMessagesByConversation(conversationID string, offset, limit int) ([]model.PrivateMessage, int64, error)
}

type contentRepository struct {
	db *gorm.DB
}

// NewContentRepository 创建新的仓库实例
func NewContentRepository(db *gorm.DB) ContentRepository {
	return &contentRepository{db: db}
}

func (r *contentRepository) CreateTopic(topic *model.Topic) error {
	return r.db.Create(topic).Error
}

func (r *contentRepository) CreatePost(post *model.Post) error {
	return r.db.Create(post).Error
}

func (r *contentRepository) CreateMessage(msg *model.PrivateMessage) error {
	return r.db.Create(msg).Error
}

func (r *contentRepository) GetTopicByID(id string) (*model.Topic, error) {
	var topic model.Topic
	if err := r.db.Where("id = ?", id).First(&topic).Error; err != nil {
		return nil, err
	}
	return &topic, nil
}

func (r *contentRepository) GetPostByID(id string) (*model.Post, error) {
	var post model.Post
	if err := r.db.Where("id = ?", id).First(&post).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *contentRepository) GetMessageByID(id string) (*model.PrivateMessage, error) {
	var msg model.PrivateMessage
	if err := r.db.Where("id = ?", id).First(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *contentRepository) GetRef(contentType model.ContentType, pk string) (*model.Ref, error) {
	switch contentType {
	case model.TypeTopic:
		t, err := r.GetTopicByID(pk)
		if err != nil {
			return nil, err
		}
		return &model.Ref{PK: t.ID, ContentType: contentType, AuthorPK: t.AuthorPK, Title: t.Title, Body: t.Description, Status: t.Status, Feedback: t.Feedback, CreatedAt: t.CreatedAt}, nil
	case model.TypePost:
		p, err := r.GetPostByID(pk)
		if err != nil {
			return nil, err
		}
		return &model.Ref{PK: p.ID, ContentType: contentType, AuthorPK: p.AuthorPK, Body: p.Content, Status: p.Status, Feedback: p.Feedback, CreatedAt: p.CreatedAt}, nil
	case model.TypePrivateMessage:
		m, err := r.GetMessageByID(pk)
		if err != nil {
			return nil, err
		}
		return &model.Ref{PK: m.ID, ContentType: contentType, AuthorPK: m.SenderPK, Body: m.Content, Status: m.Status, Feedback: m.Feedback, CreatedAt: m.CreatedAt}, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// modelFor 内容类型到 gorm 模型的映射
func modelFor(contentType model.ContentType) interface{} {
	switch contentType {
	case model.TypeTopic:
		return &model.Topic{}
	case model.TypePost:
		return &model.Post{}
	default:
		return &model.PrivateMessage{}
	}
}

func (r *contentRepository) TransitionStatus(tx *gorm.DB, contentType model.ContentType, pk string, from, to model.Status, feedback string) error {
	if !model.ValidTransition(from, to) {
		return ErrInvalidTransition
	}
	db := tx
	if db == nil {
		db = r.db
	}

	updates := map[string]interface{}{"status": to}
	if feedback != "" {
		updates["feedback"] = feedback
	}

	result := db.Model(modelFor(contentType)).
		Where("id = ? AND status = ?", pk, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	// 行未命中说明并发下状态已被别人改走，视为非法转移
	if result.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *contentRepository) ApplyEditedBody(tx *gorm.DB, contentType model.ContentType, pk string, title, body *string) error {
	db := tx
	if db == nil {
		db = r.db
	}

	updates := map[string]interface{}{}
	if body != nil {
		switch contentType {
		case model.TypeTopic:
			updates["description"] = *body
		default:
			updates["content"] = *body
		}
	}
	if title != nil && contentType == model.TypeTopic {
		updates["title"] = *title
	}
	if len(updates) == 0 {
		return nil
	}
	return db.Model(modelFor(contentType)).Where("id = ?", pk).Updates(updates).Error
}

func (r *contentRepository) GetTopics(status model.Status, offset, limit int) ([]model.Topic, int64, error) {
	var topics []model.Topic
	var total int64

	query := r.db.Model(&model.Topic{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&topics).Error; err != nil {
		return nil, 0, err
	}
	return topics, total, nil
}

func (r *contentRepository) GetPostsByTopic(topicPK string, status model.Status, offset, limit int) ([]model.Post, int64, error) {
	var posts []model.Post
	var total int64

	query := r.db.Model(&model.Post{}).Where("topic_pk = ?", topicPK)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at asc").Offset(offset).Limit(limit).Find(&posts).Error; err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (r *contentRepository) GetMessagesByConversation(conversationID string, offset, limit int) ([]model.PrivateMessage, int64, error) {
	var msgs []model.PrivateMessage
	var total int64

	query := r.db.Model(&model.PrivateMessage{}).
		Where("conversation_id = ? AND status = ?", conversationID, model.StatusApproved)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at asc").Offset(offset).Limit(limit).Find(&msgs).Error; err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}
