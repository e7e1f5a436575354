package service

import (
	"context"
	"errors"
	"strings"

	contentModel "robot_overlord_api/internal/domain/content/model"
	contentRepo "robot_overlord_api/internal/domain/content/repository"
	loyaltyModel "robot_overlord_api/internal/domain/loyalty/model"
	loyaltyService "robot_overlord_api/internal/domain/loyalty/service"
	queueModel "robot_overlord_api/internal/domain/queue/model"
	queueService "robot_overlord_api/internal/domain/queue/service"
	sanctionService "robot_overlord_api/internal/domain/sanction/service"
	"robot_overlord_api/internal/pkg/oracle"
	"robot_overlord_api/pkg/logger"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrUserSanctioned 用户处于阻断型制裁下
	ErrUserSanctioned = errors.New("user is under an active sanction")
	// ErrTopicPrivilege 声誉不足，无开题资格
	ErrTopicPrivilege = errors.New("insufficient loyalty standing to create topics")
	// ErrEmptyContent 清洗后内容为空
	ErrEmptyContent = errors.New("content is empty after sanitization")
	// ErrTopicNotOpen 目标辩题不可回帖
	ErrTopicNotOpen = errors.New("topic is not open for posts")
)

// sanitizePolicy 剥离全部 HTML，只保留纯文本
var sanitizePolicy = bluemonday.StrictPolicy()

// SubmitResult 提交结果：内容标识与预筛结论
type SubmitResult struct {
	ContentPK   string                   `json:"contentPk"`
	ContentType contentModel.ContentType `json:"contentType"`
	Status      contentModel.Status      `json:"status"`
	Feedback    string                   `json:"feedback,omitempty"`
	QueueType   queueModel.QueueType     `json:"queueType,omitempty"`
}

// SubmissionService 内容提交流水线入口：清洗、制裁门禁、ToS 预筛、入队
type SubmissionService interface {
	SubmitTopic(ctx context.Context, authorPK, title, description string) (*SubmitResult, error)
	SubmitPost(ctx context.Context, authorPK, topicPK string, parentPK *string, body string) (*SubmitResult, error)
	SubmitMessage(ctx context.Context, senderPK, recipientPK, body string) (*SubmitResult, error)
}

type submissionService struct {
	db       *gorm.DB
	contents contentRepo.ContentRepository
	queue    queueService.QueueService
	loyalty  loyaltyService.LoyaltyService
	sanction sanctionService.SanctionService
	screener *Screener
}

// NewSubmissionService 创建提交服务
func NewSubmissionService(
	db *gorm.DB,
	contents contentRepo.ContentRepository,
	queue queueService.QueueService,
	loyalty loyaltyService.LoyaltyService,
	sanction sanctionService.SanctionService,
	screener *Screener,
) SubmissionService {
	return &submissionService{
		db:       db,
		contents: contents,
		queue:    queue,
		loyalty:  loyalty,
		sanction: sanction,
		screener: screener,
	}
}

func sanitize(s string) string {
	return strings.TrimSpace(sanitizePolicy.Sanitize(s))
}

// gate 提交前的制裁门禁
func (s *submissionService) gate(userPK string) error {
	ok, active, err := s.sanction.CanSubmit(userPK)
	if err != nil {
		return err
	}
	if !ok {
		logger.Log.Info("submission blocked by sanction",
			zap.String("user_pk", userPK),
			zap.String("sanction_type", string(active.Type)),
		)
		return ErrUserSanctioned
	}
	return nil
}

// tierFor 高声誉用户获得提升档期
func (s *submissionService) tierFor(ctx context.Context, userPK string) queueModel.PriorityTier {
	elevated, err := s.loyalty.CanCreateTopic(ctx, userPK)
	if err != nil || !elevated {
		return queueModel.TierStandard
	}
	return queueModel.TierElevated
}

func (s *submissionService) SubmitTopic(ctx context.Context, authorPK, title, description string) (*SubmitResult, error) {
	if err := s.gate(authorPK); err != nil {
		return nil, err
	}

	can, err := s.loyalty.CanCreateTopic(ctx, authorPK)
	if err != nil {
		return nil, err
	}
	if !can {
		return nil, ErrTopicPrivilege
	}

	title = sanitize(title)
	description = sanitize(description)
	if title == "" || description == "" {
		return nil, ErrEmptyContent
	}

	topic := &contentModel.Topic{
		AuthorPK:    authorPK,
		Title:       title,
		Description: description,
		Status:      contentModel.StatusSubmitted,
	}
	if err := s.contents.CreateTopic(topic); err != nil {
		return nil, err
	}

	decision := s.screener.Evaluate(ctx, oracle.Input{
		Content:     description,
		Title:       title,
		ContentType: string(contentModel.TypeTopic),
	})

	return s.afterScreen(ctx, contentModel.Ref{
		PK:          topic.ID,
		ContentType: contentModel.TypeTopic,
		AuthorPK:    authorPK,
	}, decision, queueModel.QueueTopicCreation, "")
}

func (s *submissionService) SubmitPost(ctx context.Context, authorPK, topicPK string, parentPK *string, body string) (*SubmitResult, error) {
	if err := s.gate(authorPK); err != nil {
		return nil, err
	}

	topic, err := s.contents.GetTopicByID(topicPK)
	if err != nil {
		return nil, err
	}
	if topic.Status != contentModel.StatusApproved {
		return nil, ErrTopicNotOpen
	}

	body = sanitize(body)
	if body == "" {
		return nil, ErrEmptyContent
	}

	post := &contentModel.Post{
		TopicPK:  topicPK,
		AuthorPK: authorPK,
		ParentPK: parentPK,
		Content:  body,
		Status:   contentModel.StatusSubmitted,
	}
	if err := s.contents.CreatePost(post); err != nil {
		return nil, err
	}

	// 帖子的 ToS 预筛走独立队列异步执行，此处只入队
	entry, err := s.queue.Enqueue(nil, queueService.EnqueueRequest{
		QueueType:   queueModel.QueuePostTosScreening,
		ContentPK:   post.ID,
		ContentType: contentModel.TypePost,
		AuthorPK:    authorPK,
		Priority:    s.tierFor(ctx, authorPK),
	})
	if err != nil {
		return nil, err
	}

	return &SubmitResult{
		ContentPK:   post.ID,
		ContentType: contentModel.TypePost,
		Status:      post.Status,
		QueueType:   entry.QueueType,
	}, nil
}

func (s *submissionService) SubmitMessage(ctx context.Context, senderPK, recipientPK, body string) (*SubmitResult, error) {
	if err := s.gate(senderPK); err != nil {
		return nil, err
	}

	body = sanitize(body)
	if body == "" {
		return nil, ErrEmptyContent
	}

	msg := &contentModel.PrivateMessage{
		SenderPK:       senderPK,
		RecipientPK:    recipientPK,
		ConversationID: contentModel.ConversationID(senderPK, recipientPK),
		Content:        body,
		Status:         contentModel.StatusSubmitted,
	}
	if err := s.contents.CreateMessage(msg); err != nil {
		return nil, err
	}

	decision := s.screener.Evaluate(ctx, oracle.Input{
		Content:     body,
		ContentType: string(contentModel.TypePrivateMessage),
	})

	return s.afterScreen(ctx, contentModel.Ref{
		PK:          msg.ID,
		ContentType: contentModel.TypePrivateMessage,
		AuthorPK:    senderPK,
	}, decision, queueModel.QueuePrivateMessage, msg.ConversationID)
}

// afterScreen 按预筛结论落定：拒绝则终结并记账，放行则入队
func (s *submissionService) afterScreen(
	ctx context.Context,
	ref contentModel.Ref,
	decision ScreenDecision,
	queueType queueModel.QueueType,
	conversationID string,
) (*SubmitResult, error) {
	if decision.Reject {
		feedback := decision.Reasoning
		if decision.ViolationType != "" {
			feedback = decision.ViolationType + ": " + feedback
		}
		err := s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.contents.TransitionStatus(tx, ref.ContentType, ref.PK,
				contentModel.StatusSubmitted, contentModel.StatusToSViolation, feedback); err != nil {
				return err
			}
			_, err := s.loyalty.RecordModeration(tx, loyaltyService.ModerationOutcome{
				UserPK:      ref.AuthorPK,
				ContentType: ref.ContentType,
				ContentPK:   ref.PK,
				Outcome:     loyaltyModel.OutcomeToSViolation,
				Reason:      feedback,
			})
			return err
		})
		if err != nil {
			return nil, err
		}

		logger.Log.Info("submission rejected at tos screening",
			zap.String("content_pk", ref.PK),
			zap.String("content_type", string(ref.ContentType)),
			zap.String("violation_type", decision.ViolationType),
			zap.Float64("confidence", decision.Confidence),
		)
		return &SubmitResult{
			ContentPK:   ref.PK,
			ContentType: ref.ContentType,
			Status:      contentModel.StatusToSViolation,
			Feedback:    feedback,
		}, nil
	}

	// 状态转移与入队同事务：只转移不入队会让内容静默消失
	var entry *queueModel.QueueEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.contents.TransitionStatus(tx, ref.ContentType, ref.PK,
			contentModel.StatusSubmitted, contentModel.StatusQueued, ""); err != nil {
			return err
		}
		var err error
		entry, err = s.queue.Enqueue(tx, queueService.EnqueueRequest{
			QueueType:      queueType,
			ContentPK:      ref.PK,
			ContentType:    ref.ContentType,
			AuthorPK:       ref.AuthorPK,
			ConversationID: conversationID,
			Priority:       s.tierFor(ctx, ref.AuthorPK),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return &SubmitResult{
		ContentPK:   ref.PK,
		ContentType: ref.ContentType,
		Status:      contentModel.StatusQueued,
		QueueType:   entry.QueueType,
	}, nil
}
