package service

import (
	"context"
	"errors"
	"testing"
	"time"

	contentModel "robot_overlord_api/internal/domain/content/model"
	loyaltyModel "robot_overlord_api/internal/domain/loyalty/model"
	loyaltyService "robot_overlord_api/internal/domain/loyalty/service"
	queueModel "robot_overlord_api/internal/domain/queue/model"
	queueService "robot_overlord_api/internal/domain/queue/service"
	sanctionModel "robot_overlord_api/internal/domain/sanction/model"
	sanctionService "robot_overlord_api/internal/domain/sanction/service"
	"robot_overlord_api/internal/pkg/config"
	"robot_overlord_api/internal/pkg/oracle"
	baseModel "robot_overlord_api/pkg/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func init() {
	config.GlobalConfig = config.Config{
		Moderation: config.ModerationConfig{
			ScreenerRejectConfidence: 0.8,
		},
		Loyalty: config.LoyaltyConfig{TopicCreatePercentile: 0.9},
	}
}

// newMockDB 返回由 sqlmock 驱动的 gorm 连接，用于断言事务边界
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mockDB, err := sqlmock.New()
	assert.NoError(t, err)
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	assert.NoError(t, err)
	return gdb, mockDB
}

// MockOracleClient 审裁客户端 Mock
type MockOracleClient struct {
	mock.Mock
}

func (m *MockOracleClient) Screen(ctx context.Context, in oracle.Input) (oracle.ScreenResult, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(oracle.ScreenResult), args.Error(1)
}

func (m *MockOracleClient) Judge(ctx context.Context, in oracle.Input) (oracle.Verdict, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(oracle.Verdict), args.Error(1)
}

// MockContentRepository 内容仓库 Mock
type MockContentRepository struct {
	mock.Mock
}

func (m *MockContentRepository) CreateTopic(topic *contentModel.Topic) error {
	args := m.Called(topic)
	if topic.ID == "" {
		topic.ID = uuid.New().String()
	}
	return args.Error(0)
}

func (m *MockContentRepository) CreatePost(post *contentModel.Post) error {
	args := m.Called(post)
	if post.ID == "" {
		post.ID = uuid.New().String()
	}
	return args.Error(0)
}

func (m *MockContentRepository) CreateMessage(msg *contentModel.PrivateMessage) error {
	args := m.Called(msg)
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	return args.Error(0)
}

func (m *MockContentRepository) GetTopicByID(id string) (*contentModel.Topic, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*contentModel.Topic), args.Error(1)
}

func (m *MockContentRepository) GetPostByID(id string) (*contentModel.Post, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*contentModel.Post), args.Error(1)
}

func (m *MockContentRepository) GetMessageByID(id string) (*contentModel.PrivateMessage, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*contentModel.PrivateMessage), args.Error(1)
}

func (m *MockContentRepository) GetRef(contentType contentModel.ContentType, pk string) (*contentModel.Ref, error) {
	args := m.Called(contentType, pk)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*contentModel.Ref), args.Error(1)
}

func (m *MockContentRepository) TransitionStatus(tx *gorm.DB, contentType contentModel.ContentType, pk string, from, to contentModel.Status, feedback string) error {
	args := m.Called(contentType, pk, from, to, feedback)
	return args.Error(0)
}

func (m *MockContentRepository) ApplyEditedBody(tx *gorm.DB, contentType contentModel.ContentType, pk string, title, body *string) error {
	args := m.Called(contentType, pk, title, body)
	return args.Error(0)
}

func (m *MockContentRepository) GetTopics(status contentModel.Status, offset, limit int) ([]contentModel.Topic, int64, error) {
	args := m.Called(status, offset, limit)
	return args.Get(0).([]contentModel.Topic), args.Get(1).(int64), args.Error(2)
}

func (m *MockContentRepository) GetPostsByTopic(topicPK string, status contentModel.Status, offset, limit int) ([]contentModel.Post, int64, error) {
	args := m.Called(topicPK, status, offset, limit)
	return args.Get(0).([]contentModel.Post), args.Get(1).(int64), args.Error(2)
}

func (m *MockContentRepository) GetMessagesByConversation(conversationID string, offset, limit int) ([]contentModel.PrivateMessage, int64, error) {
	args := m.Called(conversationID, offset, limit)
	return args.Get(0).([]contentModel.PrivateMessage), args.Get(1).(int64), args.Error(2)
}

// MockQueueService 队列服务 Mock
type MockQueueService struct {
	mock.Mock
}

func (m *MockQueueService) Enqueue(tx *gorm.DB, req queueService.EnqueueRequest) (*queueModel.QueueEntry, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*queueModel.QueueEntry), args.Error(1)
}

func (m *MockQueueService) Position(queueType queueModel.QueueType, contentPK string) (*queueModel.PositionInfo, error) {
	args := m.Called(queueType, contentPK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*queueModel.PositionInfo), args.Error(1)
}

func (m *MockQueueService) Claim(queueType queueModel.QueueType, workerID string) (*queueModel.QueueEntry, error) {
	args := m.Called(queueType, workerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*queueModel.QueueEntry), args.Error(1)
}

func (m *MockQueueService) Complete(tx *gorm.DB, entryID string) error {
	args := m.Called(entryID)
	return args.Error(0)
}

func (m *MockQueueService) Release(entryID string) error {
	args := m.Called(entryID)
	return args.Error(0)
}

func (m *MockQueueService) ReleaseStale(queueType queueModel.QueueType) (int, error) {
	args := m.Called(queueType)
	return args.Int(0), args.Error(1)
}

func (m *MockQueueService) Overview(ctx context.Context) (*queueModel.Overview, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*queueModel.Overview), args.Error(1)
}

// MockLoyaltyService 账本服务 Mock
type MockLoyaltyService struct {
	mock.Mock
}

func (m *MockLoyaltyService) RecordModeration(tx *gorm.DB, in loyaltyService.ModerationOutcome) (*loyaltyModel.ModerationEvent, error) {
	args := m.Called(in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyaltyModel.ModerationEvent), args.Error(1)
}

func (m *MockLoyaltyService) RecordAppealOutcome(tx *gorm.DB, in loyaltyService.ModerationOutcome) (*loyaltyModel.ModerationEvent, error) {
	args := m.Called(in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyaltyModel.ModerationEvent), args.Error(1)
}

func (m *MockLoyaltyService) ManualAdjust(userPK, adminPK string, adjustment int, reason, notes string) (*loyaltyModel.ManualAdjustment, error) {
	args := m.Called(userPK, adminPK, adjustment, reason, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyaltyModel.ManualAdjustment), args.Error(1)
}

func (m *MockLoyaltyService) GetScore(userPK string) (*loyaltyModel.LoyaltyScore, error) {
	args := m.Called(userPK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyaltyModel.LoyaltyScore), args.Error(1)
}

func (m *MockLoyaltyService) GetProfile(ctx context.Context, userPK string) (*loyaltyModel.Profile, error) {
	args := m.Called(ctx, userPK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyaltyModel.Profile), args.Error(1)
}

func (m *MockLoyaltyService) GetEvents(userPK string, page, pageSize int) ([]loyaltyModel.ModerationEvent, int64, error) {
	args := m.Called(userPK, page, pageSize)
	return args.Get(0).([]loyaltyModel.ModerationEvent), args.Get(1).(int64), args.Error(2)
}

func (m *MockLoyaltyService) Rebuild(userPK string) (*loyaltyModel.LoyaltyScore, error) {
	args := m.Called(userPK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyaltyModel.LoyaltyScore), args.Error(1)
}

func (m *MockLoyaltyService) Verify(userPK string) error {
	args := m.Called(userPK)
	return args.Error(0)
}

func (m *MockLoyaltyService) RefreshRanking(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockLoyaltyService) Leaderboard(ctx context.Context, offset, limit int) ([]loyaltyModel.LeaderboardEntry, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).([]loyaltyModel.LeaderboardEntry), args.Error(1)
}

func (m *MockLoyaltyService) CanCreateTopic(ctx context.Context, userPK string) (bool, error) {
	args := m.Called(ctx, userPK)
	return args.Bool(0), args.Error(1)
}

// MockSanctionService 制裁服务 Mock
type MockSanctionService struct {
	mock.Mock
}

func (m *MockSanctionService) Apply(req sanctionService.ApplyRequest) (*sanctionModel.Sanction, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sanctionModel.Sanction), args.Error(1)
}

func (m *MockSanctionService) GetByID(id string) (*sanctionModel.Sanction, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sanctionModel.Sanction), args.Error(1)
}

func (m *MockSanctionService) Lift(tx *gorm.DB, id, liftedBy string) error {
	args := m.Called(id, liftedBy)
	return args.Error(0)
}

func (m *MockSanctionService) ListByUser(userPK string, page, pageSize int) ([]sanctionModel.Sanction, int64, error) {
	args := m.Called(userPK, page, pageSize)
	return args.Get(0).([]sanctionModel.Sanction), args.Get(1).(int64), args.Error(2)
}

func (m *MockSanctionService) CanSubmit(userPK string) (bool, *sanctionModel.Sanction, error) {
	args := m.Called(userPK)
	if args.Get(1) == nil {
		return args.Bool(0), nil, args.Error(2)
	}
	return args.Bool(0), args.Get(1).(*sanctionModel.Sanction), args.Error(2)
}

func (m *MockSanctionService) ExpireSweep() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func screenResult(approved bool, violationType string, confidence float64) oracle.ScreenResult {
	return oracle.ScreenResult{
		Approved:      approved,
		ViolationType: violationType,
		Reasoning:     "test reasoning",
		Confidence:    confidence,
	}
}

func TestScreenerEvaluate(t *testing.T) {
	t.Run("High confidence violation is rejected", func(t *testing.T) {
		client := new(MockOracleClient)
		client.On("Screen", mock.Anything, mock.Anything).
			Return(screenResult(false, "doxxing", 0.95), nil)

		decision := NewScreener(client).Evaluate(context.Background(), oracle.Input{Content: "leaked home address"})
		assert.True(t, decision.Reject)
		assert.Equal(t, "doxxing", decision.ViolationType)
		assert.False(t, decision.Deferred)
	})

	t.Run("Low confidence suspicion passes through deferred", func(t *testing.T) {
		client := new(MockOracleClient)
		client.On("Screen", mock.Anything, mock.Anything).
			Return(screenResult(false, "harassment", 0.5), nil)

		decision := NewScreener(client).Evaluate(context.Background(), oracle.Input{Content: "borderline"})
		assert.False(t, decision.Reject)
		assert.True(t, decision.Deferred)
	})

	t.Run("Confidence exactly at the cutoff rejects", func(t *testing.T) {
		client := new(MockOracleClient)
		client.On("Screen", mock.Anything, mock.Anything).
			Return(screenResult(false, "threats", 0.8), nil)

		decision := NewScreener(client).Evaluate(context.Background(), oracle.Input{Content: "threat"})
		assert.True(t, decision.Reject)
	})

	t.Run("Clean content passes without deferral", func(t *testing.T) {
		client := new(MockOracleClient)
		client.On("Screen", mock.Anything, mock.Anything).
			Return(screenResult(true, "", 0.99), nil)

		decision := NewScreener(client).Evaluate(context.Background(), oracle.Input{Content: "civil argument"})
		assert.False(t, decision.Reject)
		assert.False(t, decision.Deferred)
	})

	t.Run("Oracle failure fails open", func(t *testing.T) {
		client := new(MockOracleClient)
		client.On("Screen", mock.Anything, mock.Anything).
			Return(oracle.ScreenResult{}, errors.New("upstream timeout"))

		decision := NewScreener(client).Evaluate(context.Background(), oracle.Input{Content: "anything"})
		assert.False(t, decision.Reject)
		assert.True(t, decision.Deferred)
	})
}

func TestVerdictMapping(t *testing.T) {
	t.Run("Known decisions map to statuses", func(t *testing.T) {
		status, outcome, err := verdictMapping(oracle.DecisionApproved)
		assert.NoError(t, err)
		assert.Equal(t, contentModel.StatusApproved, status)
		assert.Equal(t, loyaltyModel.OutcomeApproved, outcome)

		status, outcome, err = verdictMapping(oracle.DecisionWarning)
		assert.NoError(t, err)
		assert.Equal(t, contentModel.StatusApproved, status, "warning still publishes the content")
		assert.Equal(t, loyaltyModel.OutcomeWarning, outcome)

		status, _, err = verdictMapping(oracle.DecisionRejected)
		assert.NoError(t, err)
		assert.Equal(t, contentModel.StatusRejected, status)

		status, _, err = verdictMapping(oracle.DecisionToSViolation)
		assert.NoError(t, err)
		assert.Equal(t, contentModel.StatusToSViolation, status)
	})

	t.Run("Unknown decision is an error", func(t *testing.T) {
		_, _, err := verdictMapping(oracle.Decision("escalate"))
		assert.ErrorIs(t, err, ErrUnknownDecision)
	})
}

type submissionFixture struct {
	db       *gorm.DB
	dbMock   sqlmock.Sqlmock
	contents *MockContentRepository
	queue    *MockQueueService
	loyalty  *MockLoyaltyService
	sanction *MockSanctionService
	oracle   *MockOracleClient
	svc      SubmissionService
}

func newSubmissionFixture(t *testing.T) *submissionFixture {
	t.Helper()
	db, dbMock := newMockDB(t)
	f := &submissionFixture{
		db:       db,
		dbMock:   dbMock,
		contents: new(MockContentRepository),
		queue:    new(MockQueueService),
		loyalty:  new(MockLoyaltyService),
		sanction: new(MockSanctionService),
		oracle:   new(MockOracleClient),
	}
	f.svc = NewSubmissionService(db, f.contents, f.queue, f.loyalty, f.sanction, NewScreener(f.oracle))
	return f
}

func queueEntry(queueType queueModel.QueueType) *queueModel.QueueEntry {
	return &queueModel.QueueEntry{
		BaseModel:      baseModel.BaseModel{ID: uuid.New().String()},
		QueueType:      queueType,
		Status:         queueModel.EntryPending,
		EnteredQueueAt: time.Now(),
	}
}

func TestSubmitMessage(t *testing.T) {
	t.Run("Doxxing message never reaches the moderation queue", func(t *testing.T) {
		f := newSubmissionFixture(t)
		sender := uuid.New().String()

		f.sanction.On("CanSubmit", sender).Return(true, nil, nil)
		f.contents.On("CreateMessage", mock.Anything).Return(nil)
		f.oracle.On("Screen", mock.Anything, mock.Anything).
			Return(screenResult(false, "doxxing", 0.97), nil)

		f.dbMock.ExpectBegin()
		f.contents.On("TransitionStatus", contentModel.TypePrivateMessage, mock.Anything,
			contentModel.StatusSubmitted, contentModel.StatusToSViolation, mock.Anything).Return(nil)
		f.loyalty.On("RecordModeration", mock.MatchedBy(func(in loyaltyService.ModerationOutcome) bool {
			return in.Outcome == loyaltyModel.OutcomeToSViolation && in.UserPK == sender
		})).Return(&loyaltyModel.ModerationEvent{}, nil)
		f.dbMock.ExpectCommit()

		result, err := f.svc.SubmitMessage(context.Background(), sender, uuid.New().String(), "here is their home address")
		assert.NoError(t, err)
		assert.Equal(t, contentModel.StatusToSViolation, result.Status)
		assert.Contains(t, result.Feedback, "doxxing")

		f.queue.AssertNotCalled(t, "Enqueue", mock.Anything)
		assert.NoError(t, f.dbMock.ExpectationsWereMet())
	})

	t.Run("Clean message is queued for moderation", func(t *testing.T) {
		f := newSubmissionFixture(t)
		sender := uuid.New().String()

		f.sanction.On("CanSubmit", sender).Return(true, nil, nil)
		f.contents.On("CreateMessage", mock.Anything).Return(nil)
		f.oracle.On("Screen", mock.Anything, mock.Anything).
			Return(screenResult(true, "", 0.9), nil)
		f.dbMock.ExpectBegin()
		f.contents.On("TransitionStatus", contentModel.TypePrivateMessage, mock.Anything,
			contentModel.StatusSubmitted, contentModel.StatusQueued, "").Return(nil)
		f.loyalty.On("CanCreateTopic", mock.Anything, sender).Return(false, nil)
		f.queue.On("Enqueue", mock.MatchedBy(func(req queueService.EnqueueRequest) bool {
			return req.QueueType == queueModel.QueuePrivateMessage && req.ConversationID != ""
		})).Return(queueEntry(queueModel.QueuePrivateMessage), nil)
		f.dbMock.ExpectCommit()

		result, err := f.svc.SubmitMessage(context.Background(), sender, uuid.New().String(), "I disagree with your position")
		assert.NoError(t, err)
		assert.Equal(t, contentModel.StatusQueued, result.Status)
		assert.Equal(t, queueModel.QueuePrivateMessage, result.QueueType)
		f.queue.AssertExpectations(t)
		assert.NoError(t, f.dbMock.ExpectationsWereMet())
	})

	t.Run("Enqueue failure rolls back the queued transition", func(t *testing.T) {
		f := newSubmissionFixture(t)
		sender := uuid.New().String()

		f.sanction.On("CanSubmit", sender).Return(true, nil, nil)
		f.contents.On("CreateMessage", mock.Anything).Return(nil)
		f.oracle.On("Screen", mock.Anything, mock.Anything).
			Return(screenResult(true, "", 0.9), nil)

		f.dbMock.ExpectBegin()
		f.contents.On("TransitionStatus", contentModel.TypePrivateMessage, mock.Anything,
			contentModel.StatusSubmitted, contentModel.StatusQueued, "").Return(nil)
		f.loyalty.On("CanCreateTopic", mock.Anything, sender).Return(false, nil)
		f.queue.On("Enqueue", mock.Anything).Return(nil, errors.New("queue insert failed"))
		f.dbMock.ExpectRollback()

		_, err := f.svc.SubmitMessage(context.Background(), sender, uuid.New().String(), "I disagree with your position")
		assert.Error(t, err)
		assert.NoError(t, f.dbMock.ExpectationsWereMet())
	})

	t.Run("Sanctioned sender is blocked before any write", func(t *testing.T) {
		f := newSubmissionFixture(t)
		sender := uuid.New().String()

		f.sanction.On("CanSubmit", sender).Return(false, &sanctionModel.Sanction{
			Type: sanctionModel.SanctionPostingFreeze,
		}, nil)

		_, err := f.svc.SubmitMessage(context.Background(), sender, uuid.New().String(), "hello")
		assert.ErrorIs(t, err, ErrUserSanctioned)
		f.contents.AssertNotCalled(t, "CreateMessage", mock.Anything)
	})

	t.Run("Markup-only body is rejected as empty", func(t *testing.T) {
		f := newSubmissionFixture(t)
		sender := uuid.New().String()

		f.sanction.On("CanSubmit", sender).Return(true, nil, nil)

		_, err := f.svc.SubmitMessage(context.Background(), sender, uuid.New().String(), "  <b> </b>  ")
		assert.ErrorIs(t, err, ErrEmptyContent)
	})
}

func TestSubmitTopic(t *testing.T) {
	t.Run("Low standing author cannot open topics", func(t *testing.T) {
		f := newSubmissionFixture(t)
		author := uuid.New().String()

		f.sanction.On("CanSubmit", author).Return(true, nil, nil)
		f.loyalty.On("CanCreateTopic", mock.Anything, author).Return(false, nil)

		_, err := f.svc.SubmitTopic(context.Background(), author, "Should we?", "A debate about things")
		assert.ErrorIs(t, err, ErrTopicPrivilege)
		f.contents.AssertNotCalled(t, "CreateTopic", mock.Anything)
	})

	t.Run("Qualified author gets topic screened and queued", func(t *testing.T) {
		f := newSubmissionFixture(t)
		author := uuid.New().String()

		f.sanction.On("CanSubmit", author).Return(true, nil, nil)
		f.loyalty.On("CanCreateTopic", mock.Anything, author).Return(true, nil)
		f.contents.On("CreateTopic", mock.Anything).Return(nil)
		f.oracle.On("Screen", mock.Anything, mock.Anything).
			Return(screenResult(true, "", 0.95), nil)
		f.dbMock.ExpectBegin()
		f.contents.On("TransitionStatus", contentModel.TypeTopic, mock.Anything,
			contentModel.StatusSubmitted, contentModel.StatusQueued, "").Return(nil)
		f.queue.On("Enqueue", mock.MatchedBy(func(req queueService.EnqueueRequest) bool {
			return req.QueueType == queueModel.QueueTopicCreation && req.Priority == queueModel.TierElevated
		})).Return(queueEntry(queueModel.QueueTopicCreation), nil)
		f.dbMock.ExpectCommit()

		result, err := f.svc.SubmitTopic(context.Background(), author, "Universal basic income", "Is UBI viable at scale?")
		assert.NoError(t, err)
		assert.Equal(t, contentModel.StatusQueued, result.Status)
		f.queue.AssertExpectations(t)
	})
}

func TestSubmitPost(t *testing.T) {
	t.Run("Post skips inline screening and enters the screening queue", func(t *testing.T) {
		f := newSubmissionFixture(t)
		author := uuid.New().String()
		topicPK := uuid.New().String()

		f.sanction.On("CanSubmit", author).Return(true, nil, nil)
		f.contents.On("GetTopicByID", topicPK).Return(&contentModel.Topic{
			BaseModel: baseModel.BaseModel{ID: topicPK},
			Status:    contentModel.StatusApproved,
		}, nil)
		f.contents.On("CreatePost", mock.Anything).Return(nil)
		f.loyalty.On("CanCreateTopic", mock.Anything, author).Return(false, nil)
		f.queue.On("Enqueue", mock.MatchedBy(func(req queueService.EnqueueRequest) bool {
			return req.QueueType == queueModel.QueuePostTosScreening
		})).Return(queueEntry(queueModel.QueuePostTosScreening), nil)

		result, err := f.svc.SubmitPost(context.Background(), author, topicPK, nil, "A substantive counterargument")
		assert.NoError(t, err)
		assert.Equal(t, contentModel.StatusSubmitted, result.Status)
		assert.Equal(t, queueModel.QueuePostTosScreening, result.QueueType)

		f.oracle.AssertNotCalled(t, "Screen", mock.Anything, mock.Anything)
	})

	t.Run("Posting to an unapproved topic fails", func(t *testing.T) {
		f := newSubmissionFixture(t)
		author := uuid.New().String()
		topicPK := uuid.New().String()

		f.sanction.On("CanSubmit", author).Return(true, nil, nil)
		f.contents.On("GetTopicByID", topicPK).Return(&contentModel.Topic{
			BaseModel: baseModel.BaseModel{ID: topicPK},
			Status:    contentModel.StatusQueued,
		}, nil)

		_, err := f.svc.SubmitPost(context.Background(), author, topicPK, nil, "too early")
		assert.ErrorIs(t, err, ErrTopicNotOpen)
		f.contents.AssertNotCalled(t, "CreatePost", mock.Anything)
	})
}

type stageFixture struct {
	db       *gorm.DB
	dbMock   sqlmock.Sqlmock
	contents *MockContentRepository
	queue    *MockQueueService
	loyalty  *MockLoyaltyService
	oracle   *MockOracleClient
	svc      StageService
}

func newStageFixture(t *testing.T) *stageFixture {
	t.Helper()
	db, dbMock := newMockDB(t)
	f := &stageFixture{
		db:       db,
		dbMock:   dbMock,
		contents: new(MockContentRepository),
		queue:    new(MockQueueService),
		loyalty:  new(MockLoyaltyService),
		oracle:   new(MockOracleClient),
	}
	f.svc = NewStageService(db, f.contents, f.queue, f.loyalty, NewScreener(f.oracle), f.oracle)
	return f
}

func TestModerateNext(t *testing.T) {
	t.Run("Approved verdict settles entry atomically", func(t *testing.T) {
		f := newStageFixture(t)
		entry := queueEntry(queueModel.QueuePostModeration)
		entry.ContentType = contentModel.TypePost
		entry.ContentPK = uuid.New().String()
		author := uuid.New().String()

		f.queue.On("Claim", queueModel.QueuePostModeration, "worker-1").Return(entry, nil)
		f.contents.On("GetRef", contentModel.TypePost, entry.ContentPK).Return(&contentModel.Ref{
			PK:          entry.ContentPK,
			ContentType: contentModel.TypePost,
			AuthorPK:    author,
			Body:        "argument body",
			Status:      contentModel.StatusQueued,
		}, nil)
		f.oracle.On("Judge", mock.Anything, mock.Anything).Return(oracle.Verdict{
			Decision: oracle.DecisionApproved,
			Feedback: "well argued",
		}, nil)

		f.dbMock.ExpectBegin()
		f.contents.On("TransitionStatus", contentModel.TypePost, entry.ContentPK,
			contentModel.StatusQueued, contentModel.StatusApproved, "well argued").Return(nil)
		f.loyalty.On("RecordModeration", mock.MatchedBy(func(in loyaltyService.ModerationOutcome) bool {
			return in.Outcome == loyaltyModel.OutcomeApproved && in.UserPK == author
		})).Return(&loyaltyModel.ModerationEvent{}, nil)
		f.queue.On("Complete", entry.ID).Return(nil)
		f.dbMock.ExpectCommit()

		processed, err := f.svc.ModerateNext(context.Background(), queueModel.QueuePostModeration, "worker-1")
		assert.NoError(t, err)
		assert.True(t, processed)
		f.queue.AssertNotCalled(t, "Release", mock.Anything)
		assert.NoError(t, f.dbMock.ExpectationsWereMet())
	})

	t.Run("Oracle failure releases the claim", func(t *testing.T) {
		f := newStageFixture(t)
		entry := queueEntry(queueModel.QueuePostModeration)
		entry.ContentType = contentModel.TypePost
		entry.ContentPK = uuid.New().String()

		f.queue.On("Claim", queueModel.QueuePostModeration, "worker-1").Return(entry, nil)
		f.contents.On("GetRef", contentModel.TypePost, entry.ContentPK).Return(&contentModel.Ref{
			PK:          entry.ContentPK,
			ContentType: contentModel.TypePost,
			AuthorPK:    uuid.New().String(),
			Status:      contentModel.StatusQueued,
		}, nil)
		f.oracle.On("Judge", mock.Anything, mock.Anything).
			Return(oracle.Verdict{}, errors.New("oracle unavailable"))
		f.queue.On("Release", entry.ID).Return(nil)

		processed, err := f.svc.ModerateNext(context.Background(), queueModel.QueuePostModeration, "worker-1")
		assert.Error(t, err)
		assert.False(t, processed)
		f.queue.AssertCalled(t, "Release", entry.ID)
		f.queue.AssertNotCalled(t, "Complete", mock.Anything)
	})

	t.Run("Empty queue is not an error", func(t *testing.T) {
		f := newStageFixture(t)
		f.queue.On("Claim", queueModel.QueuePostModeration, "worker-1").
			Return(nil, queueService.ErrNothingToClaim)

		processed, err := f.svc.ModerateNext(context.Background(), queueModel.QueuePostModeration, "worker-1")
		assert.NoError(t, err)
		assert.False(t, processed)
	})
}

func TestScreenNext(t *testing.T) {
	t.Run("Violating post is terminated without entering moderation", func(t *testing.T) {
		f := newStageFixture(t)
		entry := queueEntry(queueModel.QueuePostTosScreening)
		entry.ContentType = contentModel.TypePost
		entry.ContentPK = uuid.New().String()
		author := uuid.New().String()

		f.queue.On("Claim", queueModel.QueuePostTosScreening, "worker-1").Return(entry, nil)
		f.contents.On("GetRef", contentModel.TypePost, entry.ContentPK).Return(&contentModel.Ref{
			PK:          entry.ContentPK,
			ContentType: contentModel.TypePost,
			AuthorPK:    author,
			Body:        "their real name is",
			Status:      contentModel.StatusSubmitted,
		}, nil)
		f.oracle.On("Screen", mock.Anything, mock.Anything).
			Return(screenResult(false, "doxxing", 0.92), nil)

		f.dbMock.ExpectBegin()
		f.contents.On("TransitionStatus", contentModel.TypePost, entry.ContentPK,
			contentModel.StatusSubmitted, contentModel.StatusToSViolation, mock.Anything).Return(nil)
		f.loyalty.On("RecordModeration", mock.MatchedBy(func(in loyaltyService.ModerationOutcome) bool {
			return in.Outcome == loyaltyModel.OutcomeToSViolation
		})).Return(&loyaltyModel.ModerationEvent{}, nil)
		f.queue.On("Complete", entry.ID).Return(nil)
		f.dbMock.ExpectCommit()

		processed, err := f.svc.ScreenNext(context.Background(), "worker-1")
		assert.NoError(t, err)
		assert.True(t, processed)
		f.queue.AssertNotCalled(t, "Enqueue", mock.Anything)
		assert.NoError(t, f.dbMock.ExpectationsWereMet())
	})

	t.Run("Clean post advances to the moderation queue", func(t *testing.T) {
		f := newStageFixture(t)
		entry := queueEntry(queueModel.QueuePostTosScreening)
		entry.ContentType = contentModel.TypePost
		entry.ContentPK = uuid.New().String()
		entry.Priority = queueModel.TierElevated
		author := uuid.New().String()

		f.queue.On("Claim", queueModel.QueuePostTosScreening, "worker-1").Return(entry, nil)
		f.contents.On("GetRef", contentModel.TypePost, entry.ContentPK).Return(&contentModel.Ref{
			PK:          entry.ContentPK,
			ContentType: contentModel.TypePost,
			AuthorPK:    author,
			Body:        "measured take",
			Status:      contentModel.StatusSubmitted,
		}, nil)
		f.oracle.On("Screen", mock.Anything, mock.Anything).
			Return(screenResult(true, "", 0.9), nil)

		f.dbMock.ExpectBegin()
		f.contents.On("TransitionStatus", contentModel.TypePost, entry.ContentPK,
			contentModel.StatusSubmitted, contentModel.StatusQueued, "").Return(nil)
		f.queue.On("Enqueue", mock.MatchedBy(func(req queueService.EnqueueRequest) bool {
			return req.QueueType == queueModel.QueuePostModeration && req.Priority == queueModel.TierElevated
		})).Return(queueEntry(queueModel.QueuePostModeration), nil)
		f.queue.On("Complete", entry.ID).Return(nil)
		f.dbMock.ExpectCommit()

		processed, err := f.svc.ScreenNext(context.Background(), "worker-1")
		assert.NoError(t, err)
		assert.True(t, processed)
		f.queue.AssertExpectations(t)
		assert.NoError(t, f.dbMock.ExpectationsWereMet())
	})

	t.Run("Moderation enqueue failure rolls back and releases the entry", func(t *testing.T) {
		f := newStageFixture(t)
		entry := queueEntry(queueModel.QueuePostTosScreening)
		entry.ContentType = contentModel.TypePost
		entry.ContentPK = uuid.New().String()

		f.queue.On("Claim", queueModel.QueuePostTosScreening, "worker-1").Return(entry, nil)
		f.contents.On("GetRef", contentModel.TypePost, entry.ContentPK).Return(&contentModel.Ref{
			PK:          entry.ContentPK,
			ContentType: contentModel.TypePost,
			AuthorPK:    uuid.New().String(),
			Body:        "measured take",
			Status:      contentModel.StatusSubmitted,
		}, nil)
		f.oracle.On("Screen", mock.Anything, mock.Anything).
			Return(screenResult(true, "", 0.9), nil)

		f.dbMock.ExpectBegin()
		f.contents.On("TransitionStatus", contentModel.TypePost, entry.ContentPK,
			contentModel.StatusSubmitted, contentModel.StatusQueued, "").Return(nil)
		f.queue.On("Enqueue", mock.Anything).Return(nil, errors.New("queue insert failed"))
		f.dbMock.ExpectRollback()
		f.queue.On("Release", entry.ID).Return(nil)

		processed, err := f.svc.ScreenNext(context.Background(), "worker-1")
		assert.Error(t, err)
		assert.False(t, processed)
		f.queue.AssertNotCalled(t, "Complete", mock.Anything)
		f.queue.AssertCalled(t, "Release", entry.ID)
		assert.NoError(t, f.dbMock.ExpectationsWereMet())
	})
}
