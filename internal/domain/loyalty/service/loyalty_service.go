package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	contentModel "robot_overlord_api/internal/domain/content/model"
	"robot_overlord_api/internal/domain/loyalty/model"
	"robot_overlord_api/internal/domain/loyalty/repository"
	"robot_overlord_api/internal/pkg/config"
	"robot_overlord_api/pkg/cache"
	"robot_overlord_api/pkg/logger"
	"robot_overlord_api/pkg/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrScoreDrift 缓存分数与事件回放结果不一致
var ErrScoreDrift = errors.New("loyalty score drift detected")

// rankingKey 排行榜 ZSET 键（member=userPK, score=总分）
const rankingKey = "overlord:loyalty:rank"

const profileCacheTTL = 60 * time.Second

// ModerationOutcome 一次裁决对账本的输入
type ModerationOutcome struct {
	UserPK      string
	ContentType contentModel.ContentType
	ContentPK   string
	Outcome     model.Outcome
	ModeratorPK *string
	Reason      string
}

// LoyaltyService 声誉账本服务
type LoyaltyService interface {
	// RecordModeration 在事务内追加裁决事件并更新分数缓存
	RecordModeration(tx *gorm.DB, in ModerationOutcome) (*model.ModerationEvent, error)
	// RecordAppealOutcome 申诉结果事件（sustained / denied）
	RecordAppealOutcome(tx *gorm.DB, in ModerationOutcome) (*model.ModerationEvent, error)
	// ManualAdjust 经审计的人工调整，同时写审计记录与账本事件
	ManualAdjust(userPK, adminPK string, adjustment int, reason, notes string) (*model.ManualAdjustment, error)

	GetScore(userPK string) (*model.LoyaltyScore, error)
	GetProfile(ctx context.Context, userPK string) (*model.Profile, error)
	GetEvents(userPK string, page, pageSize int) ([]model.ModerationEvent, int64, error)

	// Rebuild 回放用户全部事件重建分数缓存，返回修正前的缓存值
	Rebuild(userPK string) (*model.LoyaltyScore, error)
	// Verify 校验缓存与回放是否一致，不一致返回 ErrScoreDrift
	Verify(userPK string) error

	// RefreshRanking 全量刷新排行榜投影
	RefreshRanking(ctx context.Context) error
	Leaderboard(ctx context.Context, offset, limit int) ([]model.LeaderboardEntry, error)
	// CanCreateTopic 是否达到开题所需的百分位门槛
	CanCreateTopic(ctx context.Context, userPK string) (bool, error)
}

type loyaltyService struct {
	repo  repository.LoyaltyRepository
	redis *redis.Client
	cache cache.CacheService
}

// NewLoyaltyService 创建声誉账本服务
func NewLoyaltyService(repo repository.LoyaltyRepository, rdb *redis.Client, cacheSvc cache.CacheService) LoyaltyService {
	return &loyaltyService{repo: repo, redis: rdb, cache: cacheSvc}
}

// contentWeight 内容类型权重：主题分量更重
func contentWeight(ct contentModel.ContentType) int {
	if ct == contentModel.TypeTopic {
		return 5
	}
	return 1
}

// outcomeDelta 裁决结果到分数增量的映射
func outcomeDelta(outcome model.Outcome, ct contentModel.ContentType) int {
	w := contentWeight(ct)
	switch outcome {
	case model.OutcomeApproved:
		return w
	case model.OutcomeRejected, model.OutcomeRemoved:
		return -w
	case model.OutcomeToSViolation:
		return -2 * w
	case model.OutcomeWarning:
		return 0
	case model.OutcomeAppealSustained:
		// 撤销原判并补偿
		return w + 2
	case model.OutcomeAppealDenied:
		return -1
	default:
		return 0
	}
}

func eventTypeFor(ct contentModel.ContentType) (model.EventType, string) {
	switch ct {
	case contentModel.TypeTopic:
		return model.EventTopicModeration, "topic_score"
	case contentModel.TypePrivateMessage:
		return model.EventMessageModeration, "message_score"
	default:
		return model.EventPostModeration, "post_score"
	}
}

func (s *loyaltyService) RecordModeration(tx *gorm.DB, in ModerationOutcome) (*model.ModerationEvent, error) {
	eventType, component := eventTypeFor(in.ContentType)
	event := &model.ModerationEvent{
		UserPK:      in.UserPK,
		EventType:   eventType,
		ContentType: in.ContentType,
		ContentPK:   in.ContentPK,
		Outcome:     in.Outcome,
		ScoreDelta:  outcomeDelta(in.Outcome, in.ContentType),
		ModeratorPK: in.ModeratorPK,
		Reason:      in.Reason,
	}

	if err := s.repo.AppendEvent(tx, event, component); err != nil {
		return nil, err
	}
	s.afterEvent(event)
	return event, nil
}

func (s *loyaltyService) RecordAppealOutcome(tx *gorm.DB, in ModerationOutcome) (*model.ModerationEvent, error) {
	event := &model.ModerationEvent{
		UserPK:      in.UserPK,
		EventType:   model.EventAppealOutcome,
		ContentType: in.ContentType,
		ContentPK:   in.ContentPK,
		Outcome:     in.Outcome,
		ScoreDelta:  outcomeDelta(in.Outcome, in.ContentType),
		ModeratorPK: in.ModeratorPK,
		Reason:      in.Reason,
	}

	if err := s.repo.AppendEvent(tx, event, "appeal_adjustments"); err != nil {
		return nil, err
	}
	s.afterEvent(event)
	return event, nil
}

func (s *loyaltyService) ManualAdjust(userPK, adminPK string, adjustment int, reason, notes string) (*model.ManualAdjustment, error) {
	var adj *model.ManualAdjustment

	err := s.repo.WithTx(func(tx *gorm.DB) error {
		event := &model.ModerationEvent{
			UserPK:      userPK,
			EventType:   model.EventManualAdjustment,
			Outcome:     model.OutcomeManual,
			ScoreDelta:  adjustment,
			ModeratorPK: &adminPK,
			Reason:      reason,
		}
		if err := s.repo.AppendEvent(tx, event, "manual_adjustments"); err != nil {
			return err
		}

		adj = &model.ManualAdjustment{
			UserPK:     userPK,
			AdminPK:    adminPK,
			Adjustment: adjustment,
			Reason:     reason,
			AdminNotes: notes,
			EventPK:    event.ID,
		}
		if err := s.repo.CreateAdjustment(tx, adj); err != nil {
			return err
		}

		s.afterEvent(event)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("manual loyalty adjustment applied",
		zap.String("user_pk", userPK),
		zap.String("admin_pk", adminPK),
		zap.Int("adjustment", adjustment),
	)
	return adj, nil
}

// afterEvent 事件落库后的旁路更新：指标、排行榜、档案缓存失效
func (s *loyaltyService) afterEvent(event *model.ModerationEvent) {
	metrics.Default.RecordLedgerEvent(string(event.EventType), string(event.Outcome))

	ctx := context.Background()
	if s.redis != nil {
		if err := s.redis.ZAdd(ctx, rankingKey, redis.Z{
			Score:  float64(event.NewScore),
			Member: event.UserPK,
		}).Err(); err != nil {
			logger.Log.Warn("ranking update failed", zap.Error(err))
		}
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, profileCacheKey(event.UserPK))
	}
}

func profileCacheKey(userPK string) string {
	return "loyalty:profile:" + userPK
}

func (s *loyaltyService) GetScore(userPK string) (*model.LoyaltyScore, error) {
	return s.repo.GetScore(userPK)
}

func (s *loyaltyService) GetProfile(ctx context.Context, userPK string) (*model.Profile, error) {
	if s.cache != nil {
		var cached model.Profile
		if err := s.cache.Get(ctx, profileCacheKey(userPK), &cached); err == nil {
			return &cached, nil
		}
	}

	score, err := s.repo.GetScore(userPK)
	if err != nil {
		return nil, err
	}

	rank, percentile, err := s.rankOf(ctx, userPK)
	if err != nil {
		return nil, err
	}

	events, _, err := s.repo.GetEvents(userPK, 0, 10)
	if err != nil {
		return nil, err
	}

	profile := &model.Profile{
		UserPK:         userPK,
		Score:          *score,
		Rank:           rank,
		Percentile:     percentile,
		CanCreateTopic: percentile >= config.GlobalConfig.Loyalty.TopicCreatePercentile,
		RecentEvents:   events,
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, profileCacheKey(userPK), profile, profileCacheTTL)
	}
	return profile, nil
}

func (s *loyaltyService) GetEvents(userPK string, page, pageSize int) ([]model.ModerationEvent, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.repo.GetEvents(userPK, (page-1)*pageSize, pageSize)
}

func (s *loyaltyService) Rebuild(userPK string) (*model.LoyaltyScore, error) {
	events, err := s.repo.ReplayEvents(userPK)
	if err != nil {
		return nil, err
	}

	before, err := s.repo.GetScore(userPK)
	if err != nil {
		return nil, err
	}

	rebuilt := model.LoyaltyScore{UserPK: userPK}
	for _, ev := range events {
		switch ev.EventType {
		case model.EventTopicModeration:
			rebuilt.TopicScore += ev.ScoreDelta
		case model.EventMessageModeration:
			rebuilt.MessageScore += ev.ScoreDelta
		case model.EventAppealOutcome:
			rebuilt.AppealAdjustments += ev.ScoreDelta
		case model.EventManualAdjustment:
			rebuilt.ManualAdjustments += ev.ScoreDelta
		default:
			rebuilt.PostScore += ev.ScoreDelta
		}
	}
	rebuilt.TotalScore = rebuilt.ComponentSum()

	if err := s.repo.ResetScore(&rebuilt); err != nil {
		return nil, err
	}

	if rebuilt.TotalScore != before.TotalScore {
		logger.Log.Warn("loyalty score rebuilt with drift",
			zap.String("user_pk", userPK),
			zap.Int("cached", before.TotalScore),
			zap.Int("rebuilt", rebuilt.TotalScore),
		)
	}
	return before, nil
}

func (s *loyaltyService) Verify(userPK string) error {
	events, err := s.repo.ReplayEvents(userPK)
	if err != nil {
		return err
	}
	cached, err := s.repo.GetScore(userPK)
	if err != nil {
		return err
	}

	sum := 0
	for _, ev := range events {
		sum += ev.ScoreDelta
	}
	if sum != cached.TotalScore || cached.TotalScore != cached.ComponentSum() {
		return fmt.Errorf("%w: user=%s replayed=%d cached=%d", ErrScoreDrift, userPK, sum, cached.TotalScore)
	}
	return nil
}

func (s *loyaltyService) RefreshRanking(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}

	scores, err := s.repo.AllScores()
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, rankingKey)
	for _, sc := range scores {
		pipe.ZAdd(ctx, rankingKey, redis.Z{Score: float64(sc.TotalScore), Member: sc.UserPK})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	logger.Log.Debug("loyalty ranking refreshed", zap.Int("users", len(scores)))
	return nil
}

func (s *loyaltyService) Leaderboard(ctx context.Context, offset, limit int) ([]model.LeaderboardEntry, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	total, err := s.redis.ZCard(ctx, rankingKey).Result()
	if err != nil {
		return nil, err
	}

	zs, err := s.redis.ZRevRangeWithScores(ctx, rankingKey, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]model.LeaderboardEntry, 0, len(zs))
	for i, z := range zs {
		rank := int64(offset + i + 1)
		entries = append(entries, model.LeaderboardEntry{
			UserPK:     z.Member.(string),
			Rank:       rank,
			Score:      int(z.Score),
			Percentile: percentileOf(rank, total),
		})
	}
	return entries, nil
}

// rankOf 返回用户排名（1 起）与百分位；未入榜时回退数据库计数
func (s *loyaltyService) rankOf(ctx context.Context, userPK string) (int64, float64, error) {
	if s.redis == nil {
		return 0, 0, nil
	}

	rank, err := s.redis.ZRevRank(ctx, rankingKey, userPK).Result()
	if errors.Is(err, redis.Nil) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}

	total, err := s.redis.ZCard(ctx, rankingKey).Result()
	if err != nil {
		return 0, 0, err
	}
	return rank + 1, percentileOf(rank+1, total), nil
}

// percentileOf 名次转百分位：第 1 名 1.0，末名趋近 0
func percentileOf(rank, total int64) float64 {
	if total <= 0 || rank < 1 {
		return 0
	}
	if total == 1 {
		return 1
	}
	return float64(total-rank) / float64(total-1)
}

func (s *loyaltyService) CanCreateTopic(ctx context.Context, userPK string) (bool, error) {
	_, percentile, err := s.rankOf(ctx, userPK)
	if err != nil {
		return false, err
	}
	return percentile >= config.GlobalConfig.Loyalty.TopicCreatePercentile, nil
}
