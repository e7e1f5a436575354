package service

import (
	"context"
	"time"

	"robot_overlord_api/internal/pkg/config"
	"robot_overlord_api/internal/pkg/oracle"
	"robot_overlord_api/pkg/logger"
	"robot_overlord_api/pkg/metrics"

	"go.uber.org/zap"
)

// ScreenDecision ToS 预筛的最终门禁结论
type ScreenDecision struct {
	// Reject 为 true 时内容直接终结为 tos_violation，不再进入完整审核
	Reject        bool
	ViolationType string
	Reasoning     string
	Confidence    float64
	// Deferred 预筛失败或存疑，放行交由完整审核重新评估
	Deferred bool
}

// Screener ToS 预筛门禁。只拦截明确且高置信度的严重违规，
// 存疑与调用失败一律放行（偏向保留言论）。
type Screener struct {
	client oracle.Client
}

// NewScreener 创建预筛门禁
func NewScreener(client oracle.Client) *Screener {
	return &Screener{client: client}
}

// Evaluate 执行预筛。本方法永不返回错误：任何失败都转化为放行
func (s *Screener) Evaluate(ctx context.Context, in oracle.Input) ScreenDecision {
	start := time.Now()
	result, err := s.client.Screen(ctx, in)
	metrics.Default.RecordOracleCall("screen", time.Since(start).Seconds(), err)

	if err != nil {
		logger.Log.Warn("tos screen call failed, deferring to full review",
			zap.String("content_type", in.ContentType),
			zap.Error(err),
		)
		return ScreenDecision{
			Reasoning: "screening unavailable, deferred to full review",
			Deferred:  true,
		}
	}

	cutoff := config.GlobalConfig.Moderation.ScreenerRejectConfidence
	if !result.Approved && result.Confidence >= cutoff {
		return ScreenDecision{
			Reject:        true,
			ViolationType: result.ViolationType,
			Reasoning:     result.Reasoning,
			Confidence:    result.Confidence,
		}
	}

	// 低置信度的疑似违规也放行，由完整审核定夺
	return ScreenDecision{
		Reasoning:  result.Reasoning,
		Confidence: result.Confidence,
		Deferred:   !result.Approved,
	}
}
