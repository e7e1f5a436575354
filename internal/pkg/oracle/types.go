package oracle

import "context"

// Input 待审内容
type Input struct {
	Content     string // 正文
	Title       string // 可选，话题标题
	ContentType string // topic / post / private_message
	UserName    string // 可选，作者名
	Language    string // 默认 en
}

// ScreenResult ToS 预筛结果
type ScreenResult struct {
	Approved      bool    `json:"approved"`
	ViolationType string  `json:"violation_type"`
	Reasoning     string  `json:"reasoning"`
	Confidence    float64 `json:"confidence"`
}

// Decision 完整审核裁决类型
type Decision string

const (
	DecisionApproved     Decision = "approved"
	DecisionRejected     Decision = "rejected"
	DecisionWarning      Decision = "warning"
	DecisionToSViolation Decision = "tos_violation"
)

// Verdict 完整审核裁决
type Verdict struct {
	Decision   Decision `json:"decision"`
	Feedback   string   `json:"feedback"`
	Reasoning  string   `json:"reasoning"`
	Confidence float64  `json:"confidence"`
}

// Client 审裁服务客户端。流水线只依赖它最终返回裁决或显式失败，
// 不依赖其内部判断逻辑。
type Client interface {
	// Screen 快速 ToS 预筛，只负责拦截明确严重的违规
	Screen(ctx context.Context, in Input) (ScreenResult, error)
	// Judge 完整实质审核
	Judge(ctx context.Context, in Input) (Verdict, error)
}
