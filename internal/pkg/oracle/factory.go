package oracle

import "time"

// FactoryConfig 构造客户端所需配置，不对外泄漏 provider 细节
type FactoryConfig struct {
	Provider    string // "claude" 或 "openai"
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// NewClient 返回与 provider 无关的审裁客户端
func NewClient(cfg FactoryConfig) Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	switch cfg.Provider {
	case "openai":
		return newOpenAIClient(cfg)
	default:
		return newClaudeClient(cfg)
	}
}

func valueOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
