package platform

import (
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// NewLLMClient 创建 OpenAI 兼容客户端，不做内部重试
func NewLLMClient(cfg *Config, opts ...option.RequestOption) *openai.Client {
	base := []option.RequestOption{
		option.WithAPIKey(cfg.OpenAIAPIKey),
		option.WithMaxRetries(0),
	}
	if cfg.OpenAIBaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.OpenAIBaseURL))
	}
	return openai.NewClient(append(base, opts...)...)
}
