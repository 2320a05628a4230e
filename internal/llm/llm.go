package llm

import (
	"context"
	"strings"
)

// ModelClass 对应不同规模的模型，由调用方按任务难度选择。
type ModelClass string

const (
	ModelSmall  ModelClass = "small"
	ModelMedium ModelClass = "medium"
	ModelLarge  ModelClass = "large"
)

// ParseModelClass 解析配置中的模型规模，无法识别时返回 small。
func ParseModelClass(raw string) ModelClass {
	switch ModelClass(strings.ToLower(strings.TrimSpace(raw))) {
	case ModelMedium:
		return ModelMedium
	case ModelLarge:
		return ModelLarge
	default:
		return ModelSmall
	}
}

// Request 描述发送给大模型的一次补全请求。
type Request struct {
	System      string
	Prompt      string
	Class       ModelClass
	Temperature float32
	MaxTokens   int
	Stop        []string
}

// Response 是大模型返回的原始文本及用量。
type Response struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ClientFunc 允许以函数形式实现 Client。
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

// Generate 实现 Client 接口。
func (f ClientFunc) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
