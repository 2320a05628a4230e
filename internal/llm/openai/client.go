package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	xerrors "ForesightX/internal/errors"
	"ForesightX/internal/llm"
)

const (
	defaultBaseURL   = "https://openrouter.ai/api/v1"
	defaultModelName = "nousresearch/hermes-3-llama-3.1-405b"
	defaultTimeout   = 60 * time.Second
	defaultTitle     = "ForesightX"
)

// Config 描述了调用 OpenAI 兼容 Chat Completions 接口所需的信息。
type Config struct {
	APIKey      string
	BaseURL     string
	Models      map[llm.ModelClass]string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	// Referer 与 Title 会作为 OpenRouter 的来源标识请求头发送。
	Referer string
	Title   string
}

// Client 通过 go-openai 调用 OpenAI 兼容的大模型服务。
type Client struct {
	api         *goopenai.Client
	models      map[llm.ModelClass]string
	temperature float32
	maxTokens   int
}

var _ llm.Client = (*Client)(nil)

// NewClient 根据配置创建客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供模型服务 API Key")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	title := cfg.Title
	if title == "" {
		title = defaultTitle
	}

	apiCfg := goopenai.DefaultConfig(apiKey)
	apiCfg.BaseURL = baseURL
	apiCfg.HTTPClient = &http.Client{
		Timeout: timeout,
		Transport: &headerTransport{
			base:    http.DefaultTransport,
			referer: cfg.Referer,
			title:   title,
		},
	}

	models := map[llm.ModelClass]string{
		llm.ModelSmall:  defaultModelName,
		llm.ModelMedium: defaultModelName,
		llm.ModelLarge:  defaultModelName,
	}
	for class, model := range cfg.Models {
		if strings.TrimSpace(model) != "" {
			models[class] = strings.TrimSpace(model)
		}
	}

	return &Client{
		api:         goopenai.NewClientWithConfig(apiCfg),
		models:      models,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Generate 发送一次聊天补全请求并返回文本。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: req.Prompt})

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	model := c.modelFor(req.Class)
	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stop:        req.Stop,
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, xerrors.New(xerrors.CodeModelFailure, "模型响应中没有有效的 choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, xerrors.New(xerrors.CodeModelFailure, "模型响应内容为空")
	}
	if resp.Model != "" {
		model = resp.Model
	}
	return &llm.Response{
		Text:             content,
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (c *Client) modelFor(class llm.ModelClass) string {
	if model, ok := c.models[class]; ok {
		return model
	}
	return c.models[llm.ModelSmall]
}

// classify 将接口错误映射为统一错误码，4xx 中仅 429 可重试。
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeTimeout, err, "模型推理超时")
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		retryable := apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= http.StatusInternalServerError
		return xerrors.Wrap(xerrors.CodeModelFailure, err, fmt.Sprintf("模型服务返回错误状态 %d", apiErr.HTTPStatusCode),
			xerrors.WithRetryable(retryable))
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		retryable := reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= http.StatusInternalServerError
		return xerrors.Wrap(xerrors.CodeModelFailure, err, fmt.Sprintf("模型服务返回错误状态 %d", reqErr.HTTPStatusCode),
			xerrors.WithRetryable(retryable))
	}
	return xerrors.Wrap(xerrors.CodeModelFailure, err, "请求模型服务失败")
}

type headerTransport struct {
	base    http.RoundTripper
	referer string
	title   string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if t.referer != "" {
		clone.Header.Set("HTTP-Referer", t.referer)
	}
	if t.title != "" {
		clone.Header.Set("X-Title", t.title)
	}
	return t.base.RoundTrip(clone)
}
