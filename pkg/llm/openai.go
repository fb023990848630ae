package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client 定义文本生成客户端接口
type Client interface {
	Chat(ctx context.Context, messages []Message, options ...Option) (string, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Option 单次请求级别的参数覆盖
type Option func(*chatRequest)

// WithModel 覆盖本次请求使用的模型
func WithModel(model string) Option {
	return func(r *chatRequest) { r.Model = model }
}

// WithTemperature 设置采样温度
func WithTemperature(t float64) Option {
	return func(r *chatRequest) { r.Temperature = &t }
}

// WithMaxTokens 限制生成长度
func WithMaxTokens(n int) Option {
	return func(r *chatRequest) { r.MaxTokens = n }
}

// OpenAIClient 兼容 OpenAI chat completions 协议的客户端
type OpenAIClient struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewOpenAIClient(endpoint, apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, options ...Option) (string, error) {
	reqBody := chatRequest{
		Model:    c.model,
		Messages: messages,
	}
	// Option 只作用于本次请求体，客户端实例保持无状态
	for _, opt := range options {
		opt(&reqBody)
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	// 直接使用配置的 endpoint，不再硬编码路径
	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm api error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse llm response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from llm")
	}

	return chatResp.Choices[0].Message.Content, nil
}
