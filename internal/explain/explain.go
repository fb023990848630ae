package explain

import (
	"context"
	"fmt"
	"strings"

	"github.com/Allan-at-NTU/udemy-recs/internal/model"
	"github.com/Allan-at-NTU/udemy-recs/pkg/llm"
)

// 生成参数：单句理由不需要太多自由度
const (
	reasonTemperature = 0.6
	reasonMaxTokens   = 60
)

// LLMExplainer 调用文本生成服务，为单个课程产出一句推荐理由
// 属于 best-effort 能力：调用失败由上层降级处理，不在这里重试
type LLMExplainer struct {
	client llm.Client
}

func NewLLMExplainer(client llm.Client) *LLMExplainer {
	return &LLMExplainer{client: client}
}

// Explain 生成一句推荐理由
// Prompt 中只允许引用传入的课程字段，避免模型编造事实
func (e *LLMExplainer) Explain(ctx context.Context, item model.Item, query string) (string, error) {
	prompt := fmt.Sprintf(`You recommend courses. Be concise.
User request: "%s"
Use ONLY these fields:
Title: %s
Subject: %s
Level: %s
Duration_hours: %g
Price: %g
Num_reviews: %d
Rating: %g
Write ONE friendly sentence on why this fits. Mention level match and one numeric fact. No inventions.`,
		query, item.Title, item.Subject, item.Level,
		item.DurationHours, item.Price, item.NumReviews, item.Rating)

	messages := []llm.Message{
		{Role: "user", Content: prompt},
	}

	reason, err := e.client.Chat(ctx, messages,
		llm.WithTemperature(reasonTemperature),
		llm.WithMaxTokens(reasonMaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("explain chat failed: %w", err)
	}

	return strings.TrimSpace(reason), nil
}
