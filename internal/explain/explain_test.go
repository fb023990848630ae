package explain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Allan-at-NTU/udemy-recs/internal/model"
	"github.com/Allan-at-NTU/udemy-recs/pkg/llm"
)

type fakeChatClient struct {
	reply      string
	err        error
	lastPrompt string
}

func (f *fakeChatClient) Chat(ctx context.Context, messages []llm.Message, options ...llm.Option) (string, error) {
	if len(messages) > 0 {
		f.lastPrompt = messages[len(messages)-1].Content
	}
	return f.reply, f.err
}

func TestExplainPromptContainsOnlyItemFields(t *testing.T) {
	client := &fakeChatClient{reply: "  A friendly reason.  "}
	e := NewLLMExplainer(client)

	item := model.Item{
		CourseID:      100,
		Title:         "Guitar for Beginners",
		Subject:       "Musical Instruments",
		Level:         "Beginner",
		Price:         49.99,
		DurationHours: 10.5,
		NumReviews:    1200,
		Rating:        4.5,
	}

	reason, err := e.Explain(context.Background(), item, "learn guitar")
	if err != nil {
		t.Fatalf("Explain failed: %v", err)
	}
	if reason != "A friendly reason." {
		t.Errorf("expected trimmed reply, got '%s'", reason)
	}

	// prompt 里必须带上查询和课程字段
	for _, want := range []string{"learn guitar", "Guitar for Beginners", "Musical Instruments", "Beginner", "1200"} {
		if !strings.Contains(client.lastPrompt, want) {
			t.Errorf("prompt missing '%s'", want)
		}
	}
}

func TestExplainPropagatesError(t *testing.T) {
	client := &fakeChatClient{err: errors.New("backend down")}
	e := NewLLMExplainer(client)

	if _, err := e.Explain(context.Background(), model.Item{Title: "X"}, "query"); err == nil {
		t.Error("expected error from failed chat call")
	}
}
