package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockChatService implements ChatService for testing
type mockChatService struct {
	content string
	err     error

	callCount int
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	m.callCount++

	if m.err != nil {
		return nil, m.err
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: m.content}},
		},
	}, nil
}

func TestAnalyze_ParsesStructuredResult(t *testing.T) {
	mock := &mockChatService{
		content: `{
			"mood_score": 7,
			"tags": ["work", "focus"],
			"distortion_tags": ["すべき思考"],
			"advice": "少し休みましょう。",
			"fact": "仕事が長引いた。",
			"emotion": "疲労"
		}`,
	}

	client := &OpenAI{chat: mock, model: "gpt-4o-mini"}

	result, err := client.Analyze(context.Background(), "today was long")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.MoodScore != 7 {
		t.Errorf("mood score = %d, want 7", result.MoodScore)
	}
	if len(result.Tags) != 2 || result.Tags[0] != "work" {
		t.Errorf("tags = %v", result.Tags)
	}
	if len(result.DistortionTags) != 1 || result.DistortionTags[0] != "すべき思考" {
		t.Errorf("distortion tags = %v", result.DistortionTags)
	}
	if result.Advice != "少し休みましょう。" {
		t.Errorf("advice = %q", result.Advice)
	}
	if result.Fact == "" || result.Emotion == "" {
		t.Errorf("fact/emotion missing: %+v", result)
	}
}

func TestAnalyze_NormalizesNilArrays(t *testing.T) {
	mock := &mockChatService{
		content: `{"mood_score": 5, "advice": "ok"}`,
	}

	client := &OpenAI{chat: mock, model: "gpt-4o-mini"}

	result, err := client.Analyze(context.Background(), "entry")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Tags == nil || result.DistortionTags == nil {
		t.Error("absent arrays must come back empty, not nil")
	}
}

func TestAnalyze_RejectsOutOfRangeMood(t *testing.T) {
	for _, content := range []string{
		`{"mood_score": 0, "advice": "x"}`,
		`{"mood_score": 11, "advice": "x"}`,
	} {
		mock := &mockChatService{content: content}
		client := &OpenAI{chat: mock, model: "gpt-4o-mini"}

		if _, err := client.Analyze(context.Background(), "entry"); err == nil {
			t.Errorf("content %s: expected range error", content)
		}
	}
}

func TestAnalyze_WrapsErrorWithContext(t *testing.T) {
	originalErr := errors.New("api error")
	mock := &mockChatService{err: originalErr}

	client := &OpenAI{chat: mock, model: "gpt-4o-mini"}

	_, err := client.Analyze(context.Background(), "entry")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "analysis failed") {
		t.Errorf("error should contain 'analysis failed', got: %v", err)
	}
	if !errors.Is(err, originalErr) {
		t.Error("error should wrap original error")
	}
}

func TestAnalyze_MalformedJSON(t *testing.T) {
	mock := &mockChatService{content: "Sure! Here is the analysis: mood is 7"}

	client := &OpenAI{chat: mock, model: "gpt-4o-mini"}

	if _, err := client.Analyze(context.Background(), "entry"); err == nil {
		t.Fatal("expected error for non-JSON response")
	}
}

func TestAnalyze_RespectsContextCancellation(t *testing.T) {
	mock := &mockChatService{content: `{"mood_score": 5, "advice": "x"}`}

	client := &OpenAI{chat: mock, model: "gpt-4o-mini"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Analyze(ctx, "entry")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}

func TestFallback_IsNeutral(t *testing.T) {
	fb := Fallback()

	if fb.MoodScore != 5 {
		t.Errorf("fallback mood = %d, want 5", fb.MoodScore)
	}
	if len(fb.Tags) != 0 || len(fb.DistortionTags) != 0 {
		t.Errorf("fallback must carry no tags: %+v", fb)
	}
	if fb.Advice != "分析に失敗しました。" {
		t.Errorf("fallback advice = %q", fb.Advice)
	}
}

func TestModelName_ReturnsConfiguredModel(t *testing.T) {
	client := &OpenAI{model: "gpt-4o-mini"}
	if client.ModelName() != "gpt-4o-mini" {
		t.Errorf("model name = %q", client.ModelName())
	}
}
