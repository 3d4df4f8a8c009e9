// Package analysis generates the mood and cognitive-distortion annotations
// for a journal entry. Analysis is best-effort: a failure never blocks entry
// creation, it yields the neutral fallback result instead.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tai-cha/tainy-tune/internal/types"
)

// Analyzer defines the interface contract for journal analysis services.
type Analyzer interface {
	Analyze(ctx context.Context, content string) (*types.AnalysisResult, error)
	ModelName() string
}

// Compile-time interface check
var _ Analyzer = (*OpenAI)(nil)

// ChatService defines the interface for making chat completion API calls.
// This abstraction enables testing without calling the real OpenAI API.
type ChatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAI implements the analysis service using OpenAI's chat API.
type OpenAI struct {
	chat  ChatService
	model openai.ChatModel
}

// NewOpenAI creates a new OpenAI analysis service.
func NewOpenAI(apiKey, model string) *OpenAI {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAI{
		chat:  client.Chat.Completions,
		model: openai.ChatModel(model),
	}
}

const systemPrompt = `You analyze journal entries written by a user with ADHD traits and respond with a single JSON object containing exactly these keys:
"mood_score": integer 1 (worst) to 10 (best) estimating the user's mood.
"tags": array of 3-5 short keywords summarizing the topic.
"distortion_tags": array of cognitive distortions present, using the Japanese terms: 白黒思考, 過度の一般化, 心のフィルター, マイナス化思考, 結論の飛躍, 拡大解釈・過小評価, 感情的決めつけ, すべき思考, レッテル貼り, 自己関連付け. Empty array if none.
"advice": 1-2 sentences of empathetic, actionable CBT-based advice in Japanese. Validate the user's feelings and offer a different perspective if there are distortions.
"fact": one sentence restating the objective facts of the entry, in Japanese.
"emotion": one short phrase naming the dominant emotion, in Japanese.`

// Analyze runs one entry through the model and parses the structured result.
func (o *OpenAI) Analyze(ctx context.Context, content string) (*types.AnalysisResult, error) {
	resp, err := o.chat.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage("Journal Content:\n" + content),
		}),
		Model: openai.F(o.model),
		ResponseFormat: openai.F[openai.ChatCompletionNewParamsResponseFormatUnion](
			openai.ResponseFormatJSONObjectParam{
				Type: openai.F(openai.ResponseFormatJSONObjectTypeJSONObject),
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("analysis failed: no choices returned")
	}

	var result types.AnalysisResult
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("analysis failed: malformed response: %w", err)
	}

	if result.MoodScore < 1 || result.MoodScore > 10 {
		return nil, fmt.Errorf("analysis failed: mood score %d out of range", result.MoodScore)
	}
	if result.Tags == nil {
		result.Tags = []string{}
	}
	if result.DistortionTags == nil {
		result.DistortionTags = []string{}
	}

	return &result, nil
}

// ModelName returns the chat model name.
func (o *OpenAI) ModelName() string {
	return string(o.model)
}

// Fallback is the neutral result applied when analysis fails. Entries
// carrying it are flagged so a later re-analysis can find them.
func Fallback() *types.AnalysisResult {
	return &types.AnalysisResult{
		MoodScore:      5,
		Tags:           []string{},
		DistortionTags: []string{},
		Advice:         "分析に失敗しました。",
	}
}
