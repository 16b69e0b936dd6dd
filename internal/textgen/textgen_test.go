package textgen

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

type fakeLLM struct {
	reply string
	err   error
	seen  *model.LLMRequest
}

func (f *fakeLLM) Name() string { return "fake-llm" }

func (f *fakeLLM) GenerateContent(_ context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	f.seen = req
	return func(yield func(*model.LLMResponse, error) bool) {
		if f.err != nil {
			yield(nil, f.err)
			return
		}
		yield(&model.LLMResponse{
			Content:       genai.NewContentFromText(f.reply, genai.RoleModel),
			UsageMetadata: &genai.GenerateContentResponseUsageMetadata{TotalTokenCount: 87},
		}, nil)
	}
}

func TestLLMGeneratorComplete(t *testing.T) {
	llm := &fakeLLM{reply: "  Hei Kari!  "}
	gen := NewLLM(llm)

	resp, err := gen.Complete(context.Background(), Request{System: "system", Prompt: "prompt", Temperature: 0.7, MaxTokens: 500})
	require.NoError(t, err)

	assert.Equal(t, "Hei Kari!", resp.Text)
	assert.Equal(t, 87, resp.TokensUsed)
	assert.Equal(t, "fake-llm", resp.Model)
	assert.Equal(t, int32(500), llm.seen.Config.MaxOutputTokens)
	assert.Equal(t, "system", llm.seen.Config.SystemInstruction.Parts[0].Text)
}

func TestLLMGeneratorErrors(t *testing.T) {
	_, err := NewLLM(&fakeLLM{err: errors.New("upstream down")}).Complete(context.Background(), Request{Prompt: "p"})
	assert.ErrorContains(t, err, "upstream down")

	_, err = NewLLM(&fakeLLM{reply: "   "}).Complete(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrEmptyOutput)
}

type slowGenerator struct{}

func (slowGenerator) Complete(ctx context.Context, _ Request) (Response, error) {
	<-ctx.Done()
	return Response{}, ctx.Err()
}

func TestWithTimeoutBoundsCalls(t *testing.T) {
	gen := WithTimeout(slowGenerator{}, 10*time.Millisecond)
	_, err := gen.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUnavailableGenerator(t *testing.T) {
	_, err := unavailable{}.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDecodeJSON(t *testing.T) {
	type verdict struct {
		Classification string  `json:"classification"`
		Confidence     float64 `json:"confidence"`
	}

	cases := map[string]string{
		"plain":  `{"classification":"spam","confidence":0.9}`,
		"fenced": "```json\n{\"classification\":\"spam\",\"confidence\":0.9}\n```",
		"prose":  "Here you go: {\"classification\":\"spam\",\"confidence\":0.9} hope it helps",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			var v verdict
			require.NoError(t, DecodeJSON(text, &v))
			assert.Equal(t, "spam", v.Classification)
			assert.InDelta(t, 0.9, v.Confidence, 0.0001)
		})
	}

	var v verdict
	assert.ErrorIs(t, DecodeJSON("no json here", &v), ErrNoJSON)
	assert.Error(t, DecodeJSON("{broken", &v))
}
