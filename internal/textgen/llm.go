package textgen

import (
	"context"
	"strings"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// LLMGenerator drives any ADK model.LLM, such as the Moonshot adapter.
type LLMGenerator struct {
	llm model.LLM
}

// NewLLM wraps an ADK model.
func NewLLM(llm model.LLM) *LLMGenerator {
	return &LLMGenerator{llm: llm}
}

func (g *LLMGenerator) Complete(ctx context.Context, req Request) (Response, error) {
	cfg := &genai.GenerateContentConfig{MaxOutputTokens: req.MaxTokens}
	if req.Temperature > 0 {
		temp := req.Temperature
		cfg.Temperature = &temp
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	llmReq := &model.LLMRequest{
		Model:    g.llm.Name(),
		Contents: []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)},
		Config:   cfg,
	}

	var text strings.Builder
	tokens := 0
	for resp, err := range g.llm.GenerateContent(ctx, llmReq, false) {
		if err != nil {
			return Response{}, err
		}
		if resp == nil {
			continue
		}
		if resp.Content != nil {
			for _, part := range resp.Content.Parts {
				if part != nil {
					text.WriteString(part.Text)
				}
			}
		}
		if resp.UsageMetadata != nil {
			tokens = int(resp.UsageMetadata.TotalTokenCount)
		}
	}

	out := strings.TrimSpace(text.String())
	if out == "" {
		return Response{}, ErrEmptyOutput
	}
	return Response{Text: out, TokensUsed: tokens, Model: g.llm.Name()}, nil
}
