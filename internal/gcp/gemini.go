package gcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	genai "google.golang.org/genai"

	"github.com/Lllllllleong/iotloader/internal/llm"
	"github.com/Lllllllleong/iotloader/internal/models"
)

// GeminiBackend talks to the Gemini API with an API key. It is the backend
// for deployments without a GCP project.
type GeminiBackend struct {
	cli *genai.Client
}

var _ llm.Backend = (*GeminiBackend)(nil)

func NewGeminiBackend(ctx context.Context, apiKey string) (*GeminiBackend, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("NewGeminiBackend: api key cannot be empty")
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &GeminiBackend{cli: cli}, nil
}

func (g *GeminiBackend) Name() string { return "gemini" }
func (g *GeminiBackend) Close() error { return nil }

func (g *GeminiBackend) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	resp, err := g.cli.Models.GenerateContent(ctx, req.Model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: req.UserPrompt}}}},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}},
			ResponseMIMEType:  "application/json",
			Temperature:       genai.Ptr[float32](0),
		},
	)
	if err != nil {
		return llm.Response{}, classifyGeminiError(err)
	}
	return llm.Response{
		Text:  extractGeminiText(resp),
		Usage: geminiUsage(req.Model, resp),
	}, nil
}

func extractGeminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

func geminiUsage(model string, resp *genai.GenerateContentResponse) *models.GenerationUsage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	return &models.GenerationUsage{
		Model:            model,
		PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
	}
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	return classifyHTTPStatus(apiErr.Code, err)
}

// classifyHTTPStatus maps an upstream HTTP status onto the generation error
// kinds: 408 is a timeout, 429 and 5xx are retried, other 4xx are final.
func classifyHTTPStatus(code int, err error) error {
	switch {
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return llm.Timeout(err)
	case code == http.StatusTooManyRequests || code/100 == 5:
		return llm.APIError(err, true)
	}
	return llm.APIError(err, false)
}
