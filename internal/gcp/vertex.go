package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/iotloader/internal/llm"
	"github.com/Lllllllleong/iotloader/internal/models"
)

// VertexBackend generates loader JSON through Vertex AI. Models are
// configured per request since the run chooses the model name.
type VertexBackend struct {
	baseClient *genai.Client
	projectID  string
	region     string
}

var _ llm.Backend = (*VertexBackend)(nil)

// NewVertexBackend creates the Vertex AI client for the given project.
func NewVertexBackend(ctx context.Context, projectID, region string) (*VertexBackend, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexBackend: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &VertexBackend{baseClient: baseClient, projectID: projectID, region: region}, nil
}

func (v *VertexBackend) Name() string { return "vertex:" + v.region }

func (v *VertexBackend) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := v.baseClient.GenerativeModel(req.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.SystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		// Force JSON output; temperature 0 keeps repeated runs reproducible.
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.UserPrompt))
	if err != nil {
		return llm.Response{}, classifyVertexError(err)
	}
	return llm.Response{
		Text:  extractVertexText(resp),
		Usage: vertexUsage(req.Model, resp),
	}, nil
}

func (v *VertexBackend) Close() error {
	if v.baseClient != nil {
		return v.baseClient.Close()
	}
	return nil
}

// extractVertexText concatenates the text parts of the first candidate.
func extractVertexText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}

func vertexUsage(model string, resp *genai.GenerateContentResponse) *models.GenerationUsage {
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

// classifyVertexError maps gRPC status codes onto the generation error kinds.
func classifyVertexError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return llm.Timeout(err)
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.Aborted, codes.Unknown:
		return llm.APIError(err, true)
	case codes.Canceled:
		return err
	}
	return llm.APIError(err, false)
}
