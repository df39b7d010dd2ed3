package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used for the gemini provider when no model is set.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli   *genai.Client
	model string
}

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	return &GeminiClient{cli: cli, model: model}, nil
}

// Complete sends the system messages as the system instruction and the user
// message as the only content turn.
func (g *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	model := g.model
	if req.Model != "" {
		model = req.Model
	}

	cfg := &genai.GenerateContentConfig{}
	if len(req.System) > 0 {
		parts := make([]*genai.Part, len(req.System))
		for i, s := range req.System {
			parts[i] = &genai.Part{Text: s}
		}
		cfg.SystemInstruction = &genai.Content{Parts: parts}
	}

	resp, err := g.cli.Models.GenerateContent(ctx, model,
		[]*genai.Content{genai.NewContentFromText(req.User, genai.RoleUser)},
		cfg,
	)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	answer := resp.Text()
	if strings.TrimSpace(answer) == "" {
		return "", ErrEmptyAnswer
	}
	return answer, nil
}

func classifyGeminiError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if sentinel := statusClass(apiErr.Code); sentinel != nil {
			return fmt.Errorf("%w: %v", sentinel, err)
		}
		if apiErr.Status == "RESOURCE_EXHAUSTED" {
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
	}
	return fmt.Errorf("gemini: %w", err)
}
