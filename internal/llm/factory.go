package llm

import (
	"context"
	"fmt"
)

// Provider names accepted by New.
const (
	ProviderHF     = "hf"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Options selects and configures a backend.
type Options struct {
	Provider string
	Model    string
	BaseURL  string
	Token    string
}

// New builds the backend named by opts.Provider. The "hf" provider is the
// OpenAI-compatible router at DefaultRouterURL unless BaseURL overrides it.
func New(ctx context.Context, opts Options) (Completer, error) {
	var (
		c   Completer
		err error
	)
	switch opts.Provider {
	case "", ProviderHF:
		c, err = NewOpenAIClient(opts.BaseURL, opts.Token, opts.Model)
	case ProviderOpenAI:
		if opts.BaseURL == "" {
			return nil, fmt.Errorf("llm: provider %q requires a base URL", opts.Provider)
		}
		c, err = NewOpenAIClient(opts.BaseURL, opts.Token, opts.Model)
	case ProviderGemini:
		c, err = NewGeminiClient(ctx, opts.Token, opts.Model)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", opts.Provider)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
