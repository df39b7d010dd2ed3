package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/phobologic/gentleman/internal/annotate"
	"github.com/phobologic/gentleman/internal/config"
	"github.com/phobologic/gentleman/internal/extract"
	"github.com/phobologic/gentleman/internal/llm"
	"github.com/phobologic/gentleman/internal/metrics"
	"github.com/phobologic/gentleman/internal/prompt"
	"github.com/phobologic/gentleman/internal/validate"
	"github.com/phobologic/gentleman/internal/vocab"
)

// ClientFactory creates the collaborator for a provider selection.
type ClientFactory func(ctx context.Context, opts llm.Options) (llm.Completer, error)

// Builder holds everything shared between pipelines built from one
// configuration: the extractor, grammar, prompts, rate limiter and quota
// gate. Build varies only the model and credential.
type Builder struct {
	cfg       config.Config
	extractor *extract.Extractor
	validator *validate.Validator
	prompts   *prompt.Bundle
	limiter   *rate.Limiter
	gate      *annotate.QuotaGate
	newClient ClientFactory
	sleeper   annotate.Sleeper

	logger  *zap.Logger
	metrics *metrics.Collectors
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithClientFactory replaces llm.New, e.g. with a scripted collaborator.
func WithClientFactory(f ClientFactory) BuilderOption {
	return func(b *Builder) { b.newClient = f }
}

// WithBuilderLogger sets the logger passed to every pipeline.
func WithBuilderLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithBuilderMetrics sets the collectors passed to every pipeline.
func WithBuilderMetrics(m *metrics.Collectors) BuilderOption {
	return func(b *Builder) { b.metrics = m }
}

// WithSleeper replaces the quota backoff sleeper.
func WithSleeper(s annotate.Sleeper) BuilderOption {
	return func(b *Builder) { b.sleeper = s }
}

// NewBuilder prepares the shared components for cfg.
func NewBuilder(cfg config.Config, opts ...BuilderOption) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ext, err := extract.New()
	if err != nil {
		return nil, err
	}
	bundle, err := prompt.Load(cfg.Prompts)
	if err != nil {
		return nil, err
	}

	b := &Builder{
		cfg:       cfg,
		extractor: ext,
		validator: validate.New(vocab.New(cfg.TypeDepth), vocab.NewCategories(bundle.Categories())),
		prompts:   bundle,
		gate:      annotate.NewQuotaGate(),
		newClient: llm.New,
		logger:    zap.NewNop(),
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Config returns the configuration the builder was created with.
func (b *Builder) Config() config.Config {
	return b.cfg
}

// Extractor returns the shared extractor.
func (b *Builder) Extractor() *extract.Extractor {
	return b.extractor
}

// Validator returns the shared validator.
func (b *Builder) Validator() *validate.Validator {
	return b.validator
}

// ExtractOnly returns a pipeline without a collaborator.
func (b *Builder) ExtractOnly() *Pipeline {
	return New(b.extractor, nil,
		WithLogger(b.logger),
		WithMetrics(b.metrics),
		WithWorkers(b.cfg.Workers),
		WithMaxFileSize(b.cfg.MaxFileSize),
	)
}

// Build returns a full pipeline. Empty model or token fall back to the
// configured values.
func (b *Builder) Build(ctx context.Context, model, token string) (*Pipeline, error) {
	if model == "" {
		model = b.cfg.Model
	}
	if token == "" {
		token = b.cfg.Token
	}

	client, err := b.newClient(ctx, llm.Options{
		Provider: b.cfg.Provider,
		Model:    model,
		BaseURL:  b.cfg.BaseURL,
		Token:    token,
	})
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", b.cfg.Provider, err)
	}
	client = llm.Chain(client,
		llm.WithMetrics(b.metrics, b.cfg.Provider),
		llm.WithLogging(b.logger.Named("llm")),
		llm.WithRateLimit(b.limiter),
	)

	ann := annotate.New(client, b.validator, b.prompts, annotate.Config{
		Model:             model,
		MaxAttempts:       b.cfg.MaxAttempts,
		MaxQuotaRetries:   b.cfg.MaxQuotaRetries,
		QuotaBaseDelay:    b.cfg.QuotaBaseDelay,
		DescriptionMinLen: b.cfg.Description.MinLen,
		DescriptionMaxLen: b.cfg.Description.MaxLen,
		MaxTags:           b.cfg.MaxTags,
	},
		annotate.WithLogger(b.logger.Named("annotate")),
		annotate.WithMetrics(b.metrics),
		annotate.WithGate(b.gate),
		annotate.WithSleeper(b.sleeper),
	)

	return New(b.extractor, ann,
		WithLogger(b.logger),
		WithMetrics(b.metrics),
		WithWorkers(b.cfg.Workers),
		WithMaxFileSize(b.cfg.MaxFileSize),
	), nil
}
