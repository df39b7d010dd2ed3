// Package annotate fills the semantic fields of extracted functions by
// asking a text-generation collaborator and validating every answer.
package annotate

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/phobologic/gentleman/internal/llm"
	"github.com/phobologic/gentleman/internal/metrics"
	"github.com/phobologic/gentleman/internal/model"
	"github.com/phobologic/gentleman/internal/prompt"
	"github.com/phobologic/gentleman/internal/validate"
	"github.com/phobologic/gentleman/internal/vocab"
)

// Field names one annotated field. Fields are annotated in the order
// declared by Fields.
type Field string

const (
	FieldParameterTypes Field = "parameter types"
	FieldTags           Field = "tags"
	FieldDescription    Field = "description"
	FieldReturnType     Field = "return type"
	FieldCategory       Field = "category"
)

// Fields lists every field in annotation order.
var Fields = []Field{FieldParameterTypes, FieldTags, FieldDescription, FieldReturnType, FieldCategory}

func (f Field) promptKey() string {
	switch f {
	case FieldParameterTypes:
		return prompt.ParameterTypes
	case FieldTags:
		return prompt.Tags
	case FieldDescription:
		return prompt.Description
	case FieldReturnType:
		return prompt.ReturnType
	case FieldCategory:
		return prompt.Category
	}
	return string(f)
}

// MaxQuotaRetriesLimit bounds Config.MaxQuotaRetries.
const MaxQuotaRetriesLimit = 30

// NoneType is the return type of a function without a return value.
const NoneType = "None"

// Config bounds the retry state machine and the description length.
type Config struct {
	// Model is passed through to the collaborator; empty uses its default.
	Model string
	// MaxAttempts is the number of rejected answers tolerated per field.
	MaxAttempts int
	// MaxQuotaRetries is the number of quota backoffs tolerated per field.
	MaxQuotaRetries int
	// QuotaBaseDelay is doubled per quota failure: the k-th waits base*2^k.
	QuotaBaseDelay time.Duration

	DescriptionMinLen int
	DescriptionMaxLen int
	MaxTags           int
}

// DefaultConfig returns the standard budgets.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       7,
		MaxQuotaRetries:   5,
		QuotaBaseDelay:    time.Second,
		DescriptionMinLen: 50,
		DescriptionMaxLen: 200,
		MaxTags:           5,
	}
}

// Annotator runs the per-field retry state machine. It holds no state
// about the functions it annotates and is safe for concurrent use.
type Annotator struct {
	client    llm.Completer
	validator *validate.Validator
	prompts   *prompt.Bundle
	cfg       Config

	logger  *zap.Logger
	metrics *metrics.Collectors
	sleep   Sleeper
	gate    *QuotaGate
}

// Option configures an Annotator.
type Option func(*Annotator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(a *Annotator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics sets the metric collectors.
func WithMetrics(m *metrics.Collectors) Option {
	return func(a *Annotator) { a.metrics = m }
}

// WithSleeper replaces the backoff sleeper.
func WithSleeper(s Sleeper) Option {
	return func(a *Annotator) {
		if s != nil {
			a.sleep = s
		}
	}
}

// WithGate shares a quota gate between annotators.
func WithGate(g *QuotaGate) Option {
	return func(a *Annotator) { a.gate = g }
}

// New creates an Annotator. Zero budgets in cfg take their defaults.
func New(client llm.Completer, v *validate.Validator, p *prompt.Bundle, cfg Config, opts ...Option) *Annotator {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	cfg.MaxQuotaRetries = min(max(cfg.MaxQuotaRetries, 0), MaxQuotaRetriesLimit)
	if cfg.QuotaBaseDelay <= 0 {
		cfg.QuotaBaseDelay = def.QuotaBaseDelay
	}
	if cfg.DescriptionMaxLen <= 0 {
		cfg.DescriptionMinLen, cfg.DescriptionMaxLen = def.DescriptionMinLen, def.DescriptionMaxLen
	}
	if cfg.MaxTags <= 0 {
		cfg.MaxTags = def.MaxTags
	}

	a := &Annotator{
		client:    client,
		validator: v,
		prompts:   p,
		cfg:       cfg,
		logger:    zap.NewNop(),
		sleep:     SleepContext,
		gate:      NewQuotaGate(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the effective configuration.
func (a *Annotator) Config() Config {
	return a.cfg
}

// AnnotateFile annotates every function of fa in source order. The first
// failure aborts the file.
func (a *Annotator) AnnotateFile(ctx context.Context, fa *model.FileAnalysis) error {
	importSet := fa.ImportSet()
	for i := range fa.Functions {
		fn := &fa.Functions[i]
		a.logger.Info("annotating function",
			zap.String("file", fa.Path),
			zap.String("function", fn.Name),
			zap.Int("index", i+1),
			zap.Int("total", len(fa.Functions)),
		)
		if err := a.annotate(ctx, fn, fa, importSet); err != nil {
			return err
		}
	}
	return nil
}

// AnnotateFunction fills parameter types, tags, description, return type
// and category of fn, in that order. A field is written only once its
// answer is accepted; on error, earlier fields stay set.
func (a *Annotator) AnnotateFunction(ctx context.Context, fn *model.FunctionRecord, content string, imports []string) error {
	file := &model.FileAnalysis{Content: content, Imports: imports}
	return a.annotate(ctx, fn, file, file.ImportSet())
}

// annotate fills fn using file for prompt context; importSet is the set form
// of file.Imports.
func (a *Annotator) annotate(ctx context.Context, fn *model.FunctionRecord, file *model.FileAnalysis, importSet map[string]struct{}) error {
	names := fn.ParameterNames()
	data := prompt.Data{
		Content:        file.Content,
		Source:         fn.Span.Source,
		ParameterNames: names,
		Parameters:     prompt.PyPairs(names, nil),
		Imports:        file.Imports,
		Vocabulary:     a.validator.Vocabulary().Describe(),
		ReturnExpr:     fn.Return.Expr,
		MaxTags:        a.cfg.MaxTags,
		MinLen:         a.cfg.DescriptionMinLen,
		MaxLen:         a.cfg.DescriptionMaxLen,
		Categories:     a.validator.Categories().Names(),
	}

	// Parameter types.
	if len(fn.Parameters) > 0 {
		var types validate.TypeList
		err := a.ask(ctx, fn.Name, FieldParameterTypes, data, func(answer string) error {
			tl, err := a.validator.TypeList(answer, importSet)
			if err != nil {
				return err
			}
			if err := checkCardinality(len(tl), len(fn.Parameters)); err != nil {
				return err
			}
			types = tl
			return nil
		})
		if err != nil {
			return err
		}
		for i := range fn.Parameters {
			fn.Parameters[i].Type = canonicalType(types[i])
		}
	}
	data.Parameters = prompt.PyPairs(names, paramTypes(fn))

	// Tags.
	var tags validate.TagList
	err := a.ask(ctx, fn.Name, FieldTags, data, func(answer string) error {
		tl, err := validate.ParseTagList(answer)
		if err != nil {
			return err
		}
		tags = tl
		return nil
	})
	if err != nil {
		return err
	}
	fn.Tags = []string(tags)
	data.Tags = fn.Tags

	// Description.
	var desc validate.Description
	err = a.ask(ctx, fn.Name, FieldDescription, data, func(answer string) error {
		d, err := validate.ParseDescription(answer, a.cfg.DescriptionMinLen, a.cfg.DescriptionMaxLen)
		if err != nil {
			return err
		}
		desc = d
		return nil
	})
	if err != nil {
		return err
	}
	fn.Description = string(desc)
	data.Description = fn.Description

	// Return type.
	switch {
	case fn.Return.IsEmpty():
		fn.Return.Type = NoneType
		a.logger.Debug("return type inferred", zap.String("function", fn.Name), zap.String("type", NoneType))
	case fn.Return.Type != "" && fn.Return.Type != vocab.Wildcard:
		a.logger.Debug("return type inferred", zap.String("function", fn.Name), zap.String("type", fn.Return.Type))
	default:
		var tok validate.TypeToken
		err = a.ask(ctx, fn.Name, FieldReturnType, data, func(answer string) error {
			t, err := a.validator.TypeToken(answer, importSet)
			if err != nil {
				return err
			}
			tok = t
			return nil
		})
		if err != nil {
			return err
		}
		fn.Return.Type = canonicalType(string(tok))
	}
	data.ReturnType = fn.Return.Type

	// Category.
	var cat validate.Category
	err = a.ask(ctx, fn.Name, FieldCategory, data, func(answer string) error {
		c, err := a.validator.Category(answer)
		if err != nil {
			return err
		}
		cat = c
		return nil
	})
	if err != nil {
		return err
	}
	fn.Category = string(cat)
	return nil
}

// ask runs the retry state machine for one field. accept validates an
// answer; a non-nil result is fed back to the next attempt verbatim.
func (a *Annotator) ask(ctx context.Context, function string, field Field, data prompt.Data, accept func(string) error) error {
	system, user, err := a.prompts.Render(field.promptKey(), data)
	if err != nil {
		return a.fatal(function, field, "prompt", err)
	}
	log := a.logger.With(zap.String("function", function), zap.String("field", string(field)))

	var (
		lastError string
		attempts  int
		quota     int
	)
	for {
		if err := a.gate.Wait(ctx); err != nil {
			return a.fatal(function, field, "canceled", err)
		}

		req := llm.Request{Model: a.cfg.Model, System: system, User: user}
		if lastError != "" {
			req.System = append(slices.Clone(system), a.prompts.Retry(lastError))
		}

		answer, err := a.client.Complete(ctx, req)
		if err == nil && strings.TrimSpace(answer) == "" {
			err = llm.ErrEmptyAnswer
		}

		var reason string
		if err != nil {
			switch llm.Classify(err) {
			case llm.ClassQuota:
				quota++
				if quota > a.cfg.MaxQuotaRetries {
					return a.fatal(function, field, "quota_exhausted",
						fmt.Errorf("%w after %d backoffs: %w", ErrQuotaBudgetExhausted, quota-1, err))
				}
				delay := backoff(a.cfg.QuotaBaseDelay, quota)
				a.metrics.QuotaBackoff(string(field))
				log.Warn("quota exceeded, backing off",
					zap.Int("quota_retry", quota),
					zap.Duration("delay", delay),
					zap.Error(err),
				)
				if err := a.gate.Pause(ctx, delay, a.sleep); err != nil {
					return a.fatal(function, field, "canceled", err)
				}
				continue
			case llm.ClassEmpty:
				reason = llm.ErrEmptyAnswer.Error()
				a.metrics.Attempt(string(field), "empty")
			case llm.ClassCanceled:
				return a.fatal(function, field, "canceled", err)
			case llm.ClassTimeout:
				return a.fatal(function, field, "timeout", err)
			default:
				return a.fatal(function, field, "collaborator", err)
			}
		} else if verr := accept(answer); verr != nil {
			reason = verr.Error()
			a.metrics.Attempt(string(field), "rejected")
		} else {
			a.metrics.Attempt(string(field), "accepted")
			log.Debug("field accepted", zap.Int("attempt", attempts+1))
			return nil
		}

		attempts++
		log.Warn("attempt failed", zap.Int("attempt", attempts), zap.String("error", reason))
		if attempts >= a.cfg.MaxAttempts {
			return a.fatal(function, field, "attempts_exhausted",
				fmt.Errorf("%w after %d tries: %s", ErrAttemptsExhausted, attempts, reason))
		}
		lastError = reason
	}
}

func (a *Annotator) fatal(function string, field Field, reason string, err error) error {
	a.metrics.Fatal(string(field), reason)
	a.logger.Error("annotation aborted",
		zap.String("function", function),
		zap.String("field", string(field)),
		zap.String("reason", reason),
		zap.Error(err),
	)
	return &AnnotationError{Function: function, Field: field, Err: err}
}

func checkCardinality(given, expected int) error {
	switch {
	case given > expected:
		return &validate.ValidationError{
			Kind:   validate.KindTypeList,
			Reason: fmt.Sprintf("Too many types given.\nGiven: %d, Expected: %d.", given, expected),
		}
	case given < expected:
		return &validate.ValidationError{
			Kind:   validate.KindTypeList,
			Reason: fmt.Sprintf("Not enough types given.\nGiven: %d, Expected: %d.", given, expected),
		}
	}
	return nil
}

// backoff returns base*2^k, saturating instead of overflowing.
func backoff(base time.Duration, k int) time.Duration {
	d := base
	for range k {
		if d > math.MaxInt64/2 {
			return math.MaxInt64
		}
		d *= 2
	}
	return d
}

// canonicalType spells the sanitized none token the way the extractor does.
func canonicalType(tok string) string {
	if tok == "none" {
		return NoneType
	}
	return tok
}

func paramTypes(fn *model.FunctionRecord) []string {
	types := make([]string, len(fn.Parameters))
	for i, p := range fn.Parameters {
		types[i] = p.Type
	}
	return types
}
