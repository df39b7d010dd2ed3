// Package pipeline drives extraction, annotation and assembly for one file
// or a batch of files.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/gentleman/internal/annotate"
	"github.com/phobologic/gentleman/internal/artifact"
	"github.com/phobologic/gentleman/internal/extract"
	"github.com/phobologic/gentleman/internal/metrics"
	"github.com/phobologic/gentleman/internal/model"
)

// DefaultMaxFileSize is the largest source file analyzed, in bytes.
const DefaultMaxFileSize = 1_000_000

// ErrFileTooLarge is returned for inputs above the size limit.
var ErrFileTooLarge = errors.New("file exceeds size limit")

// Pipeline runs one file through extraction, annotation and assembly.
// It is safe for concurrent use.
type Pipeline struct {
	extractor *extract.Extractor
	annotator *annotate.Annotator

	logger      *zap.Logger
	metrics     *metrics.Collectors
	workers     int
	maxFileSize int64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics sets the metric collectors.
func WithMetrics(m *metrics.Collectors) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithWorkers sets how many files AnalyzeBatch processes at once.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithMaxFileSize sets the input size limit in bytes.
func WithMaxFileSize(n int64) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxFileSize = n
		}
	}
}

// New creates a Pipeline. annotator may be nil for extraction-only use.
func New(ext *extract.Extractor, ann *annotate.Annotator, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:   ext,
		annotator:   ann,
		logger:      zap.NewNop(),
		workers:     1,
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Extract reads and statically analyzes the file at path.
func (p *Pipeline) Extract(ctx context.Context, path string) (*model.FileAnalysis, error) {
	source, err := p.read(path)
	if err != nil {
		return nil, err
	}
	return p.extractor.Extract(ctx, path, source)
}

// AnalyzeFile runs the full pipeline on the file at path.
func (p *Pipeline) AnalyzeFile(ctx context.Context, path string) (*artifact.Artifact, error) {
	source, err := p.read(path)
	if err != nil {
		p.metrics.File("failed")
		return nil, err
	}
	return p.AnalyzeSource(ctx, path, source)
}

// AnalyzeSource runs the full pipeline on source. The result is all or
// nothing: any failure discards the partially annotated functions.
func (p *Pipeline) AnalyzeSource(ctx context.Context, path string, source []byte) (*artifact.Artifact, error) {
	if p.annotator == nil {
		return nil, fmt.Errorf("pipeline: no annotator configured")
	}
	start := time.Now()
	log := p.logger.With(zap.String("file", path))

	fa, err := p.extractor.Extract(ctx, path, source)
	if err != nil {
		p.metrics.File("failed")
		log.Error("extraction failed", zap.Error(err))
		return nil, err
	}
	log.Info("extracted",
		zap.Int("functions", len(fa.Functions)),
		zap.Strings("imports", fa.Imports),
	)
	if len(fa.DuplicateNames) > 0 {
		log.Warn("duplicate function names; lookups use the last definition",
			zap.Strings("names", fa.DuplicateNames))
	}

	if err := p.annotator.AnnotateFile(ctx, fa); err != nil {
		p.metrics.File("failed")
		log.Error("annotation failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, err
	}

	p.metrics.File("ok")
	log.Info("analyzed", zap.Duration("elapsed", time.Since(start)))
	return artifact.Assemble(path, fa.Functions), nil
}

// Result is the outcome of one file in a batch.
type Result struct {
	Path     string
	Artifact *artifact.Artifact
	Err      error
}

// AnalyzeBatch analyzes paths concurrently. Results keep input order and a
// failed file never affects the others. Cancelling ctx stops files that
// have not started.
func (p *Pipeline) AnalyzeBatch(ctx context.Context, paths []string) []Result {
	results := make([]Result, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, path := range paths {
		results[i].Path = path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Artifact, results[i].Err = p.AnalyzeFile(gctx, path)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Pipeline) read(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > p.maxFileSize {
		return nil, fmt.Errorf("%s: %w (%d > %d bytes)", path, ErrFileTooLarge, info.Size(), p.maxFileSize)
	}
	return os.ReadFile(path)
}
