package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/phobologic/gentleman/internal/metrics"
)

// WithRateLimit paces round-trips through limiter. Each attempt consumes one
// token; waiting honors ctx.
func WithRateLimit(limiter *rate.Limiter) Middleware {
	return func(next Completer) Completer {
		if limiter == nil {
			return next
		}
		return CompleterFunc(func(ctx context.Context, req Request) (string, error) {
			if err := limiter.Wait(ctx); err != nil {
				return "", err
			}
			return next.Complete(ctx, req)
		})
	}
}

// WithLogging logs each round-trip at debug level and failures at warn.
func WithLogging(logger *zap.Logger) Middleware {
	return func(next Completer) Completer {
		if logger == nil {
			return next
		}
		return CompleterFunc(func(ctx context.Context, req Request) (string, error) {
			start := time.Now()
			answer, err := next.Complete(ctx, req)
			fields := []zap.Field{
				zap.String("model", req.Model),
				zap.Int("system_messages", len(req.System)),
				zap.Int("prompt_bytes", len(req.User)),
				zap.Duration("elapsed", time.Since(start)),
			}
			if err != nil {
				logger.Warn("llm request failed", append(fields, zap.Error(err))...)
				return answer, err
			}
			logger.Debug("llm request", append(fields, zap.Int("answer_bytes", len(answer)))...)
			return answer, nil
		})
	}
}

// WithMetrics records call counts and latency under provider.
func WithMetrics(c *metrics.Collectors, provider string) Middleware {
	return func(next Completer) Completer {
		if c == nil {
			return next
		}
		return CompleterFunc(func(ctx context.Context, req Request) (string, error) {
			start := time.Now()
			answer, err := next.Complete(ctx, req)
			status := "success"
			if err != nil {
				status = Classify(err).String()
			}
			c.ObserveLLMCall(provider, status, time.Since(start))
			return answer, err
		})
	}
}
