package lookup

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/jobmatch/internal/metrics"
	"github.com/spigell/jobmatch/internal/profile"
)

// GuardConfig configures rate limiting and circuit breaking for one service.
type GuardConfig struct {
	// RatePerSecond limits outgoing calls. Zero disables limiting.
	RatePerSecond float64 `mapstructure:"rate-per-second"`
	Burst         int     `mapstructure:"burst"`

	// FailureThreshold is the number of consecutive failures before the breaker opens.
	FailureThreshold uint32        `mapstructure:"failure-threshold"`
	MaxRequests      uint32        `mapstructure:"max-requests"`
	Interval         time.Duration `mapstructure:"interval"`
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultGuardConfig returns the defaults used when nothing is configured.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RatePerSecond:    0,
		Burst:            1,
		FailureThreshold: 5,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
	}
}

// Guard protects calls to a single external service.
type Guard struct {
	service string
	breaker *gobreaker.CircuitBreaker[any]
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewGuard(service string, cfg GuardConfig, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultGuardConfig().FailureThreshold
	}

	g := &Guard{service: service, logger: logger.With(zap.String("service", service))}
	if cfg.RatePerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(cfg.Burst, 1))
	}

	g.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        service,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, ErrNoData) ||
				errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			g.logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return g
}

// State returns the current breaker state.
func (g *Guard) State() gobreaker.State {
	return g.breaker.State()
}

func guarded[T any](ctx context.Context, g *Guard, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return zero, err
		}
	}

	res, err := g.breaker.Execute(func() (any, error) {
		return fn(ctx)
	})
	metrics.RecordUpstream(g.service, err)

	switch {
	case err == nil:
		return res.(T), nil
	case errors.Is(err, ErrNoData), ctx.Err() != nil:
		return zero, err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		g.logger.Debug("call rejected by circuit breaker", zap.String("op", op))
	}

	return zero, &UpstreamServiceError{Service: g.service, Op: op, Err: err}
}

type guardedEmbedder struct {
	inner Embedder
	guard *Guard
}

type guardedBatchEmbedder struct {
	guardedEmbedder
	batch BatchEmbedder
}

// GuardEmbedder wraps an embedder so failures surface as UpstreamServiceError.
// Batch support of the inner embedder is preserved.
func GuardEmbedder(e Embedder, g *Guard) Embedder {
	base := guardedEmbedder{inner: e, guard: g}
	if b, ok := e.(BatchEmbedder); ok {
		return &guardedBatchEmbedder{guardedEmbedder: base, batch: b}
	}
	return &base
}

func (e *guardedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return guarded(ctx, e.guard, "embed", func(ctx context.Context) ([]float32, error) {
		return e.inner.Embed(ctx, text)
	})
}

func (e *guardedBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return guarded(ctx, e.guard, "embed_batch", func(ctx context.Context) ([][]float32, error) {
		return e.batch.EmbedBatch(ctx, texts)
	})
}

type guardedDistancer struct {
	inner Distancer
	guard *Guard
}

func GuardDistancer(d Distancer, g *Guard) Distancer {
	return &guardedDistancer{inner: d, guard: g}
}

func (d *guardedDistancer) Distance(ctx context.Context, a, b profile.Location) (float64, error) {
	return guarded(ctx, d.guard, "distance", func(ctx context.Context) (float64, error) {
		return d.inner.Distance(ctx, a, b)
	})
}

type guardedTaxonomy struct {
	inner Taxonomy
	guard *Guard
}

func GuardTaxonomy(t Taxonomy, g *Guard) Taxonomy {
	return &guardedTaxonomy{inner: t, guard: g}
}

func (t *guardedTaxonomy) MapSkill(ctx context.Context, name string) (string, error) {
	return guarded(ctx, t.guard, "map_skill", func(ctx context.Context) (string, error) {
		return t.inner.MapSkill(ctx, name)
	})
}

func (t *guardedTaxonomy) MapTitle(ctx context.Context, title string) (string, error) {
	return guarded(ctx, t.guard, "map_title", func(ctx context.Context) (string, error) {
		return t.inner.MapTitle(ctx, title)
	})
}

// Guarded wraps every service in the bundle with its own guard.
func Guarded(l Lookups, cfg GuardConfig, logger *zap.Logger) Lookups {
	return Lookups{
		Embedder:  GuardEmbedder(l.Embedder, NewGuard("embedder", cfg, logger)),
		Distancer: GuardDistancer(l.Distancer, NewGuard("distancer", cfg, logger)),
		Taxonomy:  GuardTaxonomy(l.Taxonomy, NewGuard("taxonomy", cfg, logger)),
	}
}
