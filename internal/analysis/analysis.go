// Package analysis runs one coupling analysis end to end: resolve the
// changed paths, stream (or replay) the history, aggregate, and report.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/didiforget/internal/observability"
	"github.com/Sumatoshi-tech/didiforget/pkg/changeset"
	"github.com/Sumatoshi-tech/didiforget/pkg/coupling"
	"github.com/Sumatoshi-tech/didiforget/pkg/gitcli"
	"github.com/Sumatoshi-tech/didiforget/pkg/history"
	"github.com/Sumatoshi-tech/didiforget/pkg/historycache"
	"github.com/Sumatoshi-tech/didiforget/pkg/report"
)

// Repository is the git surface a run needs.
type Repository interface {
	changeset.Differ
	TopLevel(ctx context.Context) (string, error)
	RevParse(ctx context.Context, ref string) (string, error)
	LogNameOnly(ctx context.Context, ref string) iter.Seq2[string, error]
}

// Request describes one run.
type Request struct {
	// Cache stores the raw log between runs. Nil disables caching.
	Cache *historycache.Cache

	Branch string
	Report report.Options

	MaxCommitSize      int
	ExistenceCacheSize int
}

// Result is the outcome of a successful run.
type Result struct {
	Changed *changeset.Set
	Stats   *coupling.Stats
	Records []report.Record

	// CacheWriteErr is the contained error that kept the history from
	// being cached, if any.
	CacheWriteErr error

	Duration time.Duration

	CacheUsed bool
	CacheHit  bool

	// Restarted is set when a corrupt cache forced a second pass over the
	// live history.
	Restarted bool
}

// Runner executes requests against one repository.
type Runner struct {
	repo             Repository
	logger           *slog.Logger
	tracer           trace.Tracer
	metrics          *observability.AnalysisMetrics
	progressInterval int
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracer sets the tracer for run and stage spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithMetrics records every run. Nil disables recording.
func WithMetrics(metrics *observability.AnalysisMetrics) Option {
	return func(r *Runner) { r.metrics = metrics }
}

// WithProgressInterval sets the commits between progress records.
func WithProgressInterval(n int) Option {
	return func(r *Runner) { r.progressInterval = n }
}

// New creates a Runner.
func New(repo Repository, opts ...Option) *Runner {
	r := &Runner{
		repo:   repo,
		logger: slog.New(slog.DiscardHandler),
		tracer: nooptrace.NewTracerProvider().Tracer(""),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run executes req. Invalid report options fail before git is invoked.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	ctx, span := r.tracer.Start(ctx, "didiforget.run",
		trace.WithAttributes(attribute.String("branch", req.Branch), attribute.Bool("cache", req.Cache != nil)))
	defer span.End()

	res, err := r.run(ctx, req)

	stats := observability.RunStats{Err: err, Duration: time.Since(start)}
	if res != nil {
		res.Duration = stats.Duration
		stats.CacheUsed, stats.CacheHit = res.CacheUsed, res.CacheHit
		stats.Records = len(res.Records)

		if res.Stats != nil {
			stats.Commits, stats.Skipped = res.Stats.Commits, res.Stats.Skipped
		}
	}

	r.metrics.RecordRun(ctx, stats)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	span.SetAttributes(attribute.Int("records", len(res.Records)))

	return res, nil
}

func (r *Runner) run(ctx context.Context, req Request) (*Result, error) {
	err := req.Report.Validate()
	if err != nil {
		return nil, err
	}

	changed, err := r.resolve(ctx, req.Branch)
	if err != nil {
		return nil, err
	}

	res := &Result{Changed: changed, Records: []report.Record{}}

	if changed.Len() == 0 {
		r.logger.InfoContext(ctx, "no changed paths, nothing to analyse", "branch", req.Branch)

		return res, nil
	}

	stats, err := r.analyze(ctx, req, changed, res)
	if err != nil {
		return nil, err
	}

	res.Stats = stats

	_, span := r.tracer.Start(ctx, "didiforget.report")
	defer span.End()

	res.Records, err = report.Generate(stats, req.Report)
	if err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "report generated", "records", len(res.Records))

	return res, nil
}

func (r *Runner) resolve(ctx context.Context, branch string) (*changeset.Set, error) {
	ctx, span := r.tracer.Start(ctx, "didiforget.resolve")
	defer span.End()

	changed, err := changeset.Resolve(ctx, r.repo, branch)
	if err != nil {
		return nil, fmt.Errorf("resolve changed paths: %w", err)
	}

	span.SetAttributes(attribute.Int("changed", changed.Len()))
	r.logger.InfoContext(ctx, "changed paths resolved", "branch", branch, "count", changed.Len())

	return changed, nil
}

func (r *Runner) analyze(
	ctx context.Context, req Request, changed *changeset.Set, res *Result,
) (*coupling.Stats, error) {
	ctx, span := r.tracer.Start(ctx, "didiforget.history")
	defer span.End()

	root, err := r.repo.TopLevel(ctx)
	if err != nil {
		return nil, fmt.Errorf("locate working tree: %w", err)
	}

	filter, err := history.NewPathFilter(root, changed, req.ExistenceCacheSize, r.logger)
	if err != nil {
		return nil, err
	}

	analyzer := coupling.NewAnalyzer(coupling.Options{
		Logger:           r.logger,
		ProgressInterval: r.progressInterval,
		MaxCommitSize:    req.MaxCommitSize,
	})

	lines, err := r.lines(ctx, req, res)
	if err != nil {
		return nil, err
	}

	stats, err := analyzer.Analyze(ctx, history.Commits(gitcli.UnquotePaths(lines), filter), changed)
	if err != nil && res.CacheHit && errors.Is(err, historycache.ErrCacheRead) {
		r.logger.WarnContext(ctx, "history cache corrupt mid-replay, rebuilding",
			"path", req.Cache.Path(), "error", err)

		removeErr := req.Cache.Remove()
		if removeErr != nil {
			r.logger.WarnContext(ctx, "remove corrupt history cache", "error", removeErr)
		}

		res.Restarted = true

		lines, err = r.lines(ctx, req, res)
		if err != nil {
			return nil, err
		}

		stats, err = analyzer.Analyze(ctx, history.Commits(gitcli.UnquotePaths(lines), filter), changed)
	}

	if err != nil {
		return nil, err
	}

	if req.Cache != nil && !res.CacheHit {
		res.CacheWriteErr = req.Cache.WriteErr()
	}

	span.SetAttributes(
		attribute.Int("commits", stats.Commits),
		attribute.Int("disk_checks", filter.DiskChecks()),
		attribute.Bool("cache_hit", res.CacheHit),
	)

	return stats, nil
}

// lines picks the raw log source and records the cache outcome on res.
func (r *Runner) lines(ctx context.Context, req Request, res *Result) (iter.Seq2[string, error], error) {
	live := func(ctx context.Context) iter.Seq2[string, error] {
		return r.repo.LogNameOnly(ctx, req.Branch)
	}

	if req.Cache == nil {
		return live(ctx), nil
	}

	fingerprint, err := r.repo.RevParse(ctx, req.Branch)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", req.Branch, err)
	}

	seq, outcome := req.Cache.Lines(ctx, fingerprint, live)

	res.CacheUsed = true
	res.CacheHit = outcome == historycache.Hit

	return seq, nil
}
