package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"immimate/internal/clb"
	"immimate/internal/clb/metrics"
	"immimate/internal/clb/source"
	dErrors "immimate/pkg/domain-errors"
)

// TestOptions describes the selectable scores of one test.
type TestOptions struct {
	TestType         clb.TestType
	Family           clb.Family
	Ranged           bool
	RangeDescription string
	Skills           map[clb.Skill][]string
}

// Conversion is the result of a successful lookup.
type Conversion struct {
	TestType clb.TestType
	Skill    clb.Skill
	Score    string
	Level    clb.Level
}

// Service serves conversions against the table its source provides. It fails
// closed: with no valid table every call returns a configuration error.
type Service struct {
	source       source.Source
	cacheEnabled bool
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer

	mu        sync.Mutex
	validated *clb.Table
	engine    *clb.Engine
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCacheEnabled reports the source as cached in table metadata.
func WithCacheEnabled(enabled bool) Option {
	return func(s *Service) {
		s.cacheEnabled = enabled
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(src source.Source, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		source: src,
		logger: logger,
		tracer: otel.Tracer("immimate/clb"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CacheEnabled reports whether tables are served from a cache.
func (s *Service) CacheEnabled() bool {
	return s.cacheEnabled
}

// Engine returns an engine over the current table.
func (s *Service) Engine(ctx context.Context) (*clb.Engine, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveTableLoad(time.Since(start)) }()

	table, err := s.source.Load(ctx)
	if err != nil {
		s.metrics.IncrementTableLoad("error")
		s.logger.ErrorContext(ctx, "failed to load clb table", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "language test conversion table unavailable")
	}
	if table == nil {
		s.metrics.IncrementTableLoad("error")
		return clb.NewEngine(nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if table == s.validated && s.engine != nil {
		s.metrics.IncrementTableLoad("ok")
		return s.engine, nil
	}
	if err := table.Validate(); err != nil {
		s.metrics.IncrementTableLoad("invalid")
		s.logger.ErrorContext(ctx, "clb table failed validation", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "language test conversion table is invalid")
	}
	engine, err := clb.NewEngine(table)
	if err != nil {
		return nil, err
	}
	s.validated, s.engine = table, engine
	s.metrics.IncrementTableLoad("ok")
	s.logger.InfoContext(ctx, "clb table loaded",
		"last_updated", table.LastUpdated(),
		"fingerprint", table.Fingerprint(),
	)
	return engine, nil
}

// Tables returns the full conversion table.
func (s *Service) Tables(ctx context.Context) (*clb.Table, error) {
	ctx, span := s.tracer.Start(ctx, "clb.Tables")
	defer span.End()

	engine, err := s.Engine(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "table unavailable")
		return nil, err
	}
	return engine.Table(), nil
}

// Options lists the selectable scores for every test, in display order.
func (s *Service) Options(ctx context.Context) ([]TestOptions, error) {
	ctx, span := s.tracer.Start(ctx, "clb.Options")
	defer span.End()

	engine, err := s.Engine(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "table unavailable")
		return nil, err
	}
	table := engine.Table()
	all := table.Options()

	out := make([]TestOptions, 0, len(clb.AllTestTypes))
	for _, test := range clb.AllTestTypes {
		family, _ := clb.FamilyOf(test)
		out = append(out, TestOptions{
			TestType:         test,
			Family:           family,
			Ranged:           test.Ranged(),
			RangeDescription: table.RangeDescription(test),
			Skills:           all[test],
		})
	}
	return out, nil
}

// Convert validates the request and looks up the level. An unknown test or
// skill is a validation error; a score outside the table is a conversion miss.
func (s *Service) Convert(ctx context.Context, testType, skill string, raw clb.RawScore) (*Conversion, error) {
	ctx, span := s.tracer.Start(ctx, "clb.Convert", trace.WithAttributes(
		attribute.String("test_type", testType),
		attribute.String("skill", skill),
	))
	defer span.End()

	test, ok := clb.ParseTestType(testType)
	if !ok {
		s.metrics.IncrementConversion("unknown", "invalid")
		return nil, dErrors.New(dErrors.CodeValidation, "unsupported test type")
	}
	sk, ok := clb.ParseSkill(skill)
	if !ok {
		s.metrics.IncrementConversion(string(test), "invalid")
		return nil, dErrors.New(dErrors.CodeValidation, "unsupported skill")
	}
	if raw.IsZero() {
		s.metrics.IncrementConversion(string(test), "invalid")
		return nil, dErrors.New(dErrors.CodeValidation, "score is required")
	}

	engine, err := s.Engine(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "table unavailable")
		return nil, err
	}

	level, ok := engine.Convert(test, sk, raw)
	if !ok {
		s.metrics.IncrementConversion(string(test), "miss")
		span.SetAttributes(attribute.Bool("hit", false))
		s.logger.InfoContext(ctx, "score has no clb conversion",
			"test_type", test,
			"skill", sk,
			"score", raw.Value(),
		)
		return nil, dErrors.New(dErrors.CodeConversionMiss, "no CLB level for this score")
	}

	s.metrics.IncrementConversion(string(test), "hit")
	span.SetAttributes(attribute.Bool("hit", true), attribute.Int("clb_level", int(level)))
	return &Conversion{TestType: test, Skill: sk, Score: raw.Value(), Level: level}, nil
}
