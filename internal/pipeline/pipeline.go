// Package pipeline runs the load, classify, price and index phases in order
// and records every phase in the run ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tariffmaster/internal/index"
	"tariffmaster/internal/loader"
	applog "tariffmaster/internal/log"
	"tariffmaster/internal/pricing"
	"tariffmaster/internal/source"
	"tariffmaster/internal/store"

	"github.com/google/uuid"
)

// Phase names one step of the pipeline.
type Phase string

const (
	PhaseLoad     Phase = "load"
	PhaseClassify Phase = "classify"
	PhasePrice    Phase = "price"
	PhaseIndex    Phase = "index"
)

// PhaseError is a fatal failure of one phase. Nothing the phase wrote was
// committed.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s phase: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Config tunes the phases.
type Config struct {
	SourceDir     string
	BatchSize     int
	Workers       int
	SkipUnchanged bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces the clock used for ledger timestamps, calculation dates
// and trade code activity.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// Pipeline drives the phases over one store.
type Pipeline struct {
	store *store.Store
	cfg   Config
	now   func() time.Time
}

// New returns a Pipeline over s.
func New(s *store.Store, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{store: s, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Report collects the reports of a full run.
type Report struct {
	Load           loader.Report                `json:"load"`
	Classification pricing.ClassificationReport `json:"classification"`
	Prices         pricing.PriceReport          `json:"prices"`
	Index          index.Report                 `json:"index"`
}

// Run executes every phase in order. The first failing phase stops the run;
// the phases before it stay committed.
func (p *Pipeline) Run(ctx context.Context, loadMode loader.Mode, priceMode pricing.Mode) (Report, error) {
	var report Report
	var err error

	applog.Info(ctx, "pipeline started", "load_mode", loadMode, "price_mode", priceMode)
	if report.Load, err = p.Load(ctx, loadMode); err != nil {
		return report, err
	}
	if report.Classification, err = p.Classify(ctx); err != nil {
		return report, err
	}
	if report.Prices, err = p.CalculatePrices(ctx, priceMode); err != nil {
		return report, err
	}
	if report.Index, err = p.RebuildSearchIndex(ctx); err != nil {
		return report, err
	}
	applog.Info(ctx, "pipeline finished", "rows", report.Index.Rows)
	return report, nil
}

// Load ingests the release files found in the configured source directory.
func (p *Pipeline) Load(ctx context.Context, mode loader.Mode) (loader.Report, error) {
	return phase(ctx, p, PhaseLoad, string(mode), func(runID uuid.UUID) (loader.Report, error) {
		sources, err := source.Discover(p.cfg.SourceDir)
		if err != nil {
			return loader.Report{}, err
		}
		return loader.New(p.store, loader.Options{
			Mode:          mode,
			BatchSize:     p.cfg.BatchSize,
			Workers:       p.cfg.Workers,
			SkipUnchanged: p.cfg.SkipUnchanged,
			RunID:         runID,
		}).Load(ctx, sources)
	})
}

// Classify labels the branded packs without a sourced price.
func (p *Pipeline) Classify(ctx context.Context) (pricing.ClassificationReport, error) {
	return phase(ctx, p, PhaseClassify, "", func(uuid.UUID) (pricing.ClassificationReport, error) {
		return pricing.NewClassifier(p.store, p.cfg.BatchSize).Classify(ctx)
	})
}

// CalculatePrices runs the price inference engine.
func (p *Pipeline) CalculatePrices(ctx context.Context, mode pricing.Mode) (pricing.PriceReport, error) {
	return phase(ctx, p, PhasePrice, string(mode), func(uuid.UUID) (pricing.PriceReport, error) {
		engine := pricing.NewEngine(p.store, pricing.WithWorkers(p.cfg.Workers), pricing.WithClock(p.now))
		return engine.Calculate(ctx, mode)
	})
}

// RebuildSearchIndex replaces the unified index.
func (p *Pipeline) RebuildSearchIndex(ctx context.Context) (index.Report, error) {
	return phase(ctx, p, PhaseIndex, "", func(uuid.UUID) (index.Report, error) {
		builder := index.NewBuilder(p.store, index.WithBatchSize(p.cfg.BatchSize), index.WithClock(p.now))
		return builder.Rebuild(ctx)
	})
}

// phase runs fn and appends its outcome to the ledger.
func phase[R any](ctx context.Context, p *Pipeline, name Phase, mode string, fn func(runID uuid.UUID) (R, error)) (R, error) {
	runID := uuid.New()
	started := p.now()

	result, err := fn(runID)
	if err != nil {
		err = &PhaseError{Phase: name, Err: err}
	}

	_, recordErr := p.store.RecordRun(ctx, store.Run{
		ID:         runID,
		Phase:      string(name),
		Mode:       mode,
		Err:        err,
		Report:     result,
		StartedAt:  started,
		FinishedAt: p.now(),
	})
	if recordErr != nil {
		applog.Error(ctx, "recording run failed", "phase", name, "run_id", runID, "error", recordErr)
		if err == nil {
			err = &PhaseError{Phase: name, Err: recordErr}
		} else {
			err = errors.Join(err, recordErr)
		}
	}
	return result, err
}
