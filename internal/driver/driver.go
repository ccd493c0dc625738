// Package driver sequences an external research computation into discrete,
// observable phases and persists the completed result exactly once.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ReportSaver is the slice of the history store the driver needs.
type ReportSaver interface {
	SaveReport(query, body string) (int64, error)
}

// Driver runs research queries to completion. A Driver is cheap and
// stateless across runs; the per-run state lives on the Run handle.
type Driver struct {
	researcher Researcher
	store      ReportSaver
	log        *slog.Logger
	onProgress func(Progress)
}

// Option configures a Driver.
type Option func(*Driver)

// WithProgressFunc registers a callback invoked after every progress change.
func WithProgressFunc(fn func(Progress)) Option {
	return func(d *Driver) { d.onProgress = fn }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// New creates a Driver over the given researcher and store.
func New(researcher Researcher, store ReportSaver, opts ...Option) *Driver {
	d := &Driver{
		researcher: researcher,
		store:      store,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Progress allocation: structure generation owns 0–20, the paragraph loop
// owns 20–80 in equal per-paragraph shares (half after the initial search,
// the rest after reflection), synthesis ends at 90 and persistence at 100.
const (
	fractionStructure = 20
	fractionLoopSpan  = 60
	fractionReport    = 90
	fractionDone      = 100
)

func paragraphMidpoint(i, n int) int {
	return fractionStructure + int((float64(i)+0.5)/float64(n)*fractionLoopSpan)
}

func paragraphEndpoint(i, n int) int {
	return fractionStructure + int(float64(i+1)/float64(n)*fractionLoopSpan)
}

// Run executes one research run to completion on the calling goroutine and
// returns its handle. A failure in any research phase aborts the run with no
// partial persistence; only the final save is degraded to a warning, in
// which case the returned run still carries the report.
func (d *Driver) Run(ctx context.Context, query string) (*Run, error) {
	run := &Run{
		Token:     uuid.New().String(),
		Query:     query,
		StartedAt: time.Now().UTC(),
	}

	d.advance(run, PhaseInit, 10, "initializing research")

	sections, err := d.researcher.GenerateStructure(ctx, query)
	if err != nil {
		return nil, d.fail(run, fmt.Errorf("generating report structure: %w", err))
	}
	if len(sections) == 0 {
		return nil, d.fail(run, fmt.Errorf("report structure is empty"))
	}
	d.advance(run, PhaseStructure, fractionStructure, "report structure generated")

	n := len(sections)
	for i, section := range sections {
		detail := fmt.Sprintf("processing paragraph %d/%d: %s", i+1, n, section.Title)
		d.advance(run, PhaseSearching, run.Progress().Fraction, detail)

		if err := d.researcher.SearchAndSummarize(ctx, i); err != nil {
			return nil, d.fail(run, fmt.Errorf("searching paragraph %d (%s): %w", i+1, section.Title, err))
		}
		d.advance(run, PhaseSearching, paragraphMidpoint(i, n), detail)

		if err := d.researcher.Reflect(ctx, i); err != nil {
			return nil, d.fail(run, fmt.Errorf("reflecting on paragraph %d (%s): %w", i+1, section.Title, err))
		}
		d.advance(run, PhaseReflecting, paragraphEndpoint(i, n), detail)
	}

	report, err := d.researcher.Synthesize(ctx)
	if err != nil {
		return nil, d.fail(run, fmt.Errorf("generating final report: %w", err))
	}
	d.advance(run, PhaseReport, fractionReport, "final report generated")

	run.mu.Lock()
	run.report = report
	run.sections = d.researcher.Sections()
	run.mu.Unlock()

	// Exactly one save per run. Failure here degrades to a warning: the
	// in-memory result is still delivered to the caller.
	id, err := d.store.SaveReport(query, report)
	if err != nil {
		d.log.Warn("saving report to history failed", "query", query, "error", err)
		run.mu.Lock()
		run.saveErr = err
		run.mu.Unlock()
	} else {
		run.mu.Lock()
		run.reportID = id
		run.mu.Unlock()
		d.advance(run, PhaseSaved, fractionDone, "report saved to history")
	}

	d.advance(run, PhaseDone, fractionDone, "research complete")
	run.mu.Lock()
	run.finishedAt = time.Now().UTC()
	run.mu.Unlock()

	return run, nil
}

func (d *Driver) advance(run *Run, phase Phase, fraction int, detail string) {
	p := run.set(phase, fraction, detail)
	if d.onProgress != nil {
		d.onProgress(p)
	}
}

// fail marks the run failed and wraps the cause into the single user-facing
// run error.
func (d *Driver) fail(run *Run, err error) error {
	run.set(PhaseFailed, run.Progress().Fraction, err.Error())
	return fmt.Errorf("research run failed: %w", err)
}
