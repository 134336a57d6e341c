// Package pipeline orchestrates the monthly update: fetch each dataset
// family for the target period, enrich it, and reconcile it into the
// segment store.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/seayun/hdbmap/internal/config"
	"github.com/seayun/hdbmap/internal/dataset"
	"github.com/seayun/hdbmap/internal/period"
	"github.com/seayun/hdbmap/internal/records"
	"github.com/seayun/hdbmap/internal/store"
)

// Fetcher is the remote dataset client surface the pipeline needs.
type Fetcher interface {
	Fetch(ctx context.Context, datasetID string, p period.Period) (*dataset.Table, error)
	FetchAll(ctx context.Context, datasetID string) (*dataset.Table, error)
}

// StepResult holds the outcome of one family update.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full monthly run.
type Result struct {
	Period string
	Steps  []StepResult
}

// OK reports whether every step succeeded.
func (r *Result) OK() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return false
		}
	}
	return true
}

// Pipeline runs the per-month update across the three dataset families.
type Pipeline struct {
	cfg    *config.Config
	store  *store.Store
	src    Fetcher
	enrich *records.BuildingEnricher
	log    *zap.Logger
}

// New creates a pipeline.
func New(cfg *config.Config, st *store.Store, src Fetcher, geo records.Geocoder, log *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		store:  st,
		src:    src,
		enrich: records.NewBuildingEnricher(geo, log),
		log:    log,
	}
}

// Run updates all three families for one month. A failed step aborts only
// that family and leaves its store untouched; the other steps still run.
// Re-invoking the same month is the recovery path and is idempotent.
func (p *Pipeline) Run(ctx context.Context, month period.Period) *Result {
	r := &Result{Period: month.MonthLabel()}
	p.log.Info("updating datasets", zap.String("month", month.MonthLabel()))

	r.Steps = append(r.Steps, p.updateProperties(ctx, month))
	r.Steps = append(r.Steps, p.updatePrices(ctx, month))
	r.Steps = append(r.Steps, p.updateAggPrices(ctx, month))

	for _, s := range r.Steps {
		if s.Err != nil {
			p.log.Error("update step failed", zap.String("step", s.Name), zap.Error(s.Err))
		} else {
			p.log.Info("update step done", zap.String("step", s.Name), zap.String("summary", s.Summary))
		}
	}
	return r
}

func (p *Pipeline) updateProperties(ctx context.Context, month period.Period) StepResult {
	const name = "properties"

	table, err := p.src.Fetch(ctx, p.cfg.Source.Datasets.Properties, month)
	if err != nil {
		return StepResult{Name: name, Err: err}
	}

	raws := records.DecodeBuildings(table)
	if len(raws) == 0 {
		return StepResult{Name: name, Summary: "no new property rows for " + month.MonthLabel()}
	}

	enriched, dropped := p.enrich.Enrich(ctx, raws)

	existing, err := p.store.LoadBuildings()
	if err != nil {
		return StepResult{Name: name, Err: err}
	}

	merged := store.ReplaceByKey(existing, enriched)
	if err := p.store.SaveBuildings(merged); err != nil {
		return StepResult{Name: name, Err: err}
	}
	if err := p.store.WriteMetadata("properties", month.MonthLabel(), len(merged)); err != nil {
		return StepResult{Name: name, Err: err}
	}

	return StepResult{
		Name: name,
		Summary: fmt.Sprintf("%d fetched, %d enriched (%d dropped), %d total",
			len(raws), len(enriched), dropped, len(merged)),
	}
}

func (p *Pipeline) updatePrices(ctx context.Context, month period.Period) StepResult {
	const name = "prices"

	open := store.OpenSegment()
	if month.Year < open.StartYear {
		return StepResult{Name: name,
			Summary: fmt.Sprintf("year %d precedes the open segment, skipping", month.Year)}
	}

	datasetID, ok := p.cfg.PriceDatasetForYear(month.Year)
	if !ok {
		return StepResult{Name: name, Err: fmt.Errorf("no price dataset covers year %d", month.Year)}
	}

	table, err := p.src.Fetch(ctx, datasetID, month)
	if err != nil {
		return StepResult{Name: name, Err: err}
	}

	txs := records.DecodeTransactions(table.FilterMonth(month))
	if len(txs) == 0 {
		return StepResult{Name: name, Summary: "no transactions for " + month.MonthLabel()}
	}

	existing, err := p.store.LoadSegment(open)
	if err != nil {
		return StepResult{Name: name, Err: err}
	}

	merged := store.ReplaceByPeriod(existing, txs, month)
	if err := p.store.SaveSegment(open, merged); err != nil {
		return StepResult{Name: name, Err: err}
	}
	if err := p.store.WriteMetadata("prices_latest", month.MonthLabel(), len(merged)); err != nil {
		return StepResult{Name: name, Err: err}
	}

	return StepResult{
		Name:    name,
		Summary: fmt.Sprintf("%d transactions merged, %d total in open segment", len(txs), len(merged)),
	}
}

func (p *Pipeline) updateAggPrices(ctx context.Context, month period.Period) StepResult {
	const name = "agg_prices"

	quarter, err := period.NewQuarter(month.Year, period.QuarterOf(month.Month))
	if err != nil {
		return StepResult{Name: name, Err: err}
	}
	label := quarter.QuarterLabel()

	table, err := p.src.Fetch(ctx, p.cfg.Source.Datasets.AggPrices, quarter)
	if err != nil {
		return StepResult{Name: name, Err: err}
	}

	rows := records.DecodeAggPrices(table, label)
	if len(rows) == 0 {
		return StepResult{Name: name, Summary: "no aggregate rows for " + label}
	}

	existing, err := p.store.LoadAggPrices()
	if err != nil {
		return StepResult{Name: name, Err: err}
	}

	merged := store.ReplaceByLabel(existing, rows, label)
	if err := p.store.SaveAggPrices(merged); err != nil {
		return StepResult{Name: name, Err: err}
	}
	if err := p.store.WriteMetadata("agg_prices_latest", label, len(merged)); err != nil {
		return StepResult{Name: name, Err: err}
	}

	return StepResult{
		Name:    name,
		Summary: fmt.Sprintf("%d rows merged for %s, %d total", len(rows), label, len(merged)),
	}
}

// Backfill runs the monthly update for every month in [from, to]
// inclusive. A failed month is logged and does not stop later months.
func (p *Pipeline) Backfill(ctx context.Context, from, to period.Period) error {
	if from.Year > to.Year || (from.Year == to.Year && from.Month > to.Month) {
		return fmt.Errorf("backfill start %s is after end %s", from.MonthLabel(), to.MonthLabel())
	}

	cur := from
	for {
		if res := p.Run(ctx, cur); !res.OK() {
			p.log.Warn("backfill month had failures", zap.String("month", cur.MonthLabel()))
		}

		if cur.Year == to.Year && cur.Month == to.Month {
			return nil
		}
		if cur.Month == 12 {
			cur.Year, cur.Month = cur.Year+1, 1
		} else {
			cur.Month++
		}
	}
}

// InitSegments materializes any missing closed historical segment from a
// full dataset export. Run once at setup; existing segments are left
// untouched.
func (p *Pipeline) InitSegments(ctx context.Context) error {
	var failed int
	for _, seg := range store.Segments {
		if seg.IsOpen() || p.store.SegmentExists(seg) {
			continue
		}

		p.log.Info("initializing price segment", zap.String("segment", seg.Name))

		datasetID, ok := p.cfg.PriceDatasetForYear(seg.StartYear)
		if !ok {
			p.log.Error("no dataset covers segment", zap.String("segment", seg.Name))
			failed++
			continue
		}

		table, err := p.src.FetchAll(ctx, datasetID)
		if err != nil {
			p.log.Error("segment fetch failed", zap.String("segment", seg.Name), zap.Error(err))
			failed++
			continue
		}

		txs := records.DecodeTransactions(table.FilterYears(seg.StartYear, seg.EndYear))
		if err := p.store.SaveSegment(seg, txs); err != nil {
			p.log.Error("segment save failed", zap.String("segment", seg.Name), zap.Error(err))
			failed++
			continue
		}
		if err := p.store.WriteSegmentMetadata(seg, len(txs)); err != nil {
			p.log.Error("segment metadata write failed", zap.String("segment", seg.Name), zap.Error(err))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d segment(s) failed to initialize", failed)
	}
	return nil
}
