// Package postprocess aggregates a flat result table by postal code and city
// and renders the postal code chart.
package postprocess

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/aggregate"
	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/chart"
	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/config"
	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/models"
	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/table"
)

// Summary column names.
const (
	PLZColumn  = "PLZ"
	CityColumn = "City"
)

// Report lists what a run produced. Chart is empty when no chart was written.
type Report struct {
	Locations int
	ByPLZ     []models.AggregateRow
	ByCity    []models.AggregateRow
	ByPLZFile string
	CityFile  string
	ChartFile string
	ExcelFile string
}

type Postprocessor struct {
	Cfg        config.Config
	Aggregator *aggregate.Aggregator
	Renderer   *chart.Renderer
	Logger     *zap.SugaredLogger
	Tracer     trace.Tracer
	Meter      metric.Meter
	Mem        memory.Allocator

	csvOpts         table.CSVOptions
	readOpts        table.CSVOptions
	sessionDuration metric.Int64Histogram
	rowsTotal       metric.Int64Counter
	groupsTotal     metric.Int64Counter
	chartFailures   metric.Int64Counter
}

func NewPostprocessor(
	cfg config.Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Postprocessor, error) {
	opts, err := table.NewCSVOptions(cfg.CSV)
	if err != nil {
		return nil, err
	}
	readOpts, err := opts.WithEncoding(cfg.ReadEncoding())
	if err != nil {
		return nil, err
	}
	p := &Postprocessor{
		Cfg:        cfg,
		Aggregator: &aggregate.Aggregator{Layout: cfg.Registry.Layout(), Country: cfg.Postprocess.Country},
		Renderer:   &chart.Renderer{MinPatents: cfg.Postprocess.MinPatents},
		Logger:     logger,
		Tracer:     tracer,
		Meter:      meter,
		Mem:        memory.NewGoAllocator(),
		csvOpts:    opts,
		readOpts:   readOpts,
	}

	p.sessionDuration, err = meter.Int64Histogram(
		"postprocess.session.duration",
		metric.WithDescription("Duration of the aggregation run"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	p.rowsTotal, err = meter.Int64Counter(
		"postprocess.rows.total",
		metric.WithDescription("Rows read from the result table"),
	)
	if err != nil {
		return nil, err
	}

	p.groupsTotal, err = meter.Int64Counter(
		"postprocess.groups.total",
		metric.WithDescription("Summary rows written"),
	)
	if err != nil {
		return nil, err
	}

	p.chartFailures, err = meter.Int64Counter(
		"postprocess.chart.failed",
		metric.WithDescription("Chart renderings that failed"),
	)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// Run aggregates the flat CSV at csvPath. The summaries are written next to
// it, the chart to the configured chart path.
func (p *Postprocessor) Run(ctx context.Context, csvPath string) (Report, error) {
	runID := uuid.NewString()
	ctx, span := p.Tracer.Start(ctx, "postprocess.session", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("input", csvPath),
		attribute.String("country", p.Cfg.Postprocess.Country),
	))
	defer span.End()
	log := p.Logger.With("run_id", runID)
	startTime := time.Now()

	report, err := p.run(ctx, log, csvPath)
	status := "success"
	if err != nil {
		status = "failed"
		span.RecordError(err)
	}
	p.sessionDuration.Record(ctx, time.Since(startTime).Milliseconds(),
		metric.WithAttributes(attribute.String("status", status)),
	)
	return report, err
}

func (p *Postprocessor) run(ctx context.Context, log *zap.SugaredLogger, csvPath string) (Report, error) {
	flat, err := table.ReadCSVFile(csvPath, p.readOpts, p.Mem)
	if err != nil {
		return Report{}, fmt.Errorf("read %s: %w", csvPath, err)
	}
	defer flat.Release()
	p.rowsTotal.Add(ctx, int64(flat.NumRows()))
	if flat.NumRows() == 0 {
		return Report{}, &models.EmptyAggregationError{What: fmt.Sprintf("%s has no rows", csvPath)}
	}

	locs, err := p.Aggregator.Locations(flat)
	if err != nil {
		return Report{}, err
	}
	if len(locs) == 0 {
		log.Warnw("No rows match the inventor country", "country", p.Aggregator.Country, "input", csvPath)
	}
	log.Infow("Aggregating locations", "rows", flat.NumRows(), "locations", len(locs))

	dir := filepath.Dir(csvPath)
	report := Report{
		Locations: len(locs),
		ByPLZ:     aggregate.ByPostalCode(locs, p.Cfg.Postprocess.Placeholder),
		ByCity:    aggregate.ByCity(locs),
		ByPLZFile: filepath.Join(dir, p.Cfg.Postprocess.ByPLZFile),
		CityFile:  filepath.Join(dir, p.Cfg.Postprocess.ByCityFile),
	}

	byPLZ := aggregate.SummaryTable(report.ByPLZ, PLZColumn, CityColumn, p.Mem)
	defer byPLZ.Release()
	byCity := aggregate.SummaryTable(report.ByCity, CityColumn, PLZColumn, p.Mem)
	defer byCity.Release()

	if err := p.writeSummary(ctx, report.ByPLZFile, byPLZ); err != nil {
		return report, err
	}
	if err := p.writeSummary(ctx, report.CityFile, byCity); err != nil {
		return report, err
	}

	if p.Cfg.Postprocess.Excel {
		report.ExcelFile = filepath.Join(dir, p.Cfg.Postprocess.ExcelFile)
		err := table.WriteXLSXFile(report.ExcelFile,
			table.Sheet{Name: "by_plz", Table: byPLZ},
			table.Sheet{Name: "by_city", Table: byCity},
		)
		if err != nil {
			return report, err
		}
		log.Infow("Summary workbook written", "output", report.ExcelFile)
	}

	if len(locs) > 0 {
		report.ChartFile = p.renderChart(ctx, log, report.ByPLZ)
	}
	return report, nil
}

func (p *Postprocessor) writeSummary(ctx context.Context, path string, t *table.Table) error {
	_, span := p.Tracer.Start(ctx, "postprocess.write_summary", trace.WithAttributes(
		attribute.String("output", path),
		attribute.Int("rows", t.NumRows()),
	))
	defer span.End()
	if err := table.WriteCSVFile(path, t, p.csvOpts, p.Mem); err != nil {
		span.RecordError(err)
		return fmt.Errorf("write %s: %w", path, err)
	}
	p.groupsTotal.Add(ctx, int64(t.NumRows()))
	p.Logger.Infow("Summary written", "output", path, "rows", t.NumRows())
	return nil
}

// renderChart never fails the run; it returns the written path or "".
func (p *Postprocessor) renderChart(ctx context.Context, log *zap.SugaredLogger, rows []models.AggregateRow) string {
	_, span := p.Tracer.Start(ctx, "postprocess.chart")
	defer span.End()

	selected := chart.Select(rows, p.Renderer.MinPatents)
	span.SetAttributes(attribute.Int("bars", len(selected)))
	if len(selected) == 0 {
		log.Warnw("No postal code passes the chart threshold", "min_patents", p.Renderer.MinPatents)
	}
	path := p.Cfg.Postprocess.ChartFile
	if err := p.Renderer.RenderFile(path, rows); err != nil {
		span.RecordError(err)
		p.chartFailures.Add(ctx, 1)
		log.Errorw("Chart rendering failed", "output", path, "error", err)
		return ""
	}
	log.Infow("Chart written", "output", path, "bars", len(selected))
	return path
}
