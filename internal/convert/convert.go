// Package convert turns a directory of register XML files into the flat
// result table.
package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	F "github.com/IBM/fp-go/v2/function"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/archive"
	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/config"
	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/extract"
	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/flatten"
	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/models"
	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/table"
	T "github.com/Qubut/IP-Claim/packages/dpma_processor/internal/typing"
)

type Converter struct {
	Cfg       config.Config
	Extractor *extract.Extractor
	Unpacker  *archive.Unpacker
	Logger    *zap.SugaredLogger
	Tracer    trace.Tracer
	Meter     metric.Meter
	Mem       memory.Allocator

	csvOpts         table.CSVOptions
	progress        *progressbar.ProgressBar
	extracted       *atomic.Int64
	sessionDuration metric.Int64Histogram
	fileDuration    metric.Int64Histogram
	xmlFilesTotal   metric.Int64Counter
	xmlFilesFailed  metric.Int64Counter
	rowsTotal       metric.Int64Counter
}

func NewConverter(
	cfg config.Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Converter, error) {
	e, err := extract.NewExtractor(cfg.Registry.Namespace)
	if err != nil {
		return nil, fmt.Errorf("init extractor: %w", err)
	}
	u, err := archive.NewUnpacker(cfg, tracer, logger, meter)
	if err != nil {
		return nil, fmt.Errorf("init unpacker: %w", err)
	}
	opts, err := table.NewCSVOptions(cfg.CSV)
	if err != nil {
		return nil, err
	}
	if opts, err = opts.WithEncoding(cfg.Convert.Encoding); err != nil {
		return nil, err
	}
	c := &Converter{
		Cfg:       cfg,
		Extractor: e,
		Unpacker:  u,
		Logger:    logger,
		Tracer:    tracer,
		Meter:     meter,
		Mem:       memory.NewGoAllocator(),
		csvOpts:   opts,
		extracted: &atomic.Int64{},
	}

	c.sessionDuration, err = meter.Int64Histogram(
		"convert.session.duration",
		metric.WithDescription("Duration of the full conversion"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	c.fileDuration, err = meter.Int64Histogram(
		"convert.file.duration",
		metric.WithDescription("Duration of extracting a single XML file"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	c.xmlFilesTotal, err = meter.Int64Counter(
		"convert.xml_files.total",
		metric.WithDescription("Number of XML files found"),
	)
	if err != nil {
		return nil, err
	}

	c.xmlFilesFailed, err = meter.Int64Counter(
		"convert.xml_files.failed",
		metric.WithDescription("Number of XML files that could not be extracted"),
	)
	if err != nil {
		return nil, err
	}

	c.rowsTotal, err = meter.Int64Counter(
		"convert.rows.total",
		metric.WithDescription("Rows written to the result table"),
	)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Convert extracts every XML file directly in dir, in name order, and writes
// the flat table to the configured output file inside dir. It returns the
// path of the written CSV.
func (c *Converter) Convert(ctx context.Context, dir string) IOE.IOEither[error, string] {
	return func() ET.Either[error, string] {
		runID := uuid.NewString()
		ctx, span := c.Tracer.Start(ctx, "convert.session", trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.String("directory", dir),
			attribute.Int("workers", c.Cfg.Convert.Workers),
		))
		defer span.End()
		log := c.Logger.With("run_id", runID)
		startTime := time.Now()

		res := F.Pipe3(
			c.unpack(ctx, dir),
			IOE.Chain(func(_ bool) IOE.IOEither[error, []string] {
				return IOE.TryCatchError(func() ([]string, error) {
					return FindXMLFiles(dir)
				})
			}),
			IOE.Chain(func(files []string) IOE.IOEither[error, []models.PatentRecord] {
				c.xmlFilesTotal.Add(ctx, int64(len(files)))
				if len(files) == 0 {
					return IOE.Left[[]models.PatentRecord](error(&models.EmptyAggregationError{
						What: fmt.Sprintf("no XML files in %s", dir),
					}))
				}
				log.Infow("Found XML files", "count", len(files), "dir", dir)
				return IOE.TryCatchError(func() ([]models.PatentRecord, error) {
					return c.extractAll(ctx, files)
				})
			}),
			IOE.Chain(func(records []models.PatentRecord) IOE.IOEither[error, string] {
				return IOE.TryCatchError(func() (string, error) {
					return c.write(ctx, dir, records)
				})
			}),
		)()

		status := "success"
		if ET.IsLeft(res) {
			_, err := ET.UnwrapError(res)
			span.RecordError(err)
			status = "failed"
			log.Errorw("Conversion failed", "dir", dir, "error", err)
		} else {
			out, _ := ET.UnwrapError(res)
			log.Infow("Conversion completed", "output", out, "records", c.extracted.Load())
		}
		c.sessionDuration.Record(ctx, time.Since(startTime).Milliseconds(),
			metric.WithAttributes(attribute.String("status", status)),
		)
		return res
	}
}

func (c *Converter) unpack(ctx context.Context, dir string) IOE.IOEither[error, bool] {
	if !c.Cfg.Convert.Unpack {
		return IOE.Right[error](false)
	}
	return F.Pipe1(
		c.Unpacker.UnpackAll(ctx, dir),
		IOE.Map[error](func(_ T.Unit) bool { return true }),
	)
}

// extractAll keeps the input order of files whatever the number of workers.
func (c *Converter) extractAll(ctx context.Context, files []string) ([]models.PatentRecord, error) {
	c.extracted.Store(0)
	c.progress = progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(archive.ProgressWriter(c.Cfg.Convert.Progress)),
		progressbar.OptionSetWidth(60),
		progressbar.OptionSetDescription("Extracting XML files..."),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(50*time.Millisecond),
	)
	defer func() {
		_ = c.progress.Finish()
		c.progress = nil
	}()

	records := make([]models.PatentRecord, len(files))
	if c.Cfg.Convert.Workers <= 1 {
		for i, path := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rec, err := c.extractOne(ctx, path)
			if err != nil {
				return nil, err
			}
			records[i] = rec
		}
		return records, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Cfg.Convert.Workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := c.extractOne(gctx, path)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Converter) extractOne(ctx context.Context, path string) (models.PatentRecord, error) {
	ctx, span := c.Tracer.Start(ctx, "convert.xml_file", trace.WithAttributes(
		attribute.String("xml_path", path),
	))
	defer span.End()
	start := time.Now()

	rec, err := ET.UnwrapError(c.Extractor.ExtractFile(path)())
	status := "success"
	if err != nil {
		status = "failed"
		span.RecordError(err)
		c.xmlFilesFailed.Add(ctx, 1)
	} else {
		c.extracted.Add(1)
	}
	c.fileDuration.Record(ctx, time.Since(start).Milliseconds(),
		metric.WithAttributes(attribute.String("status", status)),
	)
	_ = c.progress.Add(1)
	if err != nil {
		return models.PatentRecord{}, err
	}
	c.Logger.Debugw("Extracted record", "file", path, "document_id", rec.DocumentID)
	return rec, nil
}

func (c *Converter) write(ctx context.Context, dir string, records []models.PatentRecord) (string, error) {
	_, span := c.Tracer.Start(ctx, "convert.write")
	defer span.End()

	t := flatten.Flatten(records, c.Cfg.Registry.Layout(), c.Mem)
	defer t.Release()

	out := filepath.Join(dir, c.Cfg.Convert.OutputFile)
	if err := table.WriteCSVFile(out, t, c.csvOpts, c.Mem); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	c.rowsTotal.Add(ctx, int64(t.NumRows()))
	span.SetAttributes(
		attribute.Int("rows", t.NumRows()),
		attribute.Int("columns", len(t.Columns())),
	)

	if c.Cfg.Convert.Parquet {
		pq := filepath.Join(dir, c.Cfg.Convert.ParquetFile)
		if err := table.WriteParquetFile(pq, t); err != nil {
			span.RecordError(err)
			return "", fmt.Errorf("write %s: %w", pq, err)
		}
		c.Logger.Infow("Parquet export written", "output", pq)
	}
	return out, nil
}

// FindXMLFiles lists the files directly inside dir matching the
// case-sensitive pattern *.xml, sorted by name. Symlinks are followed;
// hidden files and directories are skipped.
func FindXMLFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if ok, _ := filepath.Match("*.xml", name); !ok {
			continue
		}
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}
