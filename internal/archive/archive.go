// Package archive unpacks zipped register deliveries so that their XML
// records sit directly in the input directory.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/IBM/fp-go/v2/function"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/config"
	T "github.com/Qubut/IP-Claim/packages/dpma_processor/internal/typing"
)

type Unpacker struct {
	Cfg             config.Config
	DeleteAfter     bool
	UnpackedFiles   *atomic.Int64
	Logger          *zap.SugaredLogger
	Tracer          trace.Tracer
	Meter           metric.Meter
	progress        *progressbar.ProgressBar
	sessionDuration metric.Int64Histogram
	filesTotal      metric.Int64Counter
	zipsTotal       metric.Int64Counter
	zipsFailed      metric.Int64Counter
	bytesTotal      metric.Int64Counter
}

func NewUnpacker(
	cfg config.Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Unpacker, error) {
	u := &Unpacker{
		Cfg:           cfg,
		DeleteAfter:   cfg.Convert.DeleteAfterUnpack,
		UnpackedFiles: &atomic.Int64{},
		Logger:        logger,
		Tracer:        tracer,
		Meter:         meter,
	}

	var err error
	u.sessionDuration, err = meter.Int64Histogram(
		"unpack.session.duration",
		metric.WithDescription("Duration of the full unpack session"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	u.filesTotal, err = meter.Int64Counter(
		"unpack.files.total",
		metric.WithDescription("Total number of XML records unpacked"),
	)
	if err != nil {
		return nil, err
	}

	u.zipsTotal, err = meter.Int64Counter(
		"unpack.zips.total",
		metric.WithDescription("Number of zip archives processed"),
	)
	if err != nil {
		return nil, err
	}

	u.zipsFailed, err = meter.Int64Counter(
		"unpack.zips.failed",
		metric.WithDescription("Number of zip archives that failed to unpack"),
	)
	if err != nil {
		return nil, err
	}

	u.bytesTotal, err = meter.Int64Counter(
		"unpack.bytes.total",
		metric.WithDescription("Total bytes unpacked"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return u, nil
}

// UnpackAll writes the XML entries of every zip archive directly in dir into
// dir itself, descending into nested archives.
func (u *Unpacker) UnpackAll(ctx context.Context, dir string) IOE.IOEither[error, T.Unit] {
	return func() ET.Either[error, T.Unit] {
		ctx, span := u.Tracer.Start(ctx, "unpack.session", trace.WithAttributes(
			attribute.String("directory", dir),
			attribute.Bool("delete_after", u.DeleteAfter),
		))
		defer span.End()
		startTime := time.Now()
		u.UnpackedFiles.Store(0)
		status := "failed"
		defer func() {
			u.sessionDuration.Record(ctx, time.Since(startTime).Milliseconds(),
				metric.WithAttributes(attribute.String("status", status)),
			)
			u.finishProgress()
		}()

		res := u.unpackAll(ctx, dir)()
		if ET.IsLeft(res) {
			_, err := ET.UnwrapError(res)
			span.RecordError(err)
			u.Logger.Errorw("Unpacking failed", "dir", dir, "error", err)
			return res
		}
		status = "success"
		if u.UnpackedFiles.Load() == 0 {
			status = "empty"
		}
		u.Logger.Infow("Unpacking completed", "total_files", u.UnpackedFiles.Load())
		return res
	}
}

func (u *Unpacker) finishProgress() {
	if u.progress != nil {
		_ = u.progress.Finish()
		u.progress = nil
	}
}

func (u *Unpacker) unpackAll(ctx context.Context, dir string) IOE.IOEither[error, T.Unit] {
	return function.Pipe2(
		IOE.TryCatchError(func() ([]string, error) {
			return FindZipFiles(dir)
		}),
		IOE.Chain(func(zipFiles []string) IOE.IOEither[error, []T.Unit] {
			u.zipsTotal.Add(ctx, int64(len(zipFiles)))
			if len(zipFiles) == 0 {
				u.Logger.Infow("No zip files found in directory", "dir", dir)
				return IOE.Right[error]([]T.Unit{})
			}
			u.Logger.Infow("Found zip files to unpack", "count", len(zipFiles), "dir", dir)
			u.progress = progressbar.NewOptions(len(zipFiles),
				progressbar.OptionSetWriter(ProgressWriter(u.Cfg.Convert.Progress)),
				progressbar.OptionSetWidth(60),
				progressbar.OptionSetDescription("Unpacking archives..."),
				progressbar.OptionSetElapsedTime(true),
				progressbar.OptionThrottle(50*time.Millisecond),
			)
			return IOE.TraverseArray(func(zipPath string) IOE.IOEither[error, T.Unit] {
				select {
				case <-ctx.Done():
					return IOE.Left[T.Unit](ctx.Err())
				default:
					return u.unpackSingleZip(ctx, zipPath, dir)
				}
			})(zipFiles)
		}),
		IOE.Map[error](func(_ []T.Unit) T.Unit { return T.Unit{} }),
	)
}

func (u *Unpacker) unpackSingleZip(ctx context.Context, zipPath, destDir string) IOE.IOEither[error, T.Unit] {
	return IOE.TryCatchError(func() (T.Unit, error) {
		ctx, span := u.Tracer.Start(ctx, "unpack.zip", trace.WithAttributes(
			attribute.String("zip_path", zipPath),
		))
		defer span.End()

		r, err := zip.OpenReader(zipPath)
		if err != nil {
			u.zipsFailed.Add(ctx, 1)
			span.RecordError(err)
			return T.Unit{}, fmt.Errorf("failed to open zip %s: %w", zipPath, err)
		}
		defer r.Close()

		if err := u.unpackReader(ctx, &r.Reader, zipPath, destDir); err != nil {
			u.zipsFailed.Add(ctx, 1)
			span.RecordError(err)
			return T.Unit{}, err
		}
		if u.progress != nil {
			_ = u.progress.Add(1)
		}
		if u.DeleteAfter {
			if err := os.Remove(zipPath); err != nil {
				u.Logger.Warnw("Failed to delete zip file", "zip", zipPath, "error", err)
			} else {
				u.Logger.Infow("Deleted zip file", "zip", zipPath)
			}
		}
		return T.Unit{}, nil
	})
}

// unpackReader flattens entries to their base names, which also keeps them
// from escaping destDir. Only lower-case .xml entries are records, matching
// what convert picks up.
func (u *Unpacker) unpackReader(ctx context.Context, r *zip.Reader, source, destDir string) error {
	for _, f := range r.File {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if f.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(f.Name)
		ext := filepath.Ext(name)
		switch {
		case ext == ".xml":
			n, err := extractEntry(f, filepath.Join(destDir, name))
			if err != nil {
				return fmt.Errorf("failed to unpack %s from %s: %w", f.Name, source, err)
			}
			u.filesTotal.Add(ctx, 1)
			u.bytesTotal.Add(ctx, n)
			u.UnpackedFiles.Add(1)
			u.Logger.Debugw("File unpacked", "file", f.Name, "zip", source)
		case strings.EqualFold(ext, ".zip"):
			nested, err := openNested(f)
			if err != nil {
				return fmt.Errorf("failed to open nested zip %s in %s: %w", f.Name, source, err)
			}
			u.zipsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("type", "nested")))
			if err := u.unpackReader(ctx, nested, source+"!"+f.Name, destDir); err != nil {
				return err
			}
		}
	}
	return nil
}

func extractEntry(f *zip.File, destPath string) (int64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, rc)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

func openNested(f *zip.File) (*zip.Reader, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
}

// FindZipFiles lists the zip archives directly inside dir, sorted by name.
func FindZipFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var zipFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".zip") {
			zipFiles = append(zipFiles, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(zipFiles)
	return zipFiles, nil
}

// ProgressWriter is where progress bars render, io.Discard when disabled.
func ProgressWriter(enabled bool) io.Writer {
	if enabled {
		return os.Stdout
	}
	return io.Discard
}
