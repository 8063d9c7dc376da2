package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	ET "github.com/IBM/fp-go/v2/either"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/config"
)

func zipBytes(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newUnpacker(t *testing.T, deleteAfter bool) *Unpacker {
	t.Helper()
	cfg := config.Config{Convert: config.Convert{DeleteAfterUnpack: deleteAfter}}
	u, err := NewUnpacker(cfg,
		tracenoop.NewTracerProvider().Tracer("test"),
		zap.NewNop().Sugar(),
		metricnoop.NewMeterProvider().Meter("test"),
	)
	require.NoError(t, err)
	return u
}

func TestUnpackAllFlattensXMLEntries(t *testing.T) {
	dir := t.TempDir()
	nested := zipBytes(t, map[string][]byte{"inner/DE3.xml": []byte("<c/>")})
	outer := zipBytes(t, map[string][]byte{
		"2010/DE1.xml": []byte("<a/>"),
		"2011/DE2.xml": []byte("<b/>"),
		"2012/DE4.XML": []byte("<d/>"),
		"readme.txt":   []byte("skip"),
		"batch.zip":    nested,
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "delivery.zip"), outer, 0o644))

	u := newUnpacker(t, false)
	res := u.UnpackAll(context.Background(), dir)()
	require.True(t, ET.IsRight(res))

	for name, want := range map[string]string{"DE1.xml": "<a/>", "DE2.xml": "<b/>", "DE3.xml": "<c/>"} {
		got, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Equal(t, want, string(got))
	}
	assert.NoFileExists(t, filepath.Join(dir, "readme.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "DE4.XML"))
	assert.FileExists(t, filepath.Join(dir, "delivery.zip"))
	assert.EqualValues(t, 3, u.UnpackedFiles.Load())
}

func TestUnpackAllDeletesArchives(t *testing.T) {
	dir := t.TempDir()
	archive := zipBytes(t, map[string][]byte{"DE1.xml": []byte("<a/>")})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "delivery.ZIP"), archive, 0o644))

	res := newUnpacker(t, true).UnpackAll(context.Background(), dir)()
	require.True(t, ET.IsRight(res))
	assert.NoFileExists(t, filepath.Join(dir, "delivery.ZIP"))
	assert.FileExists(t, filepath.Join(dir, "DE1.xml"))
}

func TestUnpackAllRejectsCorruptArchive(t *testing.T) {
	dir := t.TempDir()
	good := zipBytes(t, map[string][]byte{"DE1.xml": []byte("<a/>")})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.zip"), good, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.zip"), []byte("not a zip"), 0o644))

	reader := sdkmetric.NewManualReader()
	u, err := NewUnpacker(config.Config{},
		tracenoop.NewTracerProvider().Tracer("test"),
		zap.NewNop().Sugar(),
		sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"),
	)
	require.NoError(t, err)

	_, err = ET.UnwrapError(u.UnpackAll(context.Background(), dir)())
	assert.ErrorContains(t, err, "broken.zip")
	assert.Nil(t, u.progress, "progress bar is finished on failure")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Equal(t, []string{"failed"}, sessionStatuses(t, rm))
}

func sessionStatuses(t *testing.T, rm metricdata.ResourceMetrics) []string {
	t.Helper()
	var statuses []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "unpack.session.duration" {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[int64])
			require.True(t, ok)
			for _, dp := range hist.DataPoints {
				v, _ := dp.Attributes.Value("status")
				statuses = append(statuses, v.AsString())
			}
		}
	}
	return statuses
}

func TestFindZipFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.zip", "a.zip", "c.xml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "d.zip"), 0o755))

	files, err := FindZipFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.zip"), filepath.Join(dir, "b.zip")}, files)
}
