package postprocess

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/IBM/fp-go/v2/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/config"
	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/models"
)

const flatHeader = ";Document_ID;Country;Date;Inventors_0_Name;Inventors_0_Address;Inventors_0_Country\n"

// UTF-8 encoded, as the convert stage writes it.
const flatCSV = flatHeader +
	"0;1;DE;20200101;A;10115 Berlin;DE\n" +
	"1;2;DE;20200101;B;10115 Berlin;DE\n" +
	"2;3;DE;20200101;C;1010 Wien;AT\n" +
	"3;4;DE;20200101;D;80333 München;DE\n" +
	"4;5;DE;20200101;E;Hauptstrasse 5;DE\n" +
	"5;6;DE;20200101;F;;\n"

func setup(t *testing.T, content string) (config.Config, string) {
	t.Helper()
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.Postprocess.ChartFile = filepath.Join(t.TempDir(), "plz_frequencies.html")

	path := filepath.Join(t.TempDir(), "result.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return cfg, path
}

func newPostprocessor(t *testing.T, cfg config.Config) *Postprocessor {
	t.Helper()
	p, err := NewPostprocessor(cfg,
		tracenoop.NewTracerProvider().Tracer("test"),
		zap.NewNop().Sugar(),
		metricnoop.NewMeterProvider().Meter("test"),
	)
	require.NoError(t, err)
	return p
}

func readString(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(raw)
}

func TestRunWritesSummaries(t *testing.T) {
	cfg, input := setup(t, flatCSV)
	cfg.Postprocess.MinPatents = 1

	report, err := newPostprocessor(t, cfg).Run(context.Background(), input)
	require.NoError(t, err)

	dir := filepath.Dir(input)
	assert.Equal(t, filepath.Join(dir, "by_plz.csv"), report.ByPLZFile)
	assert.Equal(t, filepath.Join(dir, "by_city.csv"), report.CityFile)
	assert.Equal(t, 4, report.Locations, "AT and inventor-less rows are dropped")

	assert.Equal(t, ";PLZ;Number of Patents;City\n"+
		"0;10115;2;Berlin\n"+
		"1;80333;1;M\xfcnchen\n"+
		"2;;1;5\n", readString(t, report.ByPLZFile))
	assert.Equal(t, ";City;Number of Patents;PLZ\n"+
		"0;5;1;\n"+
		"1;Berlin;2;10115\n"+
		"2;M\xfcnchen;1;80333\n", readString(t, report.CityFile))

	assert.Equal(t, cfg.Postprocess.ChartFile, report.ChartFile)
	assert.Contains(t, readString(t, report.ChartFile), "PLZ 10115")
	assert.Empty(t, report.ExcelFile)
}

func TestRunReadsLegacyInputEncoding(t *testing.T) {
	cfg, input := setup(t, ";Document_ID;Inventors_0_Address;Inventors_0_Country\n0;1;80333 M\xfcnchen;DE\n")
	cfg.Postprocess.InputEncoding = "ISO-8859-1"

	report, err := newPostprocessor(t, cfg).Run(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, report.ByCity, 1)
	assert.Equal(t, option.Some("München"), report.ByCity[0].Key)
}

func TestRunCountsOnlyConfiguredCountry(t *testing.T) {
	cfg, input := setup(t, flatCSV)
	cfg.Postprocess.Country = "AT"

	report, err := newPostprocessor(t, cfg).Run(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, report.ByPLZ, 1)
	assert.Equal(t, models.AggregateRow{Key: option.Some("1010"), Count: 1, Associated: "Wien"}, report.ByPLZ[0])
}

func TestRunNoMatchingRowsWritesHeaders(t *testing.T) {
	cfg, input := setup(t, flatCSV)
	cfg.Postprocess.Country = "FR"

	report, err := newPostprocessor(t, cfg).Run(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, ";PLZ;Number of Patents;City\n", readString(t, report.ByPLZFile))
	assert.Equal(t, ";City;Number of Patents;PLZ\n", readString(t, report.CityFile))
	assert.Empty(t, report.ChartFile)
	assert.NoFileExists(t, cfg.Postprocess.ChartFile)
}

func TestRunEmptyInput(t *testing.T) {
	cfg, input := setup(t, flatHeader)

	_, err := newPostprocessor(t, cfg).Run(context.Background(), input)
	var empty *models.EmptyAggregationError
	assert.True(t, errors.As(err, &empty))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(input), "by_plz.csv"))
}

func TestRunWithoutInventorColumns(t *testing.T) {
	cfg, input := setup(t, ";Document_ID;Country;Date\n0;1;DE;20200101\n")

	_, err := newPostprocessor(t, cfg).Run(context.Background(), input)
	var empty *models.EmptyAggregationError
	assert.True(t, errors.As(err, &empty))
}

func TestRunChartFailureDoesNotFail(t *testing.T) {
	cfg, input := setup(t, flatCSV)
	cfg.Postprocess.MinPatents = 0
	cfg.Postprocess.ChartFile = filepath.Join(t.TempDir(), "missing", "chart.html")

	report, err := newPostprocessor(t, cfg).Run(context.Background(), input)
	require.NoError(t, err)
	assert.Empty(t, report.ChartFile)
	assert.FileExists(t, report.ByPLZFile)
	assert.FileExists(t, report.CityFile)
}

func TestRunWritesWorkbook(t *testing.T) {
	cfg, input := setup(t, flatCSV)
	cfg.Postprocess.Excel = true

	report, err := newPostprocessor(t, cfg).Run(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(filepath.Dir(input), "summary.xlsx"), report.ExcelFile)

	f, err := excelize.OpenFile(report.ExcelFile)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"by_plz", "by_city"}, f.GetSheetList())

	rows, err := f.GetRows("by_plz")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"PLZ", "Number of Patents", "City"}, rows[0])
	assert.Equal(t, []string{"10115", "2", "Berlin"}, rows[1])
}

func TestRunMissingInput(t *testing.T) {
	cfg, _ := setup(t, flatCSV)
	_, err := newPostprocessor(t, cfg).Run(context.Background(), filepath.Join(t.TempDir(), "absent.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
