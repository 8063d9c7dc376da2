package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal"
	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/config"
	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/telemetry"
)

var (
	cfgFile  string
	cfg      config.Config
	logger   *zap.SugaredLogger
	tracer   trace.Tracer
	meter    metric.Meter
	shutdown func(context.Context) error
	services *internal.Services
	Version  = "dev" // Set at build time: go build -ldflags "-X github.com/Qubut/IP-Claim/packages/dpma_processor/cmd.Version=v1.0.0"
)

var RootCmd = &cobra.Command{
	Use:           "dpma-processor",
	Short:         "DPMA patent register processor",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile, cmd.Root().PersistentFlags())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logDir := cfg.Log.Dir
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}

		logFile := filepath.Join(logDir,
			fmt.Sprintf("dpma-processor[%s].log", time.Now().Format("20060102-150405")))

		teleCfg := telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Exporter:    cfg.Telemetry.Exporter,
			Endpoint:    cfg.Telemetry.Endpoint,
			Protocol:    cfg.Telemetry.Protocol,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     cfg.Telemetry.Headers,
			LogFile:     logFile,
			LogLevel:    cfg.Log.Level,
			Console:     cfg.Log.Console,
			Version:     Version,
		}
		tracer, meter, logger, shutdown, err = telemetry.InitOTEL(teleCfg)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		services, err = internal.InitServices(cfg, tracer, logger, meter)
		if err != nil {
			return fmt.Errorf("init services: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdown != nil {
			if err := shutdown(context.Background()); err != nil {
				logger.Errorw("shutdown error", "err", err)
				return err
			}
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of dpma-processor",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config operations",
}

var printConfigCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the current loaded configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "Path to config file (yaml/json/toml)")

	// Dotted names map onto config keys, "-" becomes "_".
	type flagDef struct {
		name, def, usage string
	}
	flags := []flagDef{
		{"log.level", "info", "Log level (debug/info/warn/error)"},
		{"log.dir", "logs", "Directory for rotated JSON logs"},
		{"log.console", "true", "Mirror logs to stderr"},
		{"telemetry.exporter", "none", "Telemetry exporter (none|stdout|otlp)"},
		{"telemetry.endpoint", "localhost:4317", "OTLP endpoint (host:port)"},
		{"telemetry.protocol", "grpc", "OTLP protocol (grpc|http)"},
		{"telemetry.insecure", "true", "Allow insecure OTLP connection"},
		{"telemetry.service-name", "dpma-processor", "Service name for telemetry"},
		{"registry.namespace", "http://www.dpma.de/standards/XMLSchema/DE-PATGBM-RegisterExt", "Register XML namespace"},
		{"csv.delimiter", ";", "CSV delimiter"},
		{"csv.encoding", "ISO-8859-1", "Summary CSV character encoding (IANA name)"},
		{"convert.output-file", "result.csv", "Result CSV name inside the patents folder"},
		{"convert.encoding", "UTF-8", "Result CSV character encoding (IANA name)"},
		{"convert.workers", "1", "Concurrent XML extractions"},
		{"convert.progress", "true", "Show progress bars"},
		{"convert.unpack", "false", "Unpack zip archives in the patents folder first"},
		{"convert.delete-after-unpack", "false", "Delete archives after unpacking"},
		{"convert.parquet", "false", "Also write the result as Parquet"},
		{"convert.parquet-file", "result.parquet", "Parquet file name inside the patents folder"},
		{"postprocess.input-encoding", "", "Encoding of the CSV to postprocess, convert.encoding when empty"},
		{"postprocess.country", "DE", "First inventor country to aggregate"},
		{"postprocess.min-patents", "25", "Chart only postal codes with more patents than this"},
		{"postprocess.placeholder", "Kein Stadtname!", "City text for postal codes without a city"},
		{"postprocess.by-plz-file", "by_plz.csv", "Postal code summary file name"},
		{"postprocess.by-city-file", "by_city.csv", "City summary file name"},
		{"postprocess.chart-file", "plz_frequencies.html", "Chart output path"},
		{"postprocess.excel", "false", "Also write a summary workbook"},
		{"postprocess.excel-file", "summary.xlsx", "Summary workbook file name"},
	}
	for _, f := range flags {
		RootCmd.PersistentFlags().String(f.name, f.def, f.usage)
	}

	configCmd.AddCommand(printConfigCmd)

	RootCmd.AddCommand(unpackCmd)
	RootCmd.AddCommand(convertCmd)
	RootCmd.AddCommand(postprocessCmd)
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(configCmd)
}
