package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/models"
)

type Config struct {
	Log         Log         `mapstructure:"log"         validate:"required"`
	Telemetry   Telemetry   `mapstructure:"telemetry"   validate:"required"`
	Registry    Registry    `mapstructure:"registry"    validate:"required"`
	CSV         CSV         `mapstructure:"csv"         validate:"required"`
	Convert     Convert     `mapstructure:"convert"`
	Postprocess Postprocess `mapstructure:"postprocess"`
}

type Log struct {
	Level   string `mapstructure:"level"   validate:"required,oneof=debug info warn error"`
	Dir     string `mapstructure:"dir"`
	Console bool   `mapstructure:"console"`
}

type Telemetry struct {
	Exporter    string            `mapstructure:"exporter"     validate:"oneof=none stdout otlp"`
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol"     validate:"omitempty,oneof=grpc http"`
	Insecure    bool              `mapstructure:"insecure"`
	Headers     map[string]string `mapstructure:"headers"`
	ServiceName string            `mapstructure:"service_name" validate:"required"`
}

// Registry describes the register XML schema and the flat table's column names.
type Registry struct {
	Namespace  string  `mapstructure:"namespace"  validate:"required,uri"`
	Columns    Columns `mapstructure:"columns"    validate:"required"`
	Applicants string  `mapstructure:"applicants" validate:"required"`
	Inventors  string  `mapstructure:"inventors"  validate:"required"`
}

type Columns struct {
	DocumentID     string `mapstructure:"document_id"     validate:"required"`
	Country        string `mapstructure:"country"         validate:"required"`
	Date           string `mapstructure:"date"            validate:"required"`
	Name           string `mapstructure:"name"            validate:"required"`
	Address        string `mapstructure:"address"         validate:"required"`
	AddressCountry string `mapstructure:"address_country" validate:"required"`
}

type CSV struct {
	Delimiter string `mapstructure:"delimiter"  validate:"required,len=1"`
	Encoding  string `mapstructure:"encoding"   validate:"required"`
	NullValue string `mapstructure:"null_value"`
}

type Convert struct {
	OutputFile        string `mapstructure:"output_file"         validate:"required"`
	Encoding          string `mapstructure:"encoding"            validate:"required"`
	Workers           int    `mapstructure:"workers"             validate:"min=1,max=64"`
	Progress          bool   `mapstructure:"progress"`
	Unpack            bool   `mapstructure:"unpack"`
	DeleteAfterUnpack bool   `mapstructure:"delete_after_unpack"`
	Parquet           bool   `mapstructure:"parquet"`
	ParquetFile       string `mapstructure:"parquet_file"        validate:"required_if=Parquet true"`
}

type Postprocess struct {
	// InputEncoding is the encoding of the CSV being read, convert.encoding when empty.
	InputEncoding string `mapstructure:"input_encoding"`
	Country       string `mapstructure:"country"        validate:"required,len=2"`
	MinPatents    int    `mapstructure:"min_patents"    validate:"min=0"`
	Placeholder   string `mapstructure:"placeholder"    validate:"required"`
	ByPLZFile     string `mapstructure:"by_plz_file"    validate:"required"`
	ByCityFile    string `mapstructure:"by_city_file"   validate:"required"`
	ChartFile     string `mapstructure:"chart_file"     validate:"required"`
	Excel         bool   `mapstructure:"excel"`
	ExcelFile     string `mapstructure:"excel_file"     validate:"required_if=Excel true"`
}

// ReadEncoding is the encoding postprocess reads its input CSV with.
func (c Config) ReadEncoding() string {
	if c.Postprocess.InputEncoding != "" {
		return c.Postprocess.InputEncoding
	}
	return c.Convert.Encoding
}

// Layout returns the column naming convention of the flat table.
func (r Registry) Layout() models.Layout {
	return models.Layout{
		DocumentID:     r.Columns.DocumentID,
		Country:        r.Columns.Country,
		Date:           r.Columns.Date,
		Applicants:     r.Applicants,
		Inventors:      r.Inventors,
		Name:           r.Columns.Name,
		Address:        r.Columns.Address,
		AddressCountry: r.Columns.AddressCountry,
	}
}

// Load reads the config file (if any), the DPMA_* environment and the flags
// that were bound on fs. fs may be nil.
func Load(cfgFile string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvPrefix("DPMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.dpma-processor")
		v.AddConfigPath("/etc/dpma-processor")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			if !strings.Contains(f.Name, ".") {
				return
			}
			if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return Config{}, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	err := v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config read error: %w", err)
		}
		// Not found is ok, use defaults/env
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal error: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return Config{}, fmt.Errorf("validation failed: %w", err)
	}
	if cfg.Telemetry.Exporter == "otlp" && cfg.Telemetry.Endpoint == "" {
		return Config{}, fmt.Errorf("telemetry.endpoint is required when using otlp exporter")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", "logs")
	v.SetDefault("log.console", true)
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.protocol", "grpc")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "dpma-processor")

	v.SetDefault("registry.namespace", "http://www.dpma.de/standards/XMLSchema/DE-PATGBM-RegisterExt")
	v.SetDefault("registry.applicants", "Applicants")
	v.SetDefault("registry.inventors", "Inventors")
	v.SetDefault("registry.columns.document_id", "Document_ID")
	v.SetDefault("registry.columns.country", "Country")
	v.SetDefault("registry.columns.date", "Date")
	v.SetDefault("registry.columns.name", "Name")
	v.SetDefault("registry.columns.address", "Address")
	v.SetDefault("registry.columns.address_country", "Country")

	v.SetDefault("csv.delimiter", ";")
	v.SetDefault("csv.encoding", "ISO-8859-1")
	v.SetDefault("csv.null_value", "")

	v.SetDefault("convert.output_file", "result.csv")
	v.SetDefault("convert.encoding", "UTF-8")
	v.SetDefault("convert.workers", 1)
	v.SetDefault("convert.progress", true)
	v.SetDefault("convert.unpack", false)
	v.SetDefault("convert.delete_after_unpack", false)
	v.SetDefault("convert.parquet", false)
	v.SetDefault("convert.parquet_file", "result.parquet")

	v.SetDefault("postprocess.input_encoding", "")
	v.SetDefault("postprocess.country", "DE")
	v.SetDefault("postprocess.min_patents", 25)
	v.SetDefault("postprocess.placeholder", "Kein Stadtname!")
	v.SetDefault("postprocess.by_plz_file", "by_plz.csv")
	v.SetDefault("postprocess.by_city_file", "by_city.csv")
	v.SetDefault("postprocess.chart_file", "plz_frequencies.html")
	v.SetDefault("postprocess.excel", false)
	v.SetDefault("postprocess.excel_file", "summary.xlsx")
}
