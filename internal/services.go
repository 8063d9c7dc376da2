package internal

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/config"
	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/convert"
	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/postprocess"
)

type Services struct {
	Unpacker      UnpackerInterface
	Converter     ConverterInterface
	Postprocessor PostprocessorInterface
}

func InitServices(
	cfg config.Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Services, error) {
	c, err := convert.NewConverter(cfg, tracer, logger, meter)
	if err != nil {
		return nil, err
	}
	p, err := postprocess.NewPostprocessor(cfg, tracer, logger, meter)
	if err != nil {
		return nil, err
	}
	return &Services{
		Unpacker:      c.Unpacker,
		Converter:     c,
		Postprocessor: p,
	}, nil
}
