package internal

import (
	"context"

	"github.com/IBM/fp-go/v2/ioeither"

	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/postprocess"
	T "github.com/Qubut/IP-Claim/packages/dpma_processor/internal/typing"
)

type UnpackerInterface interface {
	UnpackAll(ctx context.Context, dir string) ioeither.IOEither[error, T.Unit]
}

type ConverterInterface interface {
	Convert(ctx context.Context, dir string) ioeither.IOEither[error, string]
}

type PostprocessorInterface interface {
	Run(ctx context.Context, csvPath string) (postprocess.Report, error)
}
