package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/IBM/fp-go/v2/function"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <patents-dir>",
	Short: "Convert a patents folder and postprocess the result",
	Args:  patentsDirArg,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		var out string
		err := function.Pipe1(
			services.Converter.Convert(ctx, args[0])(),
			ET.Fold(
				func(e error) error { return fmt.Errorf("convert: %w", e) },
				func(path string) error {
					out = path
					return nil
				},
			),
		)
		if err != nil {
			return err
		}
		report, err := services.Postprocessor.Run(ctx, out)
		if err != nil {
			return fmt.Errorf("postprocess: %w", err)
		}
		logger.Infow("All steps completed",
			"result", out,
			"by_plz", report.ByPLZFile,
			"by_city", report.CityFile,
			"chart", report.ChartFile,
		)
		return nil
	},
}
