package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var postprocessCmd = &cobra.Command{
	Use:   "postprocess <result.csv>",
	Short: "Aggregate a result CSV by postal code and city and chart it",
	Args:  resultCSVArg,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		report, err := services.Postprocessor.Run(ctx, args[0])
		if err != nil {
			return fmt.Errorf("postprocess failed: %w", err)
		}
		logger.Infow("Postprocess completed",
			"by_plz", report.ByPLZFile,
			"by_city", report.CityFile,
			"chart", report.ChartFile,
		)
		return nil
	},
}
