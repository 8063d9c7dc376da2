package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert <patents-dir>",
	Short: "Extract register XML files into a flat result CSV",
	Args:  patentsDirArg,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		res := services.Converter.Convert(ctx, args[0])()
		if ET.IsLeft(res) {
			_, err := ET.UnwrapError(res)
			return fmt.Errorf("convert failed: %w", err)
		}
		out, _ := ET.UnwrapError(res)
		logger.Infow("Convert completed", "output", out)
		return nil
	},
}
