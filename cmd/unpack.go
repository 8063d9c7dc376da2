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

var unpackCmd = &cobra.Command{
	Use:   "unpack <patents-dir>",
	Short: "Unpack zipped register deliveries into the patents folder",
	Args:  patentsDirArg,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		res := services.Unpacker.UnpackAll(ctx, args[0])()
		if ET.IsLeft(res) {
			_, err := ET.UnwrapError(res)
			return fmt.Errorf("unpack failed: %w", err)
		}
		logger.Info("Unpack completed")
		return nil
	},
}
