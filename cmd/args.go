package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// patentsDirArg accepts exactly one argument naming an existing directory.
func patentsDirArg(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("please provide the path to the patents folder")
	}
	if len(args) > 1 {
		return fmt.Errorf("expected a single patents folder, got %d arguments", len(args))
	}
	info, err := os.Stat(args[0])
	if err != nil || !info.IsDir() {
		return fmt.Errorf("the provided patents path %q is not valid", args[0])
	}
	return nil
}

// resultCSVArg accepts exactly one argument naming an existing regular file.
func resultCSVArg(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("please provide the path to the result csv file")
	}
	if len(args) > 1 {
		return fmt.Errorf("expected a single csv file, got %d arguments", len(args))
	}
	info, err := os.Stat(args[0])
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("the provided csv path %q is not valid", args[0])
	}
	return nil
}
