package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for pagediff.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pagediff",
		Short: "Visual regression testing for document round-trips",
		Long: `pagediff checks that documents survive a round-trip (read and write back)
without visual change.

It converts the original and round-tripped documents to PDF, renders every
page, scores each page pair with SSIM and writes an HTML report with the
difference maps. The exit status is 1 when any document fails or has a page
below the threshold.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
